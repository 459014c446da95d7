package core

// parser.go turns one decoded dataset stream into tagged rows.
//
// Two layouts are understood:
//
//	sectioned:  id;control;item;1970;1971;...      (production, processing, commercialization)
//	trade:      Id;País;1970;1970;1971;1971;...    (import, export; quantity then value)
//
// In the sectioned layout a row whose control cell carries a short "xx_"
// prefix is a data row ("vm_Tinto"); anything else opens a section
// ("VINHO DE MESA"). Files without a control column mark sections by an
// all-uppercase item name.

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"
)

// dataControlRegex matches the control cell of a data row.
var dataControlRegex = regexp.MustCompile(`^[A-Za-z]{1,4}_`)

// Row is a parsed source row: either a HeaderRow or a DataRow.
type Row interface {
	SourceLine() int
	isRow()
}

// YearValue is the measurement of one year column. Value is only set by the
// trade layout.
type YearValue struct {
	Year     int
	Quantity float64
	Value    float64
}

// HeaderRow opens a section. Its values are the source's own section
// totals, used only when the section has no data rows.
type HeaderRow struct {
	Line    int
	Control string
	Name    string
	Values  []YearValue
}

// DataRow is a measured item of the current section.
type DataRow struct {
	Line    int
	Control string
	Name    string
	Values  []YearValue
}

func (h HeaderRow) SourceLine() int { return h.Line }
func (d DataRow) SourceLine() int   { return d.Line }
func (HeaderRow) isRow()            {}
func (DataRow) isRow()              {}

// ParsedDataset is the parser output for one dataset.
type ParsedDataset struct {
	Dataset   DatasetDefinition
	Delimiter rune
	Years     []int
	Rows      []Row
	Skipped   int // Total-marker rows dropped
}

// DataRows returns the number of data rows.
func (p *ParsedDataset) DataRows() int {
	n := 0
	for _, r := range p.Rows {
		if _, ok := r.(DataRow); ok {
			n++
		}
	}
	return n
}

// Parse reads a decoded dataset stream. It is all-or-nothing: on error no
// rows are returned.
func Parse(def DatasetDefinition, r io.Reader) (*ParsedDataset, error) {
	malformed := func(line int, col, cause string, err error) error {
		return &MalformedSourceError{Dataset: def.ID, Line: line, Column: col, Cause: cause, Err: err}
	}

	br := bufio.NewReader(r)
	headerLine, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, malformed(1, "", "read header", err)
	}
	if strings.TrimSpace(headerLine) == "" {
		return nil, malformed(0, "", "empty source", nil)
	}

	delim, ok := detectDelimiter(headerLine)
	if !ok {
		return nil, malformed(1, "", "no ';' or tab delimiter in header", nil)
	}

	cr := csv.NewReader(io.MultiReader(strings.NewReader(headerLine), br))
	cr.Comma = delim
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, malformed(1, "", "read header", err)
	}
	header = trimTrailingEmpty(header)

	layout, err := readLayout(def, header)
	if err != nil {
		return nil, malformed(1, "", err.Error(), nil)
	}

	out := &ParsedDataset{
		Dataset:   def,
		Delimiter: delim,
		Years:     layout.years,
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, malformed(pe.StartLine, "", "invalid record", pe.Err)
			}
			return nil, malformed(0, "", "read record", err)
		}
		line, _ := cr.FieldPos(0)

		if isBlankRecord(rec) {
			continue
		}
		if len(rec) < len(header) {
			return nil, malformed(line, "", fmt.Sprintf("expected %d columns, got %d", len(header), len(rec)), nil)
		}
		if len(rec) > len(header) {
			if len(trimTrailingEmpty(rec)) > len(header) {
				return nil, malformed(line, "", fmt.Sprintf("expected %d columns, got %d", len(header), len(rec)), nil)
			}
			rec = rec[:len(header)]
		}

		row, err := layout.row(rec, line, header)
		if err != nil {
			return nil, err
		}
		if row == nil {
			out.Skipped++
			continue
		}
		out.Rows = append(out.Rows, row)
	}

	return out, nil
}

// detectDelimiter picks ';' or TAB, whichever the header line uses more.
func detectDelimiter(line string) (rune, bool) {
	semis := strings.Count(line, ";")
	tabs := strings.Count(line, "\t")
	switch {
	case semis == 0 && tabs == 0:
		return 0, false
	case tabs > semis:
		return '\t', true
	default:
		return ';', true
	}
}

// sourceLayout maps record columns to row fields for one header.
type sourceLayout struct {
	def        DatasetDefinition
	controlCol int // -1 when the file has no control column
	nameCol    int
	firstYear  int
	years      []int
}

func readLayout(def DatasetDefinition, header []string) (*sourceLayout, error) {
	first := -1
	for i, h := range header {
		if _, ok := ParseYear(h); ok {
			first = i
			break
		}
	}
	if first < 0 {
		return nil, fmt.Errorf("no year columns in header")
	}

	l := &sourceLayout{def: def, firstYear: first}

	switch def.Layout {
	case LayoutSectioned:
		switch first {
		case 3:
			l.controlCol, l.nameCol = 1, 2
		case 2:
			l.controlCol, l.nameCol = -1, 1
		default:
			return nil, fmt.Errorf("expected 2 or 3 leading columns before the years, got %d", first)
		}
		seen := make(map[int]bool)
		for _, h := range header[first:] {
			y, ok := ParseYear(h)
			if !ok {
				return nil, fmt.Errorf("column %q is not a year", h)
			}
			if seen[y] {
				return nil, fmt.Errorf("duplicate year column %d", y)
			}
			seen[y] = true
			l.years = append(l.years, y)
		}

	case LayoutTrade:
		if first != 2 {
			return nil, fmt.Errorf("expected 2 leading columns before the years, got %d", first)
		}
		l.controlCol, l.nameCol = -1, 1
		cols := header[first:]
		if len(cols)%2 != 0 {
			return nil, fmt.Errorf("trade year columns must come in quantity/value pairs")
		}
		seen := make(map[int]bool)
		for i := 0; i < len(cols); i += 2 {
			y, ok := ParseYear(cols[i])
			if !ok {
				return nil, fmt.Errorf("column %q is not a year", cols[i])
			}
			if y2, ok := ParseYear(cols[i+1]); !ok || y2 != y {
				return nil, fmt.Errorf("year %d is not followed by its value column", y)
			}
			if seen[y] {
				return nil, fmt.Errorf("duplicate year column %d", y)
			}
			seen[y] = true
			l.years = append(l.years, y)
		}

	default:
		return nil, fmt.Errorf("unknown layout %d", def.Layout)
	}

	return l, nil
}

// row converts one record. A nil row means the record is a total marker.
func (l *sourceLayout) row(rec []string, line int, header []string) (Row, error) {
	control := ""
	if l.controlCol >= 0 {
		control = CleanCell(rec[l.controlCol])
	}
	name := CleanCell(rec[l.nameCol])
	if name == "" && control != "" {
		name = dataControlRegex.ReplaceAllString(control, "")
	}
	if name == "" {
		return nil, &MalformedSourceError{Dataset: l.def.ID, Line: line, Column: header[l.nameCol], Cause: "empty item name"}
	}
	if IsTotalMarker(name) {
		return nil, nil
	}

	values, err := l.values(rec, line, header)
	if err != nil {
		return nil, err
	}

	if l.def.Layout == LayoutSectioned && l.isHeader(control, name) {
		return HeaderRow{Line: line, Control: control, Name: name, Values: values}, nil
	}
	return DataRow{Line: line, Control: control, Name: name, Values: values}, nil
}

func (l *sourceLayout) isHeader(control, name string) bool {
	if control != "" {
		return !dataControlRegex.MatchString(control)
	}
	return isUpperName(name)
}

func (l *sourceLayout) values(rec []string, line int, header []string) ([]YearValue, error) {
	values := make([]YearValue, len(l.years))
	step := 1
	if l.def.Layout == LayoutTrade {
		step = 2
	}
	for i, y := range l.years {
		col := l.firstYear + i*step
		q, err := ParseMeasure(rec[col])
		if err != nil {
			return nil, &MalformedSourceError{Dataset: l.def.ID, Line: line, Column: header[col], Cause: "invalid quantity", Err: err}
		}
		values[i] = YearValue{Year: y, Quantity: q}
		if step == 2 {
			v, err := ParseMeasure(rec[col+1])
			if err != nil {
				return nil, &MalformedSourceError{Dataset: l.def.ID, Line: line, Column: header[col+1], Cause: "invalid value", Err: err}
			}
			values[i].Value = v
		}
	}
	return values, nil
}

// isUpperName reports whether every letter of s is uppercase.
func isUpperName(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters > 0
}

func trimTrailingEmpty(rec []string) []string {
	n := len(rec)
	for n > 0 && strings.TrimSpace(rec[n-1]) == "" {
		n--
	}
	return rec[:n]
}

func isBlankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
