package core

// streaming.go provides the readers that sit between a raw dataset stream and
// the CSV parser:
//
//   - BOMSkippingReader: removes the UTF-8 BOM (0xEF 0xBB 0xBF)
//   - UTF8Validator: fails on the first invalid UTF-8 sequence
//   - Latin-1 decoding through golang.org/x/text/encoding/charmap
//
// Use DecodeSource to apply them in the correct order.

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ErrInvalidUTF8 is returned by UTF8Validator on the first invalid sequence.
var ErrInvalidUTF8 = errors.New("invalid utf-8 in source stream")

// Encoding is the character encoding of the source files.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf-8"
	EncodingLatin1 Encoding = "latin1"
)

// ParseEncoding accepts the usual spellings of the supported encodings.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "utf-8", "utf8":
		return EncodingUTF8, nil
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return EncodingLatin1, nil
	default:
		return "", fmt.Errorf("unsupported source encoding %q", s)
	}
}

// UTF8Validator wraps an io.Reader and returns ErrInvalidUTF8 as soon as the
// stream contains an invalid sequence. Multi-byte sequences split across
// reads are carried over to the next call.
type UTF8Validator struct {
	reader io.Reader

	// Leftover bytes from previous read that may form a multi-byte sequence
	pending []byte
	offset  int64
	err     error
}

// NewUTF8Validator creates a new validating reader.
func NewUTF8Validator(r io.Reader) *UTF8Validator {
	return &UTF8Validator{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

// Read implements io.Reader.
func (v *UTF8Validator) Read(p []byte) (int, error) {
	if v.err != nil {
		return 0, v.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	// Pending bytes go first; p must have room for at least one more byte.
	offset := 0
	if len(v.pending) > 0 {
		if len(p) <= len(v.pending) {
			return 0, io.ErrShortBuffer
		}
		offset = copy(p, v.pending)
		v.pending = v.pending[:0]
	}

	n, err := v.reader.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	atEOF := errors.Is(err, io.EOF)
	data := p[:n]

	// Fast path: plain ASCII needs no decoding.
	if isAllASCII(data) {
		v.offset += int64(n)
		return n, err
	}

	valid := len(data)
	if !atEOF {
		if trailing := incompleteTrailingBytes(data); trailing > 0 {
			valid -= trailing
			v.pending = append(v.pending, data[valid:]...)
		}
	}

	if !utf8.Valid(data[:valid]) {
		pos := firstInvalid(data[:valid])
		v.err = fmt.Errorf("%w at byte %d", ErrInvalidUTF8, v.offset+int64(pos))
		return 0, v.err
	}
	if atEOF && len(v.pending) > 0 {
		v.err = fmt.Errorf("%w: truncated sequence at end of stream", ErrInvalidUTF8)
		return 0, v.err
	}

	v.offset += int64(valid)
	if valid == 0 && err == nil {
		// Only an incomplete sequence arrived; ask for more.
		return 0, nil
	}
	return valid, err
}

// isAllASCII returns true if all bytes are ASCII (< 128).
func isAllASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// firstInvalid returns the index of the first byte that does not start a
// valid rune.
func firstInvalid(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return len(data)
}

// incompleteTrailingBytes returns the number of bytes at the end of data
// that could be the start of an incomplete multi-byte UTF-8 sequence.
func incompleteTrailingBytes(data []byte) int {
	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < runeLen(b) {
				return i
			}
			return 0
		}
		// Continuation byte (10xxxxxx) - keep checking
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

// runeLen returns the expected length of a UTF-8 sequence starting with byte b.
func runeLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0 // continuation byte
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
// Spreadsheet exports on Windows commonly add it.
type BOMSkippingReader struct {
	reader     io.Reader
	bomChecked bool
	buf        [3]byte
	bufData    []byte // Bytes read during the BOM check that are not a BOM
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: r}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.bomChecked {
		r.bomChecked = true

		n, err := io.ReadFull(r.reader, r.buf[:])
		if n == 3 && r.buf[0] == 0xEF && r.buf[1] == 0xBB && r.buf[2] == 0xBF {
			r.bufData = nil
		} else {
			r.bufData = r.buf[:n]
		}

		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if errors.Is(err, io.EOF) && len(r.bufData) == 0 {
			return 0, io.EOF
		}
	}

	if len(r.bufData) > 0 {
		copied := copy(p, r.bufData)
		r.bufData = r.bufData[copied:]
		return copied, nil
	}

	return r.reader.Read(p)
}

// DecodeSource wraps a raw dataset stream so the parser always receives
// validated UTF-8 text without a BOM.
//
// The order matters: the BOM is stripped before decoding, since a Latin-1
// decoder would turn its bytes into three visible characters.
func DecodeSource(r io.Reader, enc Encoding) io.Reader {
	bom := NewBOMSkippingReader(r)
	switch enc {
	case EncodingLatin1:
		return charmap.ISO8859_1.NewDecoder().Reader(bom)
	default:
		return NewUTF8Validator(bom)
	}
}
