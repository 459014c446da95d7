package core

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned when no generation is published. Queries never see
// it: EnsureLoaded turns it into a load.
var ErrNotReady = errors.New("cache not ready")

// ErrUnknownDataset is returned for a dataset ID with no registered definition.
var ErrUnknownDataset = errors.New("unknown dataset")

// MalformedSourceError reports a source stream whose structure cannot be
// parsed. The whole dataset is rejected.
type MalformedSourceError struct {
	Dataset DatasetID
	Line    int    // 1-based source line, 0 when unknown
	Column  string // Header of the offending column, if any
	Cause   string
	Err     error
}

func (e *MalformedSourceError) Error() string {
	msg := fmt.Sprintf("malformed source %s", e.Dataset)
	if e.Line > 0 {
		msg += fmt.Sprintf(" line %d", e.Line)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" column %q", e.Column)
	}
	msg += ": " + e.Cause
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedSourceError) Unwrap() error { return e.Err }

// IntegrityConflictError reports contradictory entity attribution within one
// dataset, such as the same item appearing twice in one section.
type IntegrityConflictError struct {
	Dataset  DatasetID
	Line     int
	Entity   string // "product", "cultivar", "country"
	Name     string
	Existing string // Category (or section) the name was first seen under
	Conflict string // Category (or section) of the offending row
	Cause    string
}

func (e *IntegrityConflictError) Error() string {
	msg := fmt.Sprintf("integrity conflict in %s line %d: %s %q", e.Dataset, e.Line, e.Entity, e.Name)
	if e.Existing != "" || e.Conflict != "" {
		msg += fmt.Sprintf(" (already under %q, found under %q)", e.Existing, e.Conflict)
	}
	if e.Cause != "" {
		msg += ": " + e.Cause
	}
	return msg
}

// LoadError wraps any failure of a load attempt with the dataset it came from.
type LoadError struct {
	Dataset DatasetID
	Err     error
}

func (e *LoadError) Error() string {
	if e.Dataset == "" {
		return fmt.Sprintf("load failed: %v", e.Err)
	}
	return fmt.Sprintf("load dataset %s: %v", e.Dataset, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// DatasetOf returns the dataset identifier carried by err, if any.
func DatasetOf(err error) DatasetID {
	var le *LoadError
	if errors.As(err, &le) && le.Dataset != "" {
		return le.Dataset
	}
	var me *MalformedSourceError
	if errors.As(err, &me) {
		return me.Dataset
	}
	var ie *IntegrityConflictError
	if errors.As(err, &ie) {
		return ie.Dataset
	}
	return ""
}
