package core

import (
	"errors"
	"fmt"
)

// Rule table construction failures. A *ConstructionError wraps one of these.
var (
	ErrLengthMismatch  = errors.New("decoder and field lists differ in length")
	ErrRulePairing     = errors.New("decoder and field tag must be set together")
	ErrIndexOutOfRange = errors.New("column index out of range")
	ErrBadPattern      = errors.New("unsupported date pattern")
)

// Column-level decode failures. These never escape the engine; they only mark
// the record as unsuccessful.
var (
	ErrEmptyCell     = errors.New("empty cell")
	ErrInvalidNumber = errors.New("invalid number format")
	ErrInvalidDate   = errors.New("invalid date format")
)

// ConstructionError describes a malformed rule table.
type ConstructionError struct {
	Column int // -1 when the problem is not tied to one column
	Err    error
	Detail string
}

func (e *ConstructionError) Error() string {
	msg := e.Err.Error()
	if e.Column >= 0 {
		msg = fmt.Sprintf("column %d: %s", e.Column, msg)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return "rule table: " + msg
}

func (e *ConstructionError) Unwrap() error { return e.Err }
