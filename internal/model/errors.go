package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies failures of a merge run.
type ErrorKind string

const (
	KindSourceMissing            ErrorKind = "source_missing"
	KindBackupFailed             ErrorKind = "backup_failed"
	KindUnrecognizedSourceFormat ErrorKind = "unrecognized_source_format"
	KindInvalidStartDate         ErrorKind = "invalid_start_date"
	KindUnsafeOverwrite          ErrorKind = "unsafe_overwrite"
	KindSchemaMismatch           ErrorKind = "schema_mismatch"
	KindUnreadableFile           ErrorKind = "unreadable_file"
	KindUnwritableFile           ErrorKind = "unwritable_file"
)

// Error is a classified failure carrying the context a caller needs to act
// on it (offending rows, missing columns, paths).
type Error struct {
	Kind    ErrorKind
	Msg     string
	Details map[string]any
	Err     error
}

// NewError creates an Error of the given kind wrapping an optional cause.
func NewError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// With attaches a detail and returns the error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Details[k])
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind, true
	}
	return "", false
}

// IsKind reports whether err's chain contains an Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var me *Error
	for err != nil {
		if !errors.As(err, &me) {
			return false
		}
		if me.Kind == kind {
			return true
		}
		err = me.Err
	}
	return false
}
