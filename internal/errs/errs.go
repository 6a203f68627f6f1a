// Package errs names the error kinds used across the pipeline so callers
// can branch on failure category without depending on concrete types from
// every package.
package errs

import "errors"

// Kind identifies a category of failure from the error handling design.
type Kind string

const (
	Config               Kind = "config_error"
	SchemaChangeNoSource Kind = "schema_change_without_source"
	IO                   Kind = "io_error"
	MalformedRow         Kind = "malformed_row"
	Validation           Kind = "validation_error"
	OversizeDocument     Kind = "oversize_document"
	CompactionFailure    Kind = "compaction_failure"
	DuplicateID          Kind = "duplicate_id"
	UpsertFailure        Kind = "upsert_failure"
	QueryPartialFailure  Kind = "query_partial_failure"
	QueryTotalFailure    Kind = "query_total_failure"
	NotConnected         Kind = "not_connected"
)

// Error wraps an underlying error with a Kind so errors.As can recover the
// category without a distinct Go type per kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind. A nil err still produces a non-nil *Error
// carrying only the kind, for sentinel-style comparisons.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Is reports whether err (or any error it wraps) carries kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
