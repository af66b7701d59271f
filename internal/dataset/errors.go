package dataset

import (
	"errors"
	"fmt"
)

var (
	ErrShape    = errors.New("payload is not a sequence")
	ErrParse    = errors.New("malformed payload")
	ErrNotReady = errors.New("datasets not loaded")
	ErrLoaded   = errors.New("datasets already loaded")
)

// ShapeError reports a payload whose top level is not a sequence. The
// dataset degrades to an empty collection.
type ShapeError struct {
	Dataset Kind
	Got     string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: top-level payload is %s, want a sequence", e.Dataset, e.Got)
}

func (e *ShapeError) Unwrap() error { return ErrShape }

// ParseError reports a textual payload that could not be parsed.
type ParseError struct {
	Dataset Kind
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse: %v", e.Dataset, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }

// FailureReason classifies an ingestion error for status reporting and metrics.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrShape):
		return "shape"
	case errors.Is(err, ErrParse):
		return "parse"
	default:
		return "fetch"
	}
}
