package ingest

import "fmt"

// FetchError reports that a source could not be read at all
// (missing file, unreachable host, non-2xx response).
type FetchError struct {
	Source string
	URI    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Source, e.URI, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports that a source was read but its content is not valid
// for the declared format. Line is 1-based and zero when not applicable.
type ParseError struct {
	Source string
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
