package epub

import (
	"errors"
	"fmt"
)

// ErrInvalidEPub indicates the archive is not a usable EPUB container.
var ErrInvalidEPub = errors.New("epub: invalid container")

// ExtractionError reports a malformed or unreadable container. Callers
// ingesting a batch skip the file and continue.
type ExtractionError struct {
	Path string
	Op   string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("epub: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("epub: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func extractionErr(op string, err error) *ExtractionError {
	return &ExtractionError{Op: op, Err: err}
}
