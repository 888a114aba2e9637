package gallery

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for ids that are not in the store
	ErrNotFound = errors.New("screenshot not found")

	// ErrUnavailable means the entry exists but its content cannot be resolved
	ErrUnavailable = errors.New("screenshot content not available")
)

// PersistError reports a failed write of content or metadata. The in-memory
// collection is left as it was before the operation.
type PersistError struct {
	Op  string
	ID  int64
	Err error
}

func (e *PersistError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("persist %s (screenshot %d): %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// IOError reports a failed read or write of a single screenshot's content
type IOError struct {
	Op   string
	ID   int64
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s screenshot %d (%s): %v", e.Op, e.ID, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
