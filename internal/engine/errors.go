package engine

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable marks failures reading the signal store. A caller
// seeing it must report "could not compute", never "no relationship".
var ErrStorageUnavailable = errors.New("storage unavailable")

// StorageError wraps a failed read with the operation that issued it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStorageUnavailable, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is/As.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageUnavailable, e.Err}
}

func storageErr(op string, err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
