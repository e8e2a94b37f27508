package variables

import (
	"errors"
	"fmt"
)

var (
	// ErrUnregisteredVariable is returned when a variable is read or written
	// before it was registered with a default.
	ErrUnregisteredVariable = errors.New("unregistered variable")

	// ErrTypeMismatch matches every *TypeMismatchError via errors.Is.
	ErrTypeMismatch = errors.New("variable type mismatch")
)

// TypeMismatchError reports a read or write with the wrong value type.
type TypeMismatchError struct {
	Key  string
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("variable %s: type mismatch: stored %s, requested %s", e.Key, e.Got, e.Want)
}

// Is lets errors.Is(err, ErrTypeMismatch) succeed.
func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

func unregistered(key string) error {
	return fmt.Errorf("%w: %s", ErrUnregisteredVariable, key)
}
