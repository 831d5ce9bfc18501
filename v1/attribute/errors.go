package attribute

import (
	"errors"
	"fmt"
)

// Request-level error classes shared by the query engine. Callers use
// errors.Is against these sentinels to pick a response class.
var (
	// ErrValidation marks malformed client input: bad identifiers, disallowed
	// operator/dtype pairs, missing companion parameters.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a referenced section or entity type that does not exist.
	ErrNotFound = errors.New("not found")
)

// UnsupportedOperatorError is returned when an operation is not allowed for
// the data type of the attribute it targets.
type UnsupportedOperatorError struct {
	Operation string
	DType     DType
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("Filter operation '%s' not allowed for dtype '%s'!", e.Operation, e.DType)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *UnsupportedOperatorError) Unwrap() error {
	return ErrValidation
}

// Validationf builds an error wrapping ErrValidation.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds an error wrapping ErrNotFound.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
