package records

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates the presented passphrase does not belong to the record.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBanned indicates a mutation was attempted on a banned record.
	ErrBanned = errors.New("record is banned")
)

// ValidationError reports a request rejected before touching storage.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}
