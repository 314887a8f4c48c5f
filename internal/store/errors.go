package store

import (
	"errors"
	"fmt"
)

// Sentinel not-found errors, distinguished from the definite false/empty
// results the engine returns for expected negative outcomes.
var (
	ErrQueueNotFound = errors.New("queue does not exist")
	ErrJobNotFound   = errors.New("job does not exist")
)

// ValidationError reports bad caller input, raised before any storage is
// touched. Always recoverable by correcting the input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
