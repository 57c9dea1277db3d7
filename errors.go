package docfill

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the fill error taxonomy. Callers classify failures with
// errors.Is; the HTTP layer maps them onto status codes.
var (
	ErrValidation      = errors.New("docfill: invalid request")
	ErrNotFound        = errors.New("docfill: not found")
	ErrInvalidTemplate = errors.New("docfill: template cannot be parsed")
	ErrRender          = errors.New("docfill: render failed")
	ErrRenderTimeout   = fmt.Errorf("%w: timeout", ErrRender)
	ErrUpload          = errors.New("docfill: upload failed")
)

// Error represents an error that occurred during a specific fill operation.
// It wraps an underlying error and includes the operation name for context.
type Error struct {
	Op  string // operation name, e.g. "FillZones", "ReadTemplate"
	Err error  // underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("docfill.%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("docfill.%s: unknown error", e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns err annotated with op, or nil if err is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Validationf returns an error wrapping ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf returns an error wrapping ErrNotFound with a formatted reason.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Retryable reports whether err is worth retrying by the caller. Renderer
// timeouts and expired request deadlines qualify; the core never retries on
// its own.
func Retryable(err error) bool {
	return errors.Is(err, ErrRenderTimeout) || errors.Is(err, context.DeadlineExceeded)
}
