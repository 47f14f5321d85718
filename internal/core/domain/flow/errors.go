package flow

import "errors"

var (
	ErrUnknownKind     = errors.New("unknown flow kind")
	ErrNotFound        = errors.New("flow not found")
	ErrWrongStep       = errors.New("operation not allowed in the current step")
	ErrNotSupported    = errors.New("operation not supported by this flow")
	ErrRequestInFlight = errors.New("request already in flight")
)

// ValidationError is a client-side rejection. Nothing is sent to the auth
// service and Message is shown to the user as is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
