package util

import "errors"

var (
	ErrNoExtractableText = errors.New("no extractable text found in PDF")

	ErrQuotaExhausted = errors.New("provider quota exhausted")
	ErrRateLimited    = errors.New("provider rate limited")
	ErrTransient      = errors.New("transient provider error")
	ErrPermanent      = errors.New("permanent provider error")
	ErrContextTooLong = errors.New("context too long")
)

// PreconditionError marks a validation failure that blocks an operation
// before any network call. The UI surfaces these as blocking alerts.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string { return e.Message }

func Precondition(msg string) error {
	return &PreconditionError{Message: msg}
}

func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
