package leave

import "errors"

var (
	ErrNotFound          = errors.New("leave request not found")
	ErrHistoryOutOfOrder = errors.New("status history entry out of order")
)

// ValidationError is a caller-correctable input defect. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
