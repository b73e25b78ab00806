package errors

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound    = errors.New("configuration file not found")
	ErrValidation        = errors.New("validation failed")
	ErrJobNotFound       = errors.New("job not found")
	ErrJobNotCancellable = errors.New("job is not cancellable")
	ErrCancelInFlight    = errors.New("cancel already in flight")
	ErrNotInHistory      = errors.New("job is not in history")
	ErrAlreadySubscribed = errors.New("live channel already subscribed")
	ErrStoreClosed       = errors.New("store is closed")
	ErrMalformedPayload  = errors.New("malformed payload")
)

// TransportError reports a failed call to the backend: either the request
// never completed (StatusCode 0) or it returned a non-2xx status.
type TransportError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": transport failure"
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == 404
}
