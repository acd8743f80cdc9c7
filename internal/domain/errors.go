package domain

import "errors"

// ErrUnsupported indicates the platform offers no speech-recognition
// capability. It is reported to the user once and never retried.
var ErrUnsupported = errors.New("speech recognition is not available in this environment")

// ErrEmptyQuery indicates a dispatch was requested for empty or
// whitespace-only text; no network call is made.
var ErrEmptyQuery = errors.New("query text is empty")

// TransportError wraps any network failure or non-success status from the
// intent service. The message is surfaced to the user verbatim.
type TransportError struct {
	Message string
}

func (e *TransportError) Error() string {
	return e.Message
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
