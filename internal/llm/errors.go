package llm

import (
	"errors"
	"fmt"
)

// TransportError is the only pipeline failure that surfaces to the user.
// Decode-stage problems never become a TransportError; they degrade to
// plain text downstream.
type TransportError struct {
	Reason     string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion transport: %s (status %d)", e.Reason, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("completion transport: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("completion transport: %s", e.Reason)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AsTransportError unwraps err into a TransportError when one is present.
func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
