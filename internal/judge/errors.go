package judge

import (
	"errors"
	"fmt"
	"net/http"
)

// TransientError marks a failure that may succeed on retry: rate limits,
// server errors, dropped connections and unparseable responses.
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a failure that retrying cannot fix, such as rejected
// credentials or a malformed request.
type FatalError struct {
	Provider string
	Err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// statusError maps an HTTP status to the transient or fatal class.
func statusError(provider string, status int, body string) error {
	err := fmt.Errorf("API returned %d: %s", status, body)
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500 {
		return &TransientError{Provider: provider, Err: err}
	}
	return &FatalError{Provider: provider, Err: err}
}
