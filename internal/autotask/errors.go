package autotask

import "fmt"

// APIError is a non-2xx response from the Autotask API.
//
// Errors holds the structured error strings from the response's "errors"
// array when the body could be parsed. Body is the raw response text and is
// kept for internal diagnostics only; callers translating this error must
// not echo it verbatim.
type APIError struct {
	StatusCode int
	Errors     []string
	Body       string
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("autotask api error (status %d): %s", e.StatusCode, e.Errors[0])
	}
	return fmt.Sprintf("autotask api error (status %d)", e.StatusCode)
}
