package router

import "fmt"

// statusError wraps a non-2xx upstream response so callers can log the
// code without needing a sentinel per status.
type statusError struct {
	code int
}

func errStatus(code int) error { return &statusError{code: code} }

func (e *statusError) Error() string {
	return fmt.Sprintf("router: upstream returned status %d", e.code)
}
