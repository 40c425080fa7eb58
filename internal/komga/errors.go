package komga

import "fmt"

// Error distinguishes a server that could not be reached from one that
// answered with a non-2xx status. Callers store the distinction in the run
// record; nothing retries automatically.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("komga %s: rejected with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("komga %s: unreachable: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Unreachable is true for transport-level failures (timeout, refused
// connection, DNS).
func (e *Error) Unreachable() bool {
	return e.StatusCode == 0
}

// Rejected is true when the server answered with a non-2xx status, e.g. bad
// credentials or a missing resource.
func (e *Error) Rejected() bool {
	return e.StatusCode > 0
}

func unreachable(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func rejected(op string, status int) *Error {
	return &Error{Op: op, StatusCode: status}
}
