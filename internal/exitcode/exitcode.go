// Package exitcode carries a process exit code along with an error so commands can fail with a code
// scripts can branch on.
package exitcode

import "fmt"

const (
	Normal  int = 0
	Errored int = 1
	// The command was given input it refuses, such as a catalog that fails validation.
	Rejected int = 2
)

type ExitError struct {
	Err  error
	Code int
}

func (e ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%d", e.Code)
	}

	return fmt.Sprintf("%d: %s", e.Code, e.Err.Error())
}

func (e ExitError) Unwrap() error {
	return e.Err
}

// Wrap an error with an exit code
func Wrap(code int, err error) error {
	return ExitError{Code: code, Err: err}
}
