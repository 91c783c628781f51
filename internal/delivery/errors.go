package delivery

import "errors"

// TerminalError marks a delivery precondition that no retry can fix.
type TerminalError struct {
	Reason string
}

func (e *TerminalError) Error() string { return e.Reason }

var ErrMissingEmail = &TerminalError{Reason: "missing_customer_email"}

func IsTerminal(err error) bool {
	var terminal *TerminalError
	return errors.As(err, &terminal)
}
