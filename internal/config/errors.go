package config

import "fmt"

// Error is a configuration problem.
type Error struct {
	Field   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config error: %s: %s: %v", e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
