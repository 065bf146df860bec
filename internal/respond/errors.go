package respond

import (
	"fmt"

	"github.com/555Russich/18.fl-auto-response/internal/driver"
)

// ActionError reports the step at which a response action stopped.
type ActionError struct {
	Step  string
	Cause error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("response action failed at %s: %v", e.Step, e.Cause)
}

func (e *ActionError) Unwrap() error {
	return e.Cause
}

// ControlMissing reports whether the action stopped because a control was absent.
func (e *ActionError) ControlMissing() bool {
	return driver.IsNotFound(e.Cause)
}
