package classify

import "fmt"

// PatternError represents a failure to load or compile the exclusion pattern.
type PatternError struct {
	Source  string
	Message string
	Cause   error
}

func (e *PatternError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pattern error (%s): %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("pattern error (%s): %s", e.Source, e.Message)
}

func (e *PatternError) Unwrap() error {
	return e.Cause
}
