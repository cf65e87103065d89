package nlu

import (
	"errors"
	"fmt"
)

// ValidationError reports missing required arguments on Analyze. It is the
// only error the orchestrator ever returns; every other failure mode resolves
// to a structured AnalysisResult.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
