package scoring

import "fmt"

// ValidationError reports malformed input to the aggregator. Nothing is
// computed when one is returned.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConfigurationError reports missing or invalid section totals or thresholds.
// It is returned when an Aggregator is constructed, never per call.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("scoring configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
