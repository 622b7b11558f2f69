package utils

import "fmt"

// ConfigError reports a malformed target, endpoint or rule. It is the only
// error class that aborts startup; all per-cycle failures are represented
// as data or logged and isolated to their own task.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// NewConfigError builds a ConfigError for the given field.
func NewConfigError(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
