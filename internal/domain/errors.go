package domain

import "errors"

// ConfigError marks a per-user configuration problem (bad timezone,
// malformed time string, missing required field). Callers skip the
// affected user; it is never fatal to the process.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Field + ": " + e.Reason
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
