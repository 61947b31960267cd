package topology

import (
	"errors"
	"fmt"
)

// ErrConfig matches every ConfigError.
var ErrConfig = errors.New("invalid configuration")

// ConfigError reports an invalid or missing topology or port setting.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}
