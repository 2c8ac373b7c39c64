package flight

import "fmt"

// ConfigError is returned when a required value is missing or invalid. These
// are detected up front, before any request is made
type ConfigError struct {
	// The name of the missing or invalid value
	Key string
	// Why the value was rejected
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %q: %v", e.Key, e.Reason)
}
