package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidConfig wraps every error returned by Config.Validate
var ErrInvalidConfig = errors.New("invalid config")

// socketSchemes are the mangos transports the coordinator can listen on
var socketSchemes = []string{"tcp://", "ipc://", "inproc://", "ws://", "tls+tcp://"}

// ConfigValidator checks cross-field rules that struct tags cannot express.
// It collects every failure instead of stopping at the first.
type ConfigValidator struct {
	errs []error
}

// NewConfigValidator creates an empty validator
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

func (cv *ConfigValidator) fail(field, format string, args ...any) *ConfigValidator {
	cv.errs = append(cv.errs, fmt.Errorf("%s: %s", field, fmt.Sprintf(format, args...)))
	return cv
}

// Required rejects an empty string
func (cv *ConfigValidator) Required(field, value string) *ConfigValidator {
	if value == "" {
		return cv.fail(field, "field is required")
	}
	return cv
}

// RangeInt rejects values outside [min, max]
func (cv *ConfigValidator) RangeInt(field string, value, min, max int) *ConfigValidator {
	if value < min || value > max {
		return cv.fail(field, "value %d is outside range [%d, %d]", value, min, max)
	}
	return cv
}

// Positive rejects values below 1
func (cv *ConfigValidator) Positive(field string, value int) *ConfigValidator {
	if value <= 0 {
		return cv.fail(field, "value %d must be positive", value)
	}
	return cv
}

// MinDuration rejects durations below min
func (cv *ConfigValidator) MinDuration(field string, value, min time.Duration) *ConfigValidator {
	if value < min {
		return cv.fail(field, "duration %v is below minimum %v", value, min)
	}
	return cv
}

// SocketAddr requires a mangos address such as tcp://host:port
func (cv *ConfigValidator) SocketAddr(field, value string) *ConfigValidator {
	if value == "" {
		return cv.fail(field, "field is required")
	}
	for _, scheme := range socketSchemes {
		if strings.HasPrefix(value, scheme) && len(value) > len(scheme) {
			return cv
		}
	}
	return cv.fail(field, "%q is not a socket address (%s)", value, strings.Join(socketSchemes, ", "))
}

// Distinct rejects two fields holding the same value
func (cv *ConfigValidator) Distinct(field, value, other, otherValue string) *ConfigValidator {
	if value != "" && value == otherValue {
		return cv.fail(field, "must differ from %s", other)
	}
	return cv
}

// When applies validations only if condition holds
func (cv *ConfigValidator) When(condition bool, validations func(*ConfigValidator)) *ConfigValidator {
	if condition {
		validations(cv)
	}
	return cv
}

// Errors returns every failure so far
func (cv *ConfigValidator) Errors() []error {
	return cv.errs
}

// Validate joins all failures under ErrInvalidConfig, or returns nil
func (cv *ConfigValidator) Validate() error {
	if len(cv.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(cv.errs...))
}
