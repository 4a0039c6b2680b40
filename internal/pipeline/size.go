package pipeline

import (
	"encoding/json"
	"fmt"
)

// SizeConfig bounds request and response payload sizes independently.
// Zero or negative limits disable the check on that axis.
type SizeConfig struct {
	// MaxParameterBytes caps the serialized size of call arguments.
	MaxParameterBytes int `yaml:"max_parameter_bytes"`

	// MaxResultBytes caps the serialized size of a raw handler result.
	MaxResultBytes int `yaml:"max_result_bytes"`
}

// DefaultSizeConfig returns the default payload limits.
func DefaultSizeConfig() SizeConfig {
	return SizeConfig{
		MaxParameterBytes: 1 << 20,  // 1MB
		MaxResultBytes:    10 << 20, // 10MB
	}
}

// SizeValidator checks payload sizes against the configured limits
// using serialized byte length as the metric.
type SizeValidator struct {
	config SizeConfig
}

// NewSizeValidator creates a validator with the given limits.
func NewSizeValidator(config SizeConfig) *SizeValidator {
	return &SizeValidator{config: config}
}

// ValidateParameters checks the serialized size of call arguments.
func (v *SizeValidator) ValidateParameters(tool string, args map[string]any) error {
	return v.check(tool, args, v.config.MaxParameterBytes, "parameters")
}

// ValidateResult checks the serialized size of a raw handler result.
func (v *SizeValidator) ValidateResult(tool string, result any) error {
	return v.check(tool, result, v.config.MaxResultBytes, "result")
}

func (v *SizeValidator) check(tool string, payload any, limit int, what string) error {
	if limit <= 0 || payload == nil {
		return nil
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return &CallError{
			Kind:    KindUnknown,
			Tool:    tool,
			Message: fmt.Sprintf("measure %s size: %v", what, err),
			Cause:   err,
		}
	}
	if len(encoded) > limit {
		return &CallError{
			Kind:      KindSizeLimit,
			Tool:      tool,
			Message:   fmt.Sprintf("%s size %d bytes exceeds limit of %d bytes", what, len(encoded), limit),
			Measured:  len(encoded),
			SizeLimit: limit,
		}
	}
	return nil
}
