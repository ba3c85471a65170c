package models

import "fmt"

const (
	MaxDetailTypeLength = 128
	MaxSourceLength     = 256
	MaxResources        = 64
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateEnvelope(env *Envelope) error {
	if env == nil {
		return &ValidationError{
			Field:   "envelope",
			Message: "envelope cannot be nil",
		}
	}

	if env.ID == "" {
		return &ValidationError{
			Field:   "id",
			Message: "event ID is required",
		}
	}

	if env.Source == "" {
		return &ValidationError{
			Field:   "source",
			Message: "event source is required",
		}
	}

	if len(env.Source) > MaxSourceLength {
		return &ValidationError{
			Field:   "source",
			Message: fmt.Sprintf("source must be at most %d characters", MaxSourceLength),
		}
	}

	if env.DetailType == "" {
		return &ValidationError{
			Field:   "detail-type",
			Message: "detail type is required",
		}
	}

	if len(env.DetailType) > MaxDetailTypeLength {
		return &ValidationError{
			Field:   "detail-type",
			Message: fmt.Sprintf("detail type must be at most %d characters", MaxDetailTypeLength),
		}
	}

	if env.Time.IsZero() {
		return &ValidationError{
			Field:   "time",
			Message: "event time is required",
		}
	}

	if len(env.Resources) > MaxResources {
		return &ValidationError{
			Field:   "resources",
			Message: fmt.Sprintf("at most %d resources are allowed", MaxResources),
		}
	}

	if env.Detail == nil {
		return &ValidationError{
			Field:   "detail",
			Message: "event detail cannot be nil",
		}
	}

	return nil
}
