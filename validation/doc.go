// Package validation validates portforge configuration.
//
// Struct tag validation uses go-playground/validator; cross-field rules are
// collected with the programmatic Validator. Both report an INVALID_INPUT
// AppError listing every offending field.
//
//	type SchedulerConfig struct {
//	    MaxConcurrency int `mapstructure:"max_concurrency" validate:"min=1"`
//	}
//	err := validation.Validate(cfg)
package validation
