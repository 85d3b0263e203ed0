package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/probdir/pkg/dumpdir/archive"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation that cannot be expressed in tags.
func validateCustomRules(cfg *Config) error {
	if _, err := cfg.Store.ParseElementMode(); err != nil {
		return err
	}

	if cfg.Lock.OpenContention == cfg.Lock.CreateContention {
		return fmt.Errorf("lock: open_contention and create_contention must differ")
	}

	for _, name := range cfg.Archive.Exclude {
		if name == "" {
			return fmt.Errorf("archive.exclude: empty element name")
		}
	}
	if _, err := archive.ParseCodec(cfg.Archive.Codec); err != nil {
		return fmt.Errorf("archive.codec: %w", err)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
