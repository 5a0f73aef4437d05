package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/mediavault/mediavault/pkg/models"
)

// Validate checks the configuration for structural errors. A failure here is
// a configuration error: the caller should fail fast instead of starting a
// run that cannot complete.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			// Report the first failure with its field path for a readable
			// message.
			e := errs[0]
			return fmt.Errorf("%w: field %s failed %q validation", models.ErrNotConfigured, e.Namespace(), e.Tag())
		}
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	return nil
}
