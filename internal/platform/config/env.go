// Package config loads service configuration from the environment.
// Every GWI_POS_ variable is declared as a struct tag next to the field
// it fills, so each command's Config is the single inventory of its
// knobs.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target from environment variables declared in its
// `env` struct tags, applying any `envDefault` values first.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
