package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for missing or contradictory
// settings and returns all problems joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Generator.BackendURL == "" {
		errs = append(errs, fmt.Errorf("generator.backend_url is required"))
	}
	if c.Generator.Model == "" {
		errs = append(errs, fmt.Errorf("generator.model is required"))
	}

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	if c.Workflow.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("workflow.max_attempts must be > 0, got %d", c.Workflow.MaxAttempts))
	}
	if c.Workflow.ExecutionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("workflow.execution_timeout must be > 0"))
	}

	switch c.Sandbox.Mode {
	case "url":
		if c.Sandbox.URL == "" {
			errs = append(errs, fmt.Errorf("sandbox.url is required when sandbox.mode is \"url\""))
		}
	case "claim":
		if c.Sandbox.Template == "" {
			errs = append(errs, fmt.Errorf("sandbox.template is required when sandbox.mode is \"claim\""))
		}
		if c.Sandbox.Namespace == "" {
			errs = append(errs, fmt.Errorf("sandbox.namespace is required when sandbox.mode is \"claim\""))
		}
	case "local":
		// allow_local is checked at executor construction so a
		// misconfigured deployment fails loudly at startup.
		if !c.Sandbox.AllowLocal {
			errs = append(errs, fmt.Errorf("sandbox.allow_local must be true when sandbox.mode is \"local\""))
		}
	default:
		errs = append(errs, fmt.Errorf("sandbox.mode must be \"url\", \"claim\" or \"local\", got %q", c.Sandbox.Mode))
	}

	switch c.Storage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	switch c.Auth.Type {
	case "none", "apikey", "jwt":
		// valid
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}
	if c.Auth.Type == "apikey" && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
	}
	if c.Auth.Type == "jwt" && c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.secret or auth.jwt.secret_file is required when auth.type is \"jwt\""))
	}

	return errors.Join(errs...)
}
