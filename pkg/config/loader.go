package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, CODELOOP_CONFIG env, ./config.yaml, /etc/codeloop/config.yaml)
//  3. Environment variable overrides, including legacy variable names
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	// Apply environment variable overrides.
	applyEnvOverrides(&cfg)

	// Resolve _file references.
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. CODELOOP_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/codeloop/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("CODELOOP_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/codeloop/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps environment variables to config fields. The
// CODELOOP_* names are the primary surface; PRIMARY_MODEL_NAME,
// MAX_RETRY_ITERATIONS, MAX_CODE_TIMEOUT and OPENAI_API_KEY are kept
// for compatibility with earlier deployments.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CODELOOP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CODELOOP_BACKEND_URL"); v != "" {
		cfg.Generator.BackendURL = v
	}
	if v := os.Getenv("CODELOOP_MODEL"); v != "" {
		cfg.Generator.Model = v
	}
	if v := os.Getenv("CODELOOP_API_KEY"); v != "" {
		cfg.Generator.APIKey = v
	}
	if v := os.Getenv("CODELOOP_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workflow.MaxAttempts = n
		}
	}
	if v := os.Getenv("CODELOOP_EXECUTION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Workflow.ExecutionTimeout = d
		}
	}
	if v := os.Getenv("CODELOOP_SANDBOX_URL"); v != "" {
		cfg.Sandbox.Mode = "url"
		cfg.Sandbox.URL = v
	}
	if v := os.Getenv("CODELOOP_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("CODELOOP_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}

	// Legacy names from earlier deployments.
	if v := os.Getenv("PRIMARY_MODEL_NAME"); v != "" && os.Getenv("CODELOOP_MODEL") == "" {
		cfg.Generator.Model = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && os.Getenv("CODELOOP_API_KEY") == "" {
		cfg.Generator.APIKey = v
	}
	if v := os.Getenv("MAX_RETRY_ITERATIONS"); v != "" && os.Getenv("CODELOOP_MAX_ATTEMPTS") == "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workflow.MaxAttempts = n
		}
	}
	// MAX_CODE_TIMEOUT is seconds, not a duration string.
	if v := os.Getenv("MAX_CODE_TIMEOUT"); v != "" && os.Getenv("CODELOOP_EXECUTION_TIMEOUT") == "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workflow.ExecutionTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("ALLOW_LOCAL_EXECUTION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Sandbox.AllowLocal = b
		}
	}
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// generator.api_key_file -> generator.api_key
	if cfg.Generator.APIKeyFile != "" && cfg.Generator.APIKey == "" {
		val, err := readSecretFile(cfg.Generator.APIKeyFile)
		if err != nil {
			return fmt.Errorf("generator.api_key_file: %w", err)
		}
		cfg.Generator.APIKey = val
	}

	// storage.postgres.dsn_file -> storage.postgres.dsn
	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	// auth.api_keys[*].key_file -> auth.api_keys[*].key
	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	// auth.jwt.secret_file -> auth.jwt.secret
	if cfg.Auth.JWT.SecretFile != "" && cfg.Auth.JWT.Secret == "" {
		val, err := readSecretFile(cfg.Auth.JWT.SecretFile)
		if err != nil {
			return fmt.Errorf("auth.jwt.secret_file: %w", err)
		}
		cfg.Auth.JWT.Secret = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
