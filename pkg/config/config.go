// Package config provides unified configuration for the codeloop service.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (CODELOOP_ prefix)
//  4. Backward-compatible env var mapping for legacy variable names
//  5. File reference resolution (_file suffix fields)
//  6. Validation
package config

import "time"

// Config holds all configuration for the codeloop service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Generator     GeneratorConfig     `yaml:"generator"`
	Workflow      WorkflowConfig      `yaml:"workflow"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 120s
}

// GeneratorConfig holds LLM backend settings for code generation.
type GeneratorConfig struct {
	BackendURL  string  `yaml:"backend_url"`  // required
	APIKey      string  `yaml:"api_key"`      // optional
	APIKeyFile  string  `yaml:"api_key_file"` // _file variant for api_key
	Model       string  `yaml:"model"`        // required
	Temperature float64 `yaml:"temperature"`  // default: 0
}

// WorkflowConfig holds retry loop settings.
type WorkflowConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`      // default: 10
	ExecutionTimeout time.Duration `yaml:"execution_timeout"` // default: 240s
	OptimizePrompt   bool          `yaml:"optimize_prompt"`   // default: true
	ScanRequirements bool          `yaml:"scan_requirements"` // default: true
	MaxConcurrent    int           `yaml:"max_concurrent"`    // default: 4
}

// SandboxConfig holds execution sandbox settings.
type SandboxConfig struct {
	// Mode selects the executor: "url" (static sandbox server), "claim"
	// (Kubernetes SandboxClaim CRDs) or "local" (host subprocess,
	// development only). Default: "url".
	Mode string `yaml:"mode"`

	// URL is the static sandbox server URL for mode=url.
	URL string `yaml:"url"`

	// Template is the SandboxTemplate CRD name for mode=claim.
	Template string `yaml:"template"`

	// Namespace is the Kubernetes namespace for SandboxClaims.
	Namespace string `yaml:"namespace"`

	// ClaimTimeout bounds the wait for a SandboxClaim to become ready.
	ClaimTimeout time.Duration `yaml:"claim_timeout"` // default: 30s

	// AllowLocal must be set for mode=local to actually execute.
	AllowLocal bool `yaml:"allow_local"`
}

// StorageConfig holds task persistence settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type    string         `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys"` // API key entries for type=apikey
	JWT     JWTConfig      `yaml:"jwt"`      // settings for type=jwt
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key     string `yaml:"key"`
	KeyFile string `yaml:"key_file"` // _file variant for key
	Subject string `yaml:"subject"`
}

// JWTConfig holds JWT validation settings.
type JWTConfig struct {
	Secret     string `yaml:"secret"`
	SecretFile string `yaml:"secret_file"` // _file variant for secret
	Issuer     string `yaml:"issuer"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Generator: GeneratorConfig{},
		Workflow: WorkflowConfig{
			MaxAttempts:      10,
			ExecutionTimeout: 240 * time.Second,
			OptimizePrompt:   true,
			ScanRequirements: true,
			MaxConcurrent:    4,
		},
		Sandbox: SandboxConfig{
			Mode:         "url",
			ClaimTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
