// Package config implements the substrate's configuration surface
// (§6 "Configuration surface"): a YAML-backed Config struct, an
// environment-variable overlay, and a precedence chain of
// explicit call args > environment > config file > defaults. Follows
// the Load/applyEnvOverrides/applyDefaults/validateConfig pipeline shape
// of a config/loader.go pairing, generalized
// from a channel/gateway/LLM surface to the substrate's
// profile/budget/retry/observability/memory surface.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProfileConfig is one guardrail profile's allowlist and budget,
// keyed by profile name in Config.Guardrail (§4.7).
type ProfileConfig struct {
	ToolAllowlist          []string `yaml:"tool_allowlist"`
	BudgetMaxCost          float64  `yaml:"budget_max_cost"`
	BudgetMaxCalls         int      `yaml:"budget_max_calls"`
	BudgetMaxTokens        int      `yaml:"budget_max_tokens"`
	BudgetPolicy           string   `yaml:"budget_policy"` // "warn" | "block"
	BudgetWarningThreshold float64  `yaml:"budget_warning_threshold"`
	RequireApproval        []string `yaml:"require_approval"`
}

// RetryConfig mirrors internal/retry.Policy (§4.4.4).
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       float64       `yaml:"jitter"`
}

// ObservabilityConfig holds the observability keys (§4.5, §6).
// cmd/substrated passes BufferSize to internal/observability.CollectorConfig
// and OTLPEndpoint/TraceSampling to TraceConfig; AutoExport is parsed but
// not read by any package.
type ObservabilityConfig struct {
	BufferSize     int    `yaml:"buffer_size"`
	AutoExport     bool   `yaml:"auto_export"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	TraceSampling  float64 `yaml:"trace_sampling"`
}

// MemoryConfig selects and configures the vector memory backend
// (§4.6 "Vector backends (embedded or external)").
type MemoryConfig struct {
	Backend   string `yaml:"backend"` // "local" | "redis"
	StatePath string `yaml:"state_path"`
	RedisAddr string `yaml:"redis_addr"`
	TopK      int    `yaml:"top_k"`
}

// ServerConfig configures cmd/substrated's transport adapter (§6).
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// Config is the substrate's full configuration surface (§6 "recognized
// keys"). Every field has a yaml tag so FieldNameTag: "yaml" reflection
// in JSONSchema produces a self-describing schema matching the
// config file's own vocabulary.
type Config struct {
	Profile   string                   `yaml:"profile"`
	MaxSteps  int                      `yaml:"max_steps"`
	Server    ServerConfig             `yaml:"server"`
	Retry     RetryConfig              `yaml:"retry"`
	Observability ObservabilityConfig  `yaml:"observability"`
	Memory    MemoryConfig             `yaml:"memory"`
	Guardrail map[string]ProfileConfig `yaml:"guardrail"`
}

// Load reads path, applies environment overrides, fills defaults, and
// validates the result, following the Load/applyEnvOverrides/
// applyDefaults/validateConfig pipeline shape.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config: %q must contain a single YAML document", path)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides layers SUBSTRATE_* environment variables over the
// file-loaded config (§6 precedence: "environment > config file").
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv("SUBSTRATE_PROFILE")); v != "" {
		cfg.Profile = v
	}
	if v := strings.TrimSpace(os.Getenv("SUBSTRATE_MAX_STEPS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.MaxSteps = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("SUBSTRATE_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("SUBSTRATE_HTTP_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("SUBSTRATE_METRICS_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("SUBSTRATE_OTLP_ENDPOINT")); v != "" {
		cfg.Observability.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("SUBSTRATE_MEMORY_BACKEND")); v != "" {
		cfg.Memory.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("SUBSTRATE_REDIS_ADDR")); v != "" {
		cfg.Memory.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("SUBSTRATE_RETRY_MAX_ATTEMPTS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxAttempts = parsed
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Profile == "" {
		cfg.Profile = "default"
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 10
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry.InitialDelay = 2 * time.Second
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = 60 * time.Second
	}
	if cfg.Retry.Multiplier <= 0 {
		cfg.Retry.Multiplier = 2.0
	}
	if cfg.Retry.Jitter <= 0 {
		cfg.Retry.Jitter = 0.2
	}
	if cfg.Observability.BufferSize <= 0 {
		cfg.Observability.BufferSize = 1000
	}
	if cfg.Memory.Backend == "" {
		cfg.Memory.Backend = "local"
	}
	if cfg.Memory.TopK <= 0 {
		cfg.Memory.TopK = 5
	}
	for name, profile := range cfg.Guardrail {
		if profile.BudgetPolicy == "" {
			profile.BudgetPolicy = "warn"
		}
		if profile.BudgetWarningThreshold <= 0 {
			profile.BudgetWarningThreshold = 0.8
		}
		cfg.Guardrail[name] = profile
	}
}

// ValidationError aggregates every recognized-keys violation found by
// validate, mirroring a ConfigValidationError shape.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %d validation issue(s): %s", len(e.Issues), strings.Join(e.Issues, "; "))
}

func validate(cfg *Config) error {
	var issues []string
	if cfg.MaxSteps < 1 {
		issues = append(issues, "max_steps must be >= 1")
	}
	if cfg.Memory.Backend != "local" && cfg.Memory.Backend != "redis" {
		issues = append(issues, fmt.Sprintf("memory.backend must be \"local\" or \"redis\", got %q", cfg.Memory.Backend))
	}
	if cfg.Memory.Backend == "redis" && strings.TrimSpace(cfg.Memory.RedisAddr) == "" {
		issues = append(issues, "memory.redis_addr is required when memory.backend is \"redis\"")
	}
	for name, profile := range cfg.Guardrail {
		if profile.BudgetPolicy != "" && profile.BudgetPolicy != "warn" && profile.BudgetPolicy != "block" {
			issues = append(issues, fmt.Sprintf("guardrail[%s].budget_policy must be \"warn\" or \"block\", got %q", name, profile.BudgetPolicy))
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// Resolve applies the final layer of the precedence chain (§6 "explicit
// call args > environment > config file > defaults") for Profile and
// MaxSteps: a non-empty Profile or positive MaxSteps on overrides wins
// over cfg's resolved value. No other field of overrides is read; the
// result keeps cfg's values for them. Callers pass a sparse Config built
// from explicit request-level arguments (e.g. a transport adapter's own
// --max-steps flag).
func Resolve(cfg Config, overrides Config) Config {
	resolved := cfg
	if overrides.Profile != "" {
		resolved.Profile = overrides.Profile
	}
	if overrides.MaxSteps > 0 {
		resolved.MaxSteps = overrides.MaxSteps
	}
	return resolved
}
