package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "quorum.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	// A models list in the file replaces the defaults rather than merging
	// with them, so clear the defaults before unmarshalling when present.
	var probe struct {
		Models []ModelDef `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &probe); err == nil && len(probe.Models) > 0 {
		cfg.Models = nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "QUORUM_PORT")
	setString(&cfg.Server.CORSOrigin, "QUORUM_CORS_ORIGIN")
	setString(&cfg.Gateway.URL, "QUORUM_GATEWAY_URL")
	setString(&cfg.Gateway.MasterKey, "QUORUM_GATEWAY_MASTER_KEY")
	setDuration(&cfg.Gateway.Timeout, "QUORUM_GATEWAY_TIMEOUT")
	setInt(&cfg.Engine.MaxIterations, "QUORUM_ENGINE_MAX_ITERATIONS")
	setDuration(&cfg.Engine.DefaultDeadline, "QUORUM_ENGINE_DEFAULT_DEADLINE")
	setInt(&cfg.Engine.CallRetries, "QUORUM_ENGINE_CALL_RETRIES")
	setInt(&cfg.Engine.MaxTokens, "QUORUM_ENGINE_MAX_TOKENS")
	setFloat64(&cfg.Engine.Temperature, "QUORUM_ENGINE_TEMPERATURE")
	setFloat64(&cfg.Engine.DefaultConfidence, "QUORUM_ENGINE_DEFAULT_CONFIDENCE")
	setFloat64(&cfg.Engine.DivergenceThreshold, "QUORUM_ENGINE_DIVERGENCE_THRESHOLD")
	setFloat64(&cfg.Engine.ConfidenceCap, "QUORUM_ENGINE_CONFIDENCE_CAP")
	setInt(&cfg.Engine.RetrievalTopK, "QUORUM_ENGINE_RETRIEVAL_TOP_K")
	setDuration(&cfg.Engine.HealthInterval, "QUORUM_ENGINE_HEALTH_INTERVAL")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "QUORUM_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "QUORUM_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "QUORUM_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "QUORUM_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "QUORUM_PG_HEALTH_CHECK")
	setString(&cfg.Tools.MCPURL, "QUORUM_TOOLS_MCP_URL")
	setDuration(&cfg.Tools.Timeout, "QUORUM_TOOLS_TIMEOUT")
	setInt64(&cfg.Cache.MaxSizeMB, "QUORUM_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "QUORUM_CACHE_TTL")
	setInt(&cfg.Breaker.MaxFailures, "QUORUM_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "QUORUM_BREAKER_TIMEOUT")
	setString(&cfg.Logging.Level, "QUORUM_LOG_LEVEL")
	setString(&cfg.Logging.Service, "QUORUM_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "QUORUM_LOG_ASYNC")
	setInt(&cfg.Logging.QueueSize, "QUORUM_LOG_QUEUE_SIZE")
	setBool(&cfg.Telemetry.Enabled, "QUORUM_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "QUORUM_OTEL_ENDPOINT")
}

// validate checks that required fields are set and tunables are sane.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Gateway.URL == "" {
		return errors.New("gateway.url is required")
	}
	if len(cfg.Models) == 0 {
		return errors.New("at least one model must be configured")
	}
	for i := range cfg.Models {
		if cfg.Models[i].Name == "" {
			return fmt.Errorf("models[%d].name is required", i)
		}
	}
	if cfg.Engine.MaxIterations < 0 {
		return errors.New("engine.max_iterations must be >= 0")
	}
	if cfg.Engine.CallRetries < 0 {
		return errors.New("engine.call_retries must be >= 0")
	}
	if cfg.Engine.DivergenceThreshold <= 0 || cfg.Engine.DivergenceThreshold > 1 {
		return errors.New("engine.divergence_threshold must be in (0, 1]")
	}
	if cfg.Engine.ConfidenceCap <= 0 || cfg.Engine.ConfidenceCap > 1 {
		return errors.New("engine.confidence_cap must be in (0, 1]")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
