// Package config provides hierarchical configuration loading for quorum.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the quorum engine service.
type Config struct {
	Server    Server     `yaml:"server"`
	Gateway   Gateway    `yaml:"gateway"`
	Engine    Engine     `yaml:"engine"`
	Models    []ModelDef `yaml:"models"`
	NATS      NATS       `yaml:"nats"`
	Postgres  Postgres   `yaml:"postgres"`
	Tools     Tools      `yaml:"tools"`
	Cache     Cache      `yaml:"cache"`
	Breaker   Breaker    `yaml:"breaker"`
	Logging   Logging    `yaml:"logging"`
	Telemetry Telemetry  `yaml:"telemetry"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Gateway holds provider gateway (LiteLLM proxy) configuration.
type Gateway struct {
	URL       string        `yaml:"url"`
	MasterKey string        `yaml:"master_key"`
	Timeout   time.Duration `yaml:"timeout"` // transport-level ceiling per HTTP call
}

// Engine holds the orchestration and consensus engine tunables.
type Engine struct {
	MaxIterations       int           `yaml:"max_iterations"`       // refinement retries after round 0 (default: 2)
	DefaultDeadline     time.Duration `yaml:"default_deadline"`     // used when the query declares none (default: 60s)
	CallRetries         int           `yaml:"call_retries"`         // retries per provider call on transient failure (default: 2)
	MaxTokens           int           `yaml:"max_tokens"`           // completion budget per call (default: 2048)
	Temperature         float64       `yaml:"temperature"`          // sampling temperature for generator calls (default: 0.2)
	DefaultConfidence   float64       `yaml:"default_confidence"`   // assumed when a provider reports none (default: 0.6)
	DivergenceThreshold float64       `yaml:"divergence_threshold"` // pairwise divergence above this caps confidence (default: 0.45)
	ConfidenceCap       float64       `yaml:"confidence_cap"`       // cap applied on high divergence (default: 0.70)
	RetrievalTopK       int           `yaml:"retrieval_top_k"`      // passages injected per prompt (default: 4)
	HealthInterval      time.Duration `yaml:"health_interval"`      // registry refresh period; <=0 disables (default: 30s)
}

// ModelDef declares one available model and its static capability scores.
// The registry turns these into the immutable snapshot each session sees;
// there is no process-global mutable capability table.
type ModelDef struct {
	Name          string             `yaml:"name"`
	Skills        map[string]float64 `yaml:"skills"`          // skill -> capability in [0,1]
	CostPer1KUSD  float64            `yaml:"cost_per_1k_usd"` // blended prompt+completion token cost
	MaxContext    int                `yaml:"max_context"`
	ReportsScores bool               `yaml:"reports_scores"` // provider returns logprob-derived confidence
}

// NATS holds the connection to the out-of-process retrieval worker.
type NATS struct {
	URL string `yaml:"url"` // empty disables retrieval
}

// Postgres holds the session audit archive connection. Empty DSN disables
// archiving.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// Tools holds the MCP tool broker endpoint. Empty URL disables tools.
type Tools struct {
	MCPURL  string        `yaml:"mcp_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Cache holds the in-process completion cache configuration.
type Cache struct {
	MaxSizeMB int64         `yaml:"max_size_mb"`
	TTL       time.Duration `yaml:"ttl"`
}

// Breaker holds circuit breaker configuration for the gateway.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level     string `yaml:"level"`
	Service   string `yaml:"service"`
	Async     bool   `yaml:"async"`
	QueueSize int    `yaml:"queue_size"` // async record queue bound; full queue drops
}

// Telemetry holds OpenTelemetry export configuration.
type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // OTLP gRPC endpoint, host:port
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		Gateway: Gateway{
			URL:     "http://localhost:4000",
			Timeout: 120 * time.Second,
		},
		Engine: Engine{
			MaxIterations:       2,
			DefaultDeadline:     60 * time.Second,
			CallRetries:         2,
			MaxTokens:           2048,
			Temperature:         0.2,
			DefaultConfidence:   0.6,
			DivergenceThreshold: 0.45,
			ConfidenceCap:       0.70,
			RetrievalTopK:       4,
			HealthInterval:      30 * time.Second,
		},
		Models: []ModelDef{
			{
				Name:          "openai/gpt-4o",
				Skills:        map[string]float64{"reasoning": 0.9, "math": 0.85, "coding": 0.9, "research": 0.85, "writing": 0.9},
				CostPer1KUSD:  0.0075,
				MaxContext:    128000,
				ReportsScores: true,
			},
			{
				Name:         "anthropic/claude-sonnet",
				Skills:       map[string]float64{"reasoning": 0.9, "math": 0.8, "coding": 0.92, "research": 0.85, "writing": 0.92},
				CostPer1KUSD: 0.009,
				MaxContext:   200000,
			},
			{
				Name:          "openai/gpt-4o-mini",
				Skills:        map[string]float64{"reasoning": 0.7, "math": 0.65, "coding": 0.7, "research": 0.65, "writing": 0.75},
				CostPer1KUSD:  0.000375,
				MaxContext:    128000,
				ReportsScores: true,
			},
		},
		NATS: NATS{
			URL: "",
		},
		Postgres: Postgres{
			DSN:             "",
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		Tools: Tools{
			MCPURL:  "",
			Timeout: 15 * time.Second,
		},
		Cache: Cache{
			MaxSizeMB: 64,
			TTL:       5 * time.Minute,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Logging: Logging{
			Level:     "info",
			Service:   "quorum-engine",
			QueueSize: 4096,
		},
		Telemetry: Telemetry{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
	}
}
