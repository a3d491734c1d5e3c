// Package config provides configuration loading and validation for the
// agentcore kernel.
//
// Configuration file: /etc/agentcore/config.yaml (default)
// Schema version: 1
//
// Validation:
//   - All required fields must be present.
//   - Numeric ranges enforced (weights, thresholds, capacities).
//   - Invalid config on startup: the daemon refuses to start (fatal error).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected by the build via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for agentcore.
type Config struct {
	// SchemaVersion must be "1".
	SchemaVersion string `yaml:"schema_version"`

	// NodeID identifies this kernel instance; agentd logs it at startup.
	// Audit and RPC records do not carry it. Default: hostname.
	NodeID string `yaml:"node_id"`

	Graph         GraphConfig         `yaml:"graph"`
	Predictor     PredictorConfig     `yaml:"predictor"`
	LLM           LLMConfig           `yaml:"llm"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
	ControlPlane  ControlPlaneConfig  `yaml:"control_plane"`
}

// GraphConfig holds dataflow graph runtime parameters.
type GraphConfig struct {
	// DefaultChannelCapacity is checked by Validate only; add-channel
	// always carries its own capacity and no component reads this field.
	// Default: 16.
	DefaultChannelCapacity int `yaml:"default_channel_capacity"`

	// MaxChannelCapacity is checked by Validate only; the graph enforces
	// its own fixed 1..=65535 bound and does not read this field.
	// Default: 65535.
	MaxChannelCapacity int `yaml:"max_channel_capacity"`
}

// PredictorConfig holds crash predictor parameters. The fields are
// checked by Validate only: predictor.New does not take them and uses its
// built-in values (100 samples, 10 minimum samples, auto-compact at 0.9).
type PredictorConfig struct {
	// HistoryCapacity is the number of AllocMetrics samples to retain.
	// Default: 100.
	HistoryCapacity int `yaml:"history_capacity"`

	// MinSamplesForSignal is the history length below which prediction
	// yields no signal. Default: 10.
	MinSamplesForSignal int `yaml:"min_samples_for_signal"`

	// AutoCompactThreshold is the confidence level for auto-compaction.
	// Default: 0.9.
	AutoCompactThreshold float64 `yaml:"auto_compact_threshold"`
}

// LLMConfig holds inference session manager parameters.
type LLMConfig struct {
	// MaxConcurrentInferences bounds in-flight Infer/InferStream calls.
	// Default: 4.
	MaxConcurrentInferences int `yaml:"max_concurrent_inferences"`

	// MaxTokensPerPeriod is the token budget's per-period admission cap.
	// 0 disables the cap. Default: 0.
	MaxTokensPerPeriod int `yaml:"max_tokens_per_period"`

	// BudgetPeriod is the token budget's rollover period.
	// Default: 60s.
	BudgetPeriod time.Duration `yaml:"budget_period"`

	// WCETCycles is the per-inference worst-case-execution-time budget
	// used to flag deadline misses. Default: 0 (disabled).
	WCETCycles uint64 `yaml:"wcet_cycles"`

	// ModelPublicKeyPath is the path to the ed25519 public key (raw 32
	// bytes) used to verify model package signatures. Empty disables
	// signature verification (development mode only).
	ModelPublicKeyPath string `yaml:"model_public_key_path"`
}

// OrchestratorConfig holds multi-agent coordination parameters.
type OrchestratorConfig struct {
	// SafetyConfidenceThreshold is checked by Validate only; Coordinate
	// uses its built-in 0.8 safety-override threshold and does not read
	// this field. Default: 0.8.
	SafetyConfidenceThreshold float64 `yaml:"safety_confidence_threshold"`

	// ConfidenceDisparityThreshold is checked by Validate only; Coordinate
	// uses its built-in 0.4 disparity threshold and does not read this
	// field. Default: 0.4.
	ConfidenceDisparityThreshold float64 `yaml:"confidence_disparity_threshold"`

	// RemoteEnabled starts the gRPC RemoteService alongside the control
	// plane. Default: false.
	RemoteEnabled bool `yaml:"remote_enabled"`

	// RemoteListenAddr is the gRPC listen address when RemoteEnabled.
	// Default: 127.0.0.1:9444.
	RemoteListenAddr string `yaml:"remote_listen_addr"`
}

// StorageConfig holds BoltDB parameters.
type StorageConfig struct {
	// DBPath is the absolute path to the BoltDB file.
	// Default: /var/lib/agentcore/agentcore.db.
	DBPath string `yaml:"db_path"`

	// RetentionDays is the audit/prediction ledger retention period.
	// Default: 30.
	RetentionDays int `yaml:"retention_days"`
}

// DefaultDBPath mirrors the storage package constant for use in defaults.
const DefaultDBPath = "/var/lib/agentcore/agentcore.db"

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	// Default: 127.0.0.1:9191.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	// Default: info.
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	// Default: json.
	LogFormat string `yaml:"log_format"`
}

// ControlPlaneConfig holds the Unix-domain-socket control server parameters.
type ControlPlaneConfig struct {
	// SocketPath is the Unix domain socket path agentctl connects to.
	// Default: /run/agentcore/control.sock.
	SocketPath string `yaml:"socket_path"`

	// MaxConnections bounds concurrent control-plane clients.
	// Default: 16.
	MaxConnections int `yaml:"max_connections"`

	// MaxRequestBytes bounds the bytes read for one request (a whole
	// binary frame or JSON line).
	// Default: 1048576 (1 MiB).
	MaxRequestBytes int `yaml:"max_request_bytes"`
}

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		NodeID:        hostname,
		Graph: GraphConfig{
			DefaultChannelCapacity: 16,
			MaxChannelCapacity:     65535,
		},
		Predictor: PredictorConfig{
			HistoryCapacity:      100,
			MinSamplesForSignal:  10,
			AutoCompactThreshold: 0.9,
		},
		LLM: LLMConfig{
			MaxConcurrentInferences: 4,
			MaxTokensPerPeriod:      0,
			BudgetPeriod:            60 * time.Second,
			WCETCycles:              0,
		},
		Orchestrator: OrchestratorConfig{
			SafetyConfidenceThreshold:    0.8,
			ConfidenceDisparityThreshold: 0.4,
			RemoteEnabled:                false,
			RemoteListenAddr:             "127.0.0.1:9444",
		},
		Storage: StorageConfig{
			DBPath:        DefaultDBPath,
			RetentionDays: 30,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9191",
			LogLevel:    "info",
			LogFormat:   "json",
		},
		ControlPlane: ControlPlaneConfig{
			SocketPath:      "/run/agentcore/control.sock",
			MaxConnections:  16,
			MaxRequestBytes: 1 << 20,
		},
	}
}

// Load reads and validates a config file from the given path.
// Returns the merged config (defaults overridden by file values).
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness.
// Returns a descriptive error listing all violations found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.NodeID == "" {
		errs = append(errs, "node_id must not be empty")
	}
	if cfg.Graph.DefaultChannelCapacity < 1 {
		errs = append(errs, fmt.Sprintf("graph.default_channel_capacity must be >= 1, got %d", cfg.Graph.DefaultChannelCapacity))
	}
	if cfg.Graph.MaxChannelCapacity < cfg.Graph.DefaultChannelCapacity {
		errs = append(errs, "graph.max_channel_capacity must be >= graph.default_channel_capacity")
	}
	if cfg.Predictor.HistoryCapacity < 1 {
		errs = append(errs, fmt.Sprintf("predictor.history_capacity must be >= 1, got %d", cfg.Predictor.HistoryCapacity))
	}
	if cfg.Predictor.MinSamplesForSignal < 1 || cfg.Predictor.MinSamplesForSignal > cfg.Predictor.HistoryCapacity {
		errs = append(errs, "predictor.min_samples_for_signal must be in [1, predictor.history_capacity]")
	}
	if cfg.Predictor.AutoCompactThreshold < 0 || cfg.Predictor.AutoCompactThreshold > 1 {
		errs = append(errs, fmt.Sprintf("predictor.auto_compact_threshold must be in [0.0, 1.0], got %f", cfg.Predictor.AutoCompactThreshold))
	}
	if cfg.LLM.MaxConcurrentInferences < 1 {
		errs = append(errs, fmt.Sprintf("llm.max_concurrent_inferences must be >= 1, got %d", cfg.LLM.MaxConcurrentInferences))
	}
	if cfg.LLM.MaxTokensPerPeriod < 0 {
		errs = append(errs, "llm.max_tokens_per_period must be >= 0")
	}
	if cfg.LLM.BudgetPeriod < 0 {
		errs = append(errs, "llm.budget_period must be >= 0")
	}
	if cfg.Orchestrator.SafetyConfidenceThreshold < 0 || cfg.Orchestrator.SafetyConfidenceThreshold > 1 {
		errs = append(errs, fmt.Sprintf("orchestrator.safety_confidence_threshold must be in [0.0, 1.0], got %f", cfg.Orchestrator.SafetyConfidenceThreshold))
	}
	if cfg.Orchestrator.ConfidenceDisparityThreshold < 0 || cfg.Orchestrator.ConfidenceDisparityThreshold > 1 {
		errs = append(errs, fmt.Sprintf("orchestrator.confidence_disparity_threshold must be in [0.0, 1.0], got %f", cfg.Orchestrator.ConfidenceDisparityThreshold))
	}
	if cfg.Orchestrator.RemoteEnabled && cfg.Orchestrator.RemoteListenAddr == "" {
		errs = append(errs, "orchestrator.remote_listen_addr is required when orchestrator.remote_enabled is true")
	}
	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path must not be empty")
	}
	if cfg.Storage.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("storage.retention_days must be >= 1, got %d", cfg.Storage.RetentionDays))
	}
	if cfg.ControlPlane.SocketPath == "" {
		errs = append(errs, "control_plane.socket_path must not be empty")
	}
	if cfg.ControlPlane.MaxConnections < 1 {
		errs = append(errs, fmt.Sprintf("control_plane.max_connections must be >= 1, got %d", cfg.ControlPlane.MaxConnections))
	}
	if cfg.ControlPlane.MaxRequestBytes < 1 {
		errs = append(errs, fmt.Sprintf("control_plane.max_request_bytes must be >= 1, got %d", cfg.ControlPlane.MaxRequestBytes))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", joinStrings(errs, "\n  - "))
	}
	return nil
}

// joinStrings joins a slice of strings with a separator.
func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
