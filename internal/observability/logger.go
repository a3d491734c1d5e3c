package observability

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// BuildLogger constructs a zap.Logger with the given level and format
// ("json" or "console").
func BuildLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}

// EmitMetricLine writes a single `METRIC key=value` line to w. Known keys
// include graph_stats_ops, graph_stats_channels, ai_inference_us,
// neon_matmul_us. Tests grep for this exact format: no extra spaces, no
// JSON encoding.
func EmitMetricLine(w io.Writer, key string, value interface{}) error {
	_, err := fmt.Fprintf(w, "METRIC %s=%v\n", key, value)
	return err
}
