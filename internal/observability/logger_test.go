package observability

import (
	"bytes"
	"strings"
	"testing"
)

func TestEmitMetricLine_ExactFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := EmitMetricLine(&buf, "graph_stats_ops", 42); err != nil {
		t.Fatalf("EmitMetricLine: %v", err)
	}
	want := "METRIC graph_stats_ops=42\n"
	if got := buf.String(); got != want {
		t.Fatalf("EmitMetricLine output = %q, want %q", got, want)
	}
}

func TestEmitMetricLine_NoExtraSpaces(t *testing.T) {
	var buf bytes.Buffer
	_ = EmitMetricLine(&buf, "ai_inference_us", 1250)
	if strings.Contains(buf.String(), "  ") {
		t.Fatalf("EmitMetricLine output contains double spaces: %q", buf.String())
	}
}

func TestBuildLogger_RejectsBadLevel(t *testing.T) {
	if _, err := BuildLogger("not-a-level", "json"); err == nil {
		t.Fatalf("BuildLogger with invalid level: want error, got nil")
	}
}

func TestBuildLogger_JSONAndConsole(t *testing.T) {
	if _, err := BuildLogger("info", "json"); err != nil {
		t.Fatalf("BuildLogger json: %v", err)
	}
	if _, err := BuildLogger("debug", "console"); err != nil {
		t.Fatalf("BuildLogger console: %v", err)
	}
}
