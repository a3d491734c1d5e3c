// Package observability — metrics.go
//
// Prometheus metrics for the agentcore kernel.
//
// Endpoint: GET /metrics (configurable bind address).
// Format: Prometheus text exposition format (OpenMetrics compatible).
//
// Metric naming convention: agentcore_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for agentcore.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Dataflow graph ───────────────────────────────────────────────────────

	// GraphOpsScheduledTotal counts operator dispatches across all rounds.
	GraphOpsScheduledTotal prometheus.Counter

	// GraphDeadlineMissesTotal counts deterministic-operator deadline misses.
	GraphDeadlineMissesTotal prometheus.Counter

	// GraphDroppedEnqueuesTotal counts tensor drops from schema mismatch
	// (backpressure returns the tensor rather than dropping it).
	GraphDroppedEnqueuesTotal prometheus.Counter

	// GraphQueueDepth is the current max channel depth observed.
	GraphQueueDepth prometheus.Gauge

	// ─── Crash predictor ──────────────────────────────────────────────────────

	// PredictorConfidence is the last computed crash confidence score.
	PredictorConfidence prometheus.Gauge

	// PredictorOOMSignalsTotal counts allocation-failure signals observed.
	PredictorOOMSignalsTotal prometheus.Counter

	// ─── LLM inference ────────────────────────────────────────────────────────

	// LLMInferencesTotal counts completed inference calls, by terminal state.
	LLMInferencesTotal *prometheus.CounterVec

	// LLMTokensEmittedTotal counts tokens emitted across all inferences.
	LLMTokensEmittedTotal prometheus.Counter

	// LLMDeadlineMissesTotal counts inferences exceeding their WCET budget.
	LLMDeadlineMissesTotal prometheus.Counter

	// LLMJitterP99Seconds records the p99 inter-token jitter.
	LLMJitterP99Seconds prometheus.Gauge

	// ─── Orchestrator ─────────────────────────────────────────────────────────

	// OrchestratorDecisionsTotal counts Coordinate outcomes, by kind.
	OrchestratorDecisionsTotal *prometheus.CounterVec

	// OrchestratorLatencySeconds records Coordinate call latency.
	OrchestratorLatencySeconds prometheus.Histogram

	// ─── Storage ──────────────────────────────────────────────────────────────

	// StorageWriteLatency records BoltDB write transaction latency.
	StorageWriteLatency prometheus.Histogram

	// StorageLedgerEntries is the current number of ledger entries.
	StorageLedgerEntries prometheus.Gauge

	// ─── Kernel ───────────────────────────────────────────────────────────────

	// KernelUptimeSeconds is the number of seconds since the daemon started.
	KernelUptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers all agentcore Prometheus metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		GraphOpsScheduledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "graph",
			Name:      "ops_scheduled_total",
			Help:      "Total operator dispatches across all scheduling rounds.",
		}),
		GraphDeadlineMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "graph",
			Name:      "deadline_misses_total",
			Help:      "Total deterministic-operator deadline misses.",
		}),
		GraphDroppedEnqueuesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "graph",
			Name:      "dropped_enqueues_total",
			Help:      "Total tensor drops from schema mismatch.",
		}),
		GraphQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentcore",
			Subsystem: "graph",
			Name:      "queue_depth_max",
			Help:      "Maximum channel depth observed by the active graph.",
		}),

		PredictorConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentcore",
			Subsystem: "predictor",
			Name:      "confidence",
			Help:      "Last computed crash confidence score in [0,1].",
		}),
		PredictorOOMSignalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "predictor",
			Name:      "oom_signals_total",
			Help:      "Total allocation-failure signals observed.",
		}),

		LLMInferencesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "llm",
			Name:      "inferences_total",
			Help:      "Total completed inference calls, by terminal state.",
		}, []string{"state"}),
		LLMTokensEmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "llm",
			Name:      "tokens_emitted_total",
			Help:      "Total tokens emitted across all inferences.",
		}),
		LLMDeadlineMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "llm",
			Name:      "deadline_misses_total",
			Help:      "Total inferences exceeding their WCET budget.",
		}),
		LLMJitterP99Seconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentcore",
			Subsystem: "llm",
			Name:      "jitter_p99_seconds",
			Help:      "p99 inter-token jitter across recent inferences.",
		}),

		OrchestratorDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "orchestrator",
			Name:      "decisions_total",
			Help:      "Total Coordinate outcomes, by kind.",
		}, []string{"kind"}),
		OrchestratorLatencySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agentcore",
			Subsystem: "orchestrator",
			Name:      "coordinate_latency_seconds",
			Help:      "Coordinate call latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		StorageWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agentcore",
			Subsystem: "storage",
			Name:      "write_latency_seconds",
			Help:      "BoltDB write transaction latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		StorageLedgerEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentcore",
			Subsystem: "storage",
			Name:      "ledger_entries",
			Help:      "Current number of audit ledger entries in BoltDB.",
		}),

		KernelUptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentcore",
			Subsystem: "kernel",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the daemon started.",
		}),
	}

	reg.MustRegister(
		m.GraphOpsScheduledTotal,
		m.GraphDeadlineMissesTotal,
		m.GraphDroppedEnqueuesTotal,
		m.GraphQueueDepth,
		m.PredictorConfidence,
		m.PredictorOOMSignalsTotal,
		m.LLMInferencesTotal,
		m.LLMTokensEmittedTotal,
		m.LLMDeadlineMissesTotal,
		m.LLMJitterP99Seconds,
		m.OrchestratorDecisionsTotal,
		m.OrchestratorLatencySeconds,
		m.StorageWriteLatency,
		m.StorageLedgerEntries,
		m.KernelUptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server on addr. Blocks
// until ctx is cancelled or the server fails.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.KernelUptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
