// Package main — cmd/agentd/main.go
//
// agentcore kernel daemon entrypoint.
//
// Startup sequence:
//  1. Load and validate config from /etc/agentcore/config.yaml.
//  2. Initialise structured logger (zap).
//  3. Open BoltDB audit storage (best-effort: failure is logged, the
//     daemon continues with db == nil — none of the four core
//     components depend on persisted state to function).
//  4. Prune stale decision/prediction ledger entries.
//  5. Start the Prometheus metrics server.
//  6. Create the dataflow graph singleton.
//  7. Construct the crash predictor.
//  8. Construct the LLM session manager (loads the model public key, if
//     configured) and wire it into the graph's LLMRun operator kind.
//  9. Construct the orchestrator's metrics and integrity chain, and
//     start the gRPC remote service if enabled.
// 10. Start the control-plane Unix socket server.
// 11. Register SIGHUP for config hot-reload (logged only; most fields
//     require a restart to take effect safely).
// 12. Block on SIGINT/SIGTERM for graceful shutdown.
//
// On config validation failure: exit 1 immediately.
package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/agentcore/agentcore/internal/config"
	"github.com/agentcore/agentcore/internal/controlplane"
	"github.com/agentcore/agentcore/internal/graph"
	"github.com/agentcore/agentcore/internal/llm"
	"github.com/agentcore/agentcore/internal/observability"
	"github.com/agentcore/agentcore/internal/orchestrator"
	"github.com/agentcore/agentcore/internal/predictor"
	"github.com/agentcore/agentcore/internal/storage"
)

func main() {
	configPath := flag.String("config", "/etc/agentcore/config.yaml", "Path to config.yaml")
	printVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *printVersion {
		fmt.Printf("agentd %s (commit=%s built=%s)\n", config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	log, err := observability.BuildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("agentd starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("node_id", cfg.NodeID),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.Open(cfg.Storage.DBPath, cfg.Storage.RetentionDays)
	if err != nil {
		log.Warn("BoltDB open failed — continuing without audit persistence",
			zap.Error(err), zap.String("path", cfg.Storage.DBPath))
		db = nil
	} else {
		defer db.Close() //nolint:errcheck
		log.Info("BoltDB opened", zap.String("path", cfg.Storage.DBPath))

		if nDec, err := db.PruneOldDecisions(); err != nil {
			log.Warn("decision ledger pruning failed", zap.Error(err))
		} else if nPred, err := db.PruneOldPredictions(); err != nil {
			log.Warn("prediction ledger pruning failed", zap.Error(err))
		} else {
			log.Info("ledgers pruned", zap.Int("decisions_deleted", nDec), zap.Int("predictions_deleted", nPred))
		}
	}

	metrics := observability.NewMetrics()
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	g, err := graph.Create(log)
	if err != nil {
		log.Fatal("graph singleton creation failed", zap.Error(err))
	}
	log.Info("dataflow graph runtime created")

	pred := predictor.New(log)
	log.Info("crash predictor initialised")

	pubKey, err := loadPublicKey(cfg.LLM.ModelPublicKeyPath)
	if err != nil {
		log.Warn("LLM model public key load failed — signature verification disabled", zap.Error(err))
	}
	budget := llm.NewBudget(cfg.LLM.WCETCycles, int64(cfg.LLM.BudgetPeriod), cfg.LLM.MaxTokensPerPeriod)
	llmMgr := llm.NewManager(cfg.LLM.MaxConcurrentInferences, budget, pubKey, log)
	g.Registry().SetLLMRunner(llmRunnerFunc(llmMgr, log))
	log.Info("LLM inference session manager initialised")

	orchMx := orchestrator.NewMetrics()
	integrity := orchestrator.NewIntegrity(log)
	if cfg.Orchestrator.RemoteEnabled {
		remote := orchestrator.NewRemoteService(integrity, log)
		go func() {
			if err := remote.Serve(ctx, cfg.Orchestrator.RemoteListenAddr); err != nil {
				log.Error("orchestrator remote service error", zap.Error(err))
			}
		}()
		log.Info("orchestrator remote service started", zap.String("addr", cfg.Orchestrator.RemoteListenAddr))
	}

	cp := controlplane.NewServer(
		cfg.ControlPlane.SocketPath,
		cfg.ControlPlane.MaxConnections,
		cfg.ControlPlane.MaxRequestBytes,
		llmMgr, pred, orchMx, integrity, db, log,
	)
	go func() {
		if err := cp.ListenAndServe(ctx); err != nil {
			log.Error("control plane server error", zap.Error(err))
		}
	}()
	log.Info("control plane socket listening", zap.String("path", cfg.ControlPlane.SocketPath))

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received — reloading config (process restart required for most fields)...")
			if _, err := config.Load(*configPath); err != nil {
				log.Error("config hot-reload failed — retaining old config", zap.Error(err))
				continue
			}
			log.Info("config file re-validated successfully")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	cancel()
	if err := graph.DestroySingleton(); err != nil {
		log.Warn("graph destroy on shutdown failed", zap.Error(err))
	}
	time.Sleep(200 * time.Millisecond) // let goroutines observe ctx.Done()

	log.Info("agentd shutdown complete")
}

// loadPublicKey reads a raw 32-byte ed25519 public key from path. An
// empty path disables signature verification (returns nil, nil).
func loadPublicKey(path string) (ed25519.PublicKey, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key %q: %w", path, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key %q: want %d bytes, got %d", path, ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// llmRunnerFunc adapts the LLM manager's blocking Infer call to the
// graph's OpFunc signature, so a KindLLMRun operator can sit inside a
// dataflow graph: input tensor bytes are treated as the prompt, and the
// inference's text output becomes the output tensor's payload.
func llmRunnerFunc(mgr *llm.Manager, log *zap.Logger) graph.OpFunc {
	return func(input *graph.Tensor, ctx graph.Context) (*graph.Tensor, error) {
		if input == nil {
			return nil, nil
		}
		result, err := mgr.Infer(string(input.Data), 64, 0)
		if err != nil {
			log.Warn("graph LLMRun operator: inference failed", zap.Error(err))
			return nil, err
		}
		return graph.NewTensor(input.Header.SchemaID, []byte(result.Output)), nil
	}
}
