// Package controlplane — server.go
//
// Unix domain socket server for agentctl, handling two wire formats on
// the same socket:
//
//   - A connection whose first byte is the control-frame magic ('C',
//     0x43) is read as exactly one binary control frame (spec §6):
//     graph_create, add_channel, add_operator(_typed), run_steps,
//     set_deterministic. These are the only operations the spec gives a
//     fixed binary layout for.
//   - Any other connection is read as exactly one JSON request/response
//     pair, newline-delimited, for everything else the CLI surface
//     exposes: llmctl, llminfer/llmstream/llmpoll/llmcancel, and the
//     graphctl subcommands with no binary frame (destroy, stats, show,
//     export-json, predict).
//
// This split is not spelled out verbatim anywhere; it follows directly
// from the spec defining a byte-exact frame layout only for the six
// graph-mutation commands and leaving everything else to "the CLI talks
// to the daemon".
//
// Connection handling: socket created 0600, bounded concurrent
// connections, bounded request size, per-connection deadline.
package controlplane

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentcore/agentcore/internal/graph"
	"github.com/agentcore/agentcore/internal/llm"
	"github.com/agentcore/agentcore/internal/orchestrator"
	"github.com/agentcore/agentcore/internal/predictor"
	"github.com/agentcore/agentcore/internal/storage"
)

const connTimeout = 10 * time.Second

// Request is the JSON structure for every non-frame control-plane
// command.
type Request struct {
	Cmd string `json:"cmd"`

	// llmctl.load. ModelPath is a filesystem path the daemon reads the
	// raw model package bytes from directly (spec §6: "LLM model bytes
	// are consumed from a filesystem path supplied by the loader") —
	// the socket carries only the path and its expected hash/signature,
	// never the (potentially multi-gigabyte) model bytes themselves.
	ModelID   string `json:"model_id,omitempty"`
	ModelPath string `json:"model_path,omitempty"`
	HashHex   string `json:"hash_hex,omitempty"`
	SigHex    string `json:"sig_hex,omitempty"`

	// llmctl.budget
	WCETCycles         uint64 `json:"wcet_cycles,omitempty"`
	PeriodNs           int64  `json:"period_ns,omitempty"`
	MaxTokensPerPeriod int    `json:"max_tokens_per_period,omitempty"`

	// llminfer / llmstream
	Prompt    string `json:"prompt,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	Chunk     int    `json:"chunk,omitempty"`

	// llmpoll / llmcancel
	SessionID uint64 `json:"session_id,omitempty"`
	Max       int    `json:"max,omitempty"`

	// graphctl.predict
	OpID      uint32 `json:"op_id,omitempty"`
	LatencyUs int64  `json:"latency_us,omitempty"`
	Depth     int    `json:"depth,omitempty"`
	Priority  uint8  `json:"priority,omitempty"`

	// orchestrator.coordinate
	Decisions []orchestrator.Decision `json:"decisions,omitempty"`
}

// Response is the JSON structure returned for every command, frame-based
// or not.
type Response struct {
	OK     bool        `json:"ok"`
	Error  string      `json:"error,omitempty"`
	Result interface{} `json:"result,omitempty"`
}

// Server is the agentcore control-plane Unix domain socket server.
type Server struct {
	socketPath      string
	maxConnections  int
	maxRequestBytes int

	log *zap.Logger

	llm       *llm.Manager
	predictor *predictor.State
	orchMx    *orchestrator.Metrics
	integrity *orchestrator.Integrity
	db        *storage.DB // optional; audit writes are best-effort

	mu            sync.Mutex
	activeGraph   *graph.Graph
	lastOperator  uint32
	haveOperator  bool

	sem chan struct{}
}

// NewServer builds a control-plane server. db may be nil, in which case
// decision/prediction audit writes are skipped entirely: per the
// kernel's core invariant that all component state is in-memory, no
// control-plane operation may depend on db being present.
func NewServer(
	socketPath string,
	maxConnections, maxRequestBytes int,
	llmMgr *llm.Manager,
	pred *predictor.State,
	orchMx *orchestrator.Metrics,
	integrity *orchestrator.Integrity,
	db *storage.DB,
	log *zap.Logger,
) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if maxConnections < 1 {
		maxConnections = 16
	}
	return &Server{
		socketPath:      socketPath,
		maxConnections:  maxConnections,
		maxRequestBytes: maxRequestBytes,
		log:             log,
		llm:             llmMgr,
		predictor:       pred,
		orchMx:          orchMx,
		integrity:       integrity,
		db:              db,
		sem:             make(chan struct{}, maxConnections),
	}
}

// ListenAndServe binds the control socket and serves until ctx is
// cancelled. Removes any stale socket file first.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("controlplane: remove stale socket %q: %w", s.socketPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("controlplane: mkdir %q: %w", filepath.Dir(s.socketPath), err)
	}

	lis, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("controlplane: listen %q: %w", s.socketPath, err)
	}
	defer lis.Close()

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("controlplane: chmod %q: %w", s.socketPath, err)
	}

	s.log.Info("control plane socket listening", zap.String("path", s.socketPath))

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error("controlplane: accept error", zap.Error(err))
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.log.Warn("controlplane: max connections reached, rejecting")
			_ = conn.Close()
			continue
		}

		go func(c net.Conn) {
			defer func() { <-s.sem }()
			defer c.Close()
			s.handleConn(c)
		}(conn)
	}
}

// handleConn serves exactly one command (frame or JSON) per connection.
func (s *Server) handleConn(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	br := bufio.NewReader(io.LimitReader(conn, int64(s.maxRequestBytes)))
	first, err := br.Peek(1)
	if err != nil {
		s.log.Warn("controlplane: read error", zap.Error(err))
		return
	}

	if first[0] == frameMagic {
		s.handleFrameConn(conn, br)
		return
	}
	s.handleJSONConn(conn, br)
}

func (s *Server) handleFrameConn(conn net.Conn, br *bufio.Reader) {
	header := make([]byte, frameHeaderLen)
	if _, err := io.ReadFull(br, header); err != nil {
		s.writeJSON(conn, Response{OK: false, Error: "read frame header: " + err.Error()})
		return
	}
	total, err := FrameLen(header)
	if err != nil {
		s.writeJSON(conn, Response{OK: false, Error: err.Error()})
		return
	}
	buf := make([]byte, total)
	copy(buf, header)
	if _, err := io.ReadFull(br, buf[frameHeaderLen:]); err != nil {
		s.writeJSON(conn, Response{OK: false, Error: "read frame payload: " + err.Error()})
		return
	}

	f, err := ParseFrame(buf)
	if err != nil {
		s.writeJSON(conn, Response{OK: false, Error: err.Error()})
		return
	}

	result, err := s.dispatchFrame(f)
	if err != nil {
		s.writeJSON(conn, Response{OK: false, Error: err.Error()})
		return
	}
	s.writeJSON(conn, Response{OK: true, Result: result})
}

func (s *Server) handleJSONConn(conn net.Conn, br *bufio.Reader) {
	line, err := br.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.writeJSON(conn, Response{OK: false, Error: "read request: " + err.Error()})
		return
	}
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.writeJSON(conn, Response{OK: false, Error: "invalid JSON: " + err.Error()})
		return
	}
	result, err := s.dispatchJSON(req)
	if err != nil {
		s.writeJSON(conn, Response{OK: false, Error: err.Error()})
		return
	}
	s.writeJSON(conn, Response{OK: true, Result: result})
}

func (s *Server) writeJSON(conn net.Conn, resp Response) {
	data, _ := json.Marshal(resp)
	data = append(data, '\n')
	_, _ = conn.Write(data)
}

// ─── graph frame dispatch ─────────────────────────────────────────────────

func (s *Server) setGraph(g *graph.Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeGraph = g
	s.haveOperator = false
}

func (s *Server) getGraph() *graph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeGraph
}

func (s *Server) setLastOperator(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOperator = id
	s.haveOperator = true
}

func (s *Server) getLastOperator() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOperator, s.haveOperator
}

func (s *Server) dispatchFrame(f *Frame) (interface{}, error) {
	switch f.Command {
	case CmdGraphCreate:
		g, err := graph.Create(s.log)
		if err != nil {
			return nil, err
		}
		s.setGraph(g)
		return map[string]any{"created": true}, nil

	case CmdAddChannel:
		p, err := decodeAddChannel(f.Payload)
		if err != nil {
			return nil, err
		}
		g := s.getGraph()
		if g == nil {
			return nil, ErrNoGraph
		}
		ch, err := g.AddChannel(int(p.Capacity), 0)
		if err != nil {
			return nil, err
		}
		return map[string]any{"channel_id": ch.ID()}, nil

	case CmdAddOperator:
		p, err := decodeAddOperator(f.Payload)
		if err != nil {
			return nil, err
		}
		return s.addOperator(p)

	case CmdAddOperatorTyped:
		p, err := decodeAddOperatorTyped(f.Payload)
		if err != nil {
			return nil, err
		}
		return s.addOperator(p)

	case CmdRunSteps:
		p, err := decodeRunSteps(f.Payload)
		if err != nil {
			return nil, err
		}
		g := s.getGraph()
		if g == nil {
			return nil, ErrNoGraph
		}
		if err := g.RunSteps(int(p.Steps)); err != nil {
			return nil, err
		}
		return map[string]any{"steps": p.Steps}, nil

	case CmdSetDeterministic:
		p, err := decodeSetDeterministic(f.Payload)
		if err != nil {
			return nil, err
		}
		g := s.getGraph()
		if g == nil {
			return nil, ErrNoGraph
		}
		opID, ok := s.getLastOperator()
		if !ok {
			return nil, ErrNoOperator
		}
		if err := g.SetDeterministic(opID, p.WCETNs, p.PeriodNs, p.DeadlineNs); err != nil {
			return nil, err
		}
		return map[string]any{"op_id": opID}, nil

	default:
		return nil, fmt.Errorf("controlplane: unknown frame command 0x%02X", byte(f.Command))
	}
}

func (s *Server) addOperator(p AddOperatorPayload) (interface{}, error) {
	g := s.getGraph()
	if g == nil {
		return nil, ErrNoGraph
	}
	spec := graph.Spec{
		ID:        p.OpID,
		Priority:  p.Priority,
		Stage:     graph.Stage(p.Stage),
		InSchema:  p.InSchema,
		OutSchema: p.OutSchema,
	}
	if p.InCh != noChannelRef {
		ch, ok := g.Channel(uint32(p.InCh))
		if !ok {
			return nil, fmt.Errorf("controlplane: add_operator: unknown in channel %d", p.InCh)
		}
		spec.InCh = ch
	}
	if p.OutCh != noChannelRef {
		ch, ok := g.Channel(uint32(p.OutCh))
		if !ok {
			return nil, fmt.Errorf("controlplane: add_operator: unknown out channel %d", p.OutCh)
		}
		spec.OutCh = ch
	}
	id, err := g.AddOperator(spec, &graph.Kind{Tag: graph.KindPassThrough})
	if err != nil {
		return nil, err
	}
	s.setLastOperator(id)
	return map[string]any{"op_id": id}, nil
}

// ─── JSON command dispatch ─────────────────────────────────────────────────

func (s *Server) dispatchJSON(req Request) (interface{}, error) {
	switch req.Cmd {
	case "graphctl.destroy":
		g := s.getGraph()
		if g == nil {
			return nil, ErrNoGraph
		}
		if err := graph.DestroySingleton(); err != nil {
			return nil, err
		}
		s.setGraph(nil)
		return map[string]any{"destroyed": true}, nil

	case "graphctl.stats", "graphctl.show", "graphctl.export_json":
		// Spec §7: "show and stats commands never fail — they emit
		// 'no active graph' when appropriate." export-json shares the
		// same snapshot source, so the same leniency applies.
		g := s.getGraph()
		if g == nil {
			return map[string]string{"status": "no active graph"}, nil
		}
		return g.Snapshot(), nil

	case "graphctl.predict":
		if s.predictor == nil {
			return nil, fmt.Errorf("controlplane: no predictor wired")
		}
		// Treats a per-operator latency/depth/priority sample as one
		// allocation-telemetry observation: depth is the backpressure
		// proxy for fragmentation, latency_us decline drives the
		// decline-factor signal. There is no dedicated per-operator
		// predictive channel in the spec; this reuses the one crash
		// predictor instance the kernel already runs.
		s.predictor.Update(predictor.AllocMetrics{
			TimestampMS:        time.Now().UnixMilli(),
			FreePages:          -req.LatencyUs,
			FragmentationRatio: float64(req.Depth) / 65535.0,
		})
		return s.predictor.Status(), nil

	case "llmctl.load":
		if s.llm == nil {
			return nil, fmt.Errorf("controlplane: no LLM manager wired")
		}
		hashBytes, err := hex.DecodeString(req.HashHex)
		if err != nil || len(hashBytes) != 32 {
			return nil, fmt.Errorf("controlplane: llmctl.load: hash_hex must be 64 hex chars")
		}
		var hash [32]byte
		copy(hash[:], hashBytes)
		sig, err := hex.DecodeString(req.SigHex)
		if err != nil {
			return nil, fmt.Errorf("controlplane: llmctl.load: bad sig_hex: %w", err)
		}
		raw, err := os.ReadFile(req.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("controlplane: llmctl.load: read %q: %w", req.ModelPath, err)
		}
		if err := s.llm.LoadModelPackage(req.ModelID, raw, hash, sig); err != nil {
			return nil, err
		}
		return map[string]any{"model_id": req.ModelID}, nil

	case "llmctl.status":
		if s.llm == nil {
			return nil, fmt.Errorf("controlplane: no LLM manager wired")
		}
		meta := s.llm.LoadedModel()
		return map[string]any{
			"loaded":          meta != nil,
			"model":           meta,
			"deadline_misses": s.llm.DeadlineMisses(),
			"jitter_p99":      s.llm.JitterP99(),
		}, nil

	case "llmctl.audit":
		if s.llm == nil {
			return nil, fmt.Errorf("controlplane: no LLM manager wired")
		}
		meta := s.llm.LoadedModel()
		if meta == nil {
			return map[string]any{"loaded": false}, nil
		}
		return map[string]any{
			"loaded":         true,
			"model_id":       meta.ID,
			"hash_hex":       hex.EncodeToString(meta.Hash[:]),
			"context_length": meta.ContextLength,
			"vocab_size":     meta.VocabSize,
		}, nil

	case "llminfer":
		if s.llm == nil {
			return nil, fmt.Errorf("controlplane: no LLM manager wired")
		}
		return s.llm.Infer(req.Prompt, req.MaxTokens, 0)

	case "llmstream":
		if s.llm == nil {
			return nil, fmt.Errorf("controlplane: no LLM manager wired")
		}
		sess, err := s.llm.InferStream(req.Prompt, req.MaxTokens, req.Chunk)
		if err != nil {
			return nil, err
		}
		snap := sess.Snapshot()
		return map[string]any{"session_id": snap.ID}, nil

	case "llmpoll":
		if s.llm == nil {
			return nil, fmt.Errorf("controlplane: no LLM manager wired")
		}
		n, done, items, err := s.llm.CtlPoll(req.SessionID, req.Max)
		if err != nil {
			return nil, err
		}
		return map[string]any{"n_new": n, "done": done, "items": items}, nil

	case "llmcancel":
		if s.llm == nil {
			return nil, fmt.Errorf("controlplane: no LLM manager wired")
		}
		if req.SessionID == 0 {
			s.llm.CtlCancel()
			return map[string]any{"cancelled": "all"}, nil
		}
		if err := s.llm.CtlCancelID(req.SessionID); err != nil {
			return nil, err
		}
		return map[string]any{"cancelled": req.SessionID}, nil

	case "predictor.status":
		if s.predictor == nil {
			return nil, fmt.Errorf("controlplane: no predictor wired")
		}
		return s.predictor.Status(), nil

	case "orchestrator.coordinate":
		result, err := orchestrator.CoordinateObserved(s.orchMx, req.Decisions)
		if err != nil {
			return nil, err
		}
		if s.integrity != nil {
			audited, aerr := s.integrity.Record(result, time.Now())
			if aerr != nil {
				s.log.Warn("controlplane: integrity record rejected", zap.Error(aerr))
			} else if s.db != nil {
				s.appendDecisionAudit(audited)
			}
		}
		return result, nil

	case "orchestrator.stats":
		if s.orchMx == nil {
			return nil, fmt.Errorf("controlplane: no orchestrator metrics wired")
		}
		return s.orchMx.Snapshot(), nil

	default:
		return nil, fmt.Errorf("controlplane: unknown command %q", req.Cmd)
	}
}

// appendDecisionAudit best-effort persists an audited decision. Storage
// is ambient audit, never a correctness dependency: a write failure is
// logged and otherwise ignored.
func (s *Server) appendDecisionAudit(a orchestrator.AuditedDecision) {
	rec := storage.DecisionRecord{
		Timestamp:    a.Timestamp,
		Kind:         a.Kind.String(),
		Action:       a.Action.String(),
		Confidence:   a.Confidence,
		OverriddenBy: a.OverriddenBy.String(),
		DeferToHuman: a.DeferToHuman,
		DecisionHash: a.DecisionHash,
		ParentHash:   a.ParentHash,
	}
	if err := s.db.AppendDecision(rec); err != nil {
		s.log.Warn("controlplane: decision audit write failed", zap.Error(err))
	}
}
