// Package main — cmd/agentctl/main.go
//
// agentcore kernel CLI client. Talks to agentd over the control-plane
// Unix domain socket (spec §6): the six fixed-layout graph commands as
// binary control frames, everything else as newline-delimited JSON.
//
// One binary multiplexes every CLI surface named in the spec
// (graphctl, llmctl, llminfer, llmstream, llmpoll, llmcancel) as
// sub-subcommands rather than six separate binaries — simpler to build
// and install, and matches the "one control socket, many command
// families" shape the daemon already presents.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agentcore/agentcore/internal/controlplane"
)

const defaultSocketPath = "/run/agentcore/control.sock"

func main() {
	sockPath := os.Getenv("AGENTCORE_SOCKET")
	if sockPath == "" {
		sockPath = defaultSocketPath
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "graphctl":
		err = runGraphctl(sockPath, os.Args[2:])
	case "llmctl":
		err = runLLMctl(sockPath, os.Args[2:])
	case "llminfer":
		err = runLLMInfer(sockPath, os.Args[2:])
	case "llmstream":
		err = runLLMStream(sockPath, os.Args[2:])
	case "llmpoll":
		err = runLLMPoll(sockPath, os.Args[2:])
	case "llmcancel":
		err = runLLMCancel(sockPath, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: agentctl <command> ...

commands:
  graphctl   create|destroy|add-channel|add-operator|start|det|stats|show|export-json|predict
  llmctl     load|budget|status|audit
  llminfer   <prompt...> [--max-tokens N]
  llmstream  <prompt...> [--chunk N]
  llmpoll    [max]
  llmcancel  [id]`)
}

// ─── transport ──────────────────────────────────────────────────────────────

func dial(sockPath string) (net.Conn, error) {
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("connect to %q: %w", sockPath, err)
	}
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	return conn, nil
}

func sendFrame(sockPath string, raw []byte) (controlplane.Response, error) {
	var resp controlplane.Response
	conn, err := dial(sockPath)
	if err != nil {
		return resp, err
	}
	defer conn.Close()
	if _, err := conn.Write(raw); err != nil {
		return resp, fmt.Errorf("write frame: %w", err)
	}
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return resp, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

func sendJSON(sockPath string, req controlplane.Request) (controlplane.Response, error) {
	var resp controlplane.Response
	conn, err := dial(sockPath)
	if err != nil {
		return resp, err
	}
	defer conn.Close()
	data, err := json.Marshal(req)
	if err != nil {
		return resp, fmt.Errorf("encode request: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return resp, fmt.Errorf("write request: %w", err)
	}
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return resp, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

func printResponse(resp controlplane.Response) error {
	if !resp.OK {
		return fmt.Errorf("%s", resp.Error)
	}
	out, _ := json.MarshalIndent(resp.Result, "", "  ")
	fmt.Println(string(out))
	return nil
}

// ─── graphctl ───────────────────────────────────────────────────────────────

// channelRef parses a channel argument: "none" or a non-negative integer,
// returning controlplane's noChannelRef sentinel (0xFFFF) for "none".
func channelRef(s string) (uint16, error) {
	if s == "" || s == "none" {
		return 0xFFFF, nil
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid channel id %q: %w", s, err)
	}
	return uint16(n), nil
}

func runGraphctl(sockPath string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("graphctl: missing subcommand")
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "create":
		resp, err := sendFrame(sockPath, controlplane.EncodeFrame(controlplane.CmdGraphCreate, 0, nil))
		if err != nil {
			return err
		}
		return printResponse(resp)

	case "destroy":
		resp, err := sendJSON(sockPath, controlplane.Request{Cmd: "graphctl.destroy"})
		if err != nil {
			return err
		}
		return printResponse(resp)

	case "add-channel":
		if len(rest) < 1 {
			return fmt.Errorf("graphctl add-channel: missing capacity")
		}
		cap64, err := strconv.ParseUint(rest[0], 10, 16)
		if err != nil {
			return fmt.Errorf("invalid capacity %q: %w", rest[0], err)
		}
		resp, err := sendFrame(sockPath, controlplane.EncodeFrame(
			controlplane.CmdAddChannel, 0, controlplane.EncodeAddChannel(uint16(cap64))))
		if err != nil {
			return err
		}
		return printResponse(resp)

	case "add-operator":
		return runAddOperator(sockPath, rest)

	case "start":
		if len(rest) < 1 {
			return fmt.Errorf("graphctl start: missing step count")
		}
		steps, err := strconv.ParseUint(rest[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid step count %q: %w", rest[0], err)
		}
		resp, err := sendFrame(sockPath, controlplane.EncodeFrame(
			controlplane.CmdRunSteps, 0, controlplane.EncodeRunSteps(uint32(steps))))
		if err != nil {
			return err
		}
		return printResponse(resp)

	case "det":
		if len(rest) < 3 {
			return fmt.Errorf("graphctl det: usage: det <wcet_ns> <period_ns> <deadline_ns>")
		}
		wcet, err := strconv.ParseUint(rest[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid wcet_ns %q: %w", rest[0], err)
		}
		period, err := strconv.ParseUint(rest[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid period_ns %q: %w", rest[1], err)
		}
		deadline, err := strconv.ParseUint(rest[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid deadline_ns %q: %w", rest[2], err)
		}
		resp, err := sendFrame(sockPath, controlplane.EncodeFrame(
			controlplane.CmdSetDeterministic, 0, controlplane.EncodeSetDeterministic(wcet, period, deadline)))
		if err != nil {
			return err
		}
		return printResponse(resp)

	case "stats":
		resp, err := sendJSON(sockPath, controlplane.Request{Cmd: "graphctl.stats"})
		if err != nil {
			return err
		}
		return printResponse(resp)

	case "show":
		resp, err := sendJSON(sockPath, controlplane.Request{Cmd: "graphctl.show"})
		if err != nil {
			return err
		}
		return printResponse(resp)

	case "export-json":
		resp, err := sendJSON(sockPath, controlplane.Request{Cmd: "graphctl.export_json"})
		if err != nil {
			return err
		}
		return printResponse(resp)

	case "predict":
		if len(rest) < 4 {
			return fmt.Errorf("graphctl predict: usage: predict <op> <lat_us> <depth> <prio>")
		}
		op, err := strconv.ParseUint(rest[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid op %q: %w", rest[0], err)
		}
		latUs, err := strconv.ParseInt(rest[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid lat_us %q: %w", rest[1], err)
		}
		depth, err := strconv.Atoi(rest[2])
		if err != nil {
			return fmt.Errorf("invalid depth %q: %w", rest[2], err)
		}
		prio, err := strconv.ParseUint(rest[3], 10, 8)
		if err != nil {
			return fmt.Errorf("invalid prio %q: %w", rest[3], err)
		}
		resp, err := sendJSON(sockPath, controlplane.Request{
			Cmd: "graphctl.predict", OpID: uint32(op), LatencyUs: latUs, Depth: depth, Priority: uint8(prio),
		})
		if err != nil {
			return err
		}
		return printResponse(resp)

	default:
		return fmt.Errorf("graphctl: unknown subcommand %q", sub)
	}
}

func runAddOperator(sockPath string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("graphctl add-operator: missing operator id")
	}
	opID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid operator id %q: %w", args[0], err)
	}

	fs := flag.NewFlagSet("add-operator", flag.ContinueOnError)
	in := fs.String("in", "none", "input channel id or none")
	out := fs.String("out", "none", "output channel id or none")
	prio := fs.Uint("prio", 0, "priority")
	stage := fs.Uint("stage", 0, "stage (0=acquire 1=clean 2=explore 3=model 4=explain)")
	inSchema := fs.Uint("in-schema", 0, "input schema id (0 = untyped)")
	outSchema := fs.Uint("out-schema", 0, "output schema id (0 = untyped)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	inCh, err := channelRef(*in)
	if err != nil {
		return err
	}
	outCh, err := channelRef(*out)
	if err != nil {
		return err
	}

	var raw []byte
	if *inSchema != 0 || *outSchema != 0 {
		raw = controlplane.EncodeFrame(controlplane.CmdAddOperatorTyped, 0,
			controlplane.EncodeAddOperatorTyped(uint32(opID), inCh, outCh, uint8(*prio), uint8(*stage), uint32(*inSchema), uint32(*outSchema)))
	} else {
		raw = controlplane.EncodeFrame(controlplane.CmdAddOperator, 0,
			controlplane.EncodeAddOperator(uint32(opID), inCh, outCh, uint8(*prio), uint8(*stage)))
	}

	resp, err := sendFrame(sockPath, raw)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

// ─── llmctl ─────────────────────────────────────────────────────────────────

func runLLMctl(sockPath string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("llmctl: missing subcommand")
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "load":
		fs := flag.NewFlagSet("load", flag.ContinueOnError)
		model := fs.String("model", "", "model id")
		path := fs.String("path", "", "filesystem path to the model package")
		hashHex := fs.String("hash", "", "expected content hash, 0x + 64 hex chars")
		sigHex := fs.String("sig", "", "ed25519 signature, 0x + 128 hex chars")
		wcet := fs.Uint64("wcet-cycles", 0, "per-inference WCET budget in cycles")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		resp, err := sendJSON(sockPath, controlplane.Request{
			Cmd:        "llmctl.load",
			ModelID:    *model,
			ModelPath:  *path,
			HashHex:    strings.TrimPrefix(*hashHex, "0x"),
			SigHex:     strings.TrimPrefix(*sigHex, "0x"),
			WCETCycles: *wcet,
		})
		if err != nil {
			return err
		}
		return printResponse(resp)

	case "budget":
		fs := flag.NewFlagSet("budget", flag.ContinueOnError)
		wcet := fs.Uint64("wcet-cycles", 0, "per-inference WCET budget in cycles")
		periodNs := fs.Int64("period-ns", 0, "budget rollover period in nanoseconds")
		maxTokens := fs.Int("max-tokens-per-period", 0, "token admission cap per period (0 = unlimited)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		resp, err := sendJSON(sockPath, controlplane.Request{
			Cmd: "llmctl.budget", WCETCycles: *wcet, PeriodNs: *periodNs, MaxTokensPerPeriod: *maxTokens,
		})
		if err != nil {
			return err
		}
		return printResponse(resp)

	case "status":
		resp, err := sendJSON(sockPath, controlplane.Request{Cmd: "llmctl.status"})
		if err != nil {
			return err
		}
		return printResponse(resp)

	case "audit":
		resp, err := sendJSON(sockPath, controlplane.Request{Cmd: "llmctl.audit"})
		if err != nil {
			return err
		}
		return printResponse(resp)

	default:
		return fmt.Errorf("llmctl: unknown subcommand %q", sub)
	}
}

// ─── llminfer / llmstream / llmpoll / llmcancel ────────────────────────────

func runLLMInfer(sockPath string, args []string) error {
	fs := flag.NewFlagSet("llminfer", flag.ContinueOnError)
	maxTokens := fs.Int("max-tokens", 64, "maximum tokens to emit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	prompt := strings.Join(fs.Args(), " ")
	resp, err := sendJSON(sockPath, controlplane.Request{Cmd: "llminfer", Prompt: prompt, MaxTokens: *maxTokens})
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func runLLMStream(sockPath string, args []string) error {
	fs := flag.NewFlagSet("llmstream", flag.ContinueOnError)
	chunk := fs.Int("chunk", 1, "tokens per chunk")
	maxTokens := fs.Int("max-tokens", 64, "maximum tokens to emit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	prompt := strings.Join(fs.Args(), " ")
	resp, err := sendJSON(sockPath, controlplane.Request{
		Cmd: "llmstream", Prompt: prompt, MaxTokens: *maxTokens, Chunk: *chunk,
	})
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func runLLMPoll(sockPath string, args []string) error {
	max := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid max %q: %w", args[0], err)
		}
		max = n
	}
	resp, err := sendJSON(sockPath, controlplane.Request{Cmd: "llmpoll", Max: max})
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func runLLMCancel(sockPath string, args []string) error {
	var id uint64
	if len(args) > 0 {
		n, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", args[0], err)
		}
		id = n
	}
	resp, err := sendJSON(sockPath, controlplane.Request{Cmd: "llmcancel", SessionID: id})
	if err != nil {
		return err
	}
	return printResponse(resp)
}
