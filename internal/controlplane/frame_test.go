package controlplane

import "testing"

func TestParseFrame_AddChannelRoundTrip(t *testing.T) {
	raw := EncodeFrame(CmdAddChannel, 0, EncodeAddChannel(64))
	f, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Command != CmdAddChannel {
		t.Fatalf("Command = %v, want CmdAddChannel", f.Command)
	}
	p, err := decodeAddChannel(f.Payload)
	if err != nil {
		t.Fatalf("decodeAddChannel: %v", err)
	}
	if p.Capacity != 64 {
		t.Fatalf("Capacity = %d, want 64", p.Capacity)
	}
}

func TestParseFrame_AddOperatorTypedRoundTrip(t *testing.T) {
	raw := EncodeFrame(CmdAddOperatorTyped, 0, EncodeAddOperatorTyped(7, noChannelRef, 3, 5, 2, 10, 20))
	f, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	p, err := decodeAddOperatorTyped(f.Payload)
	if err != nil {
		t.Fatalf("decodeAddOperatorTyped: %v", err)
	}
	if p.OpID != 7 || p.InCh != noChannelRef || p.OutCh != 3 || p.Priority != 5 || p.Stage != 2 || p.InSchema != 10 || p.OutSchema != 20 {
		t.Fatalf("decoded payload = %+v, mismatch", p)
	}
}

func TestParseFrame_SetDeterministicRoundTrip(t *testing.T) {
	raw := EncodeFrame(CmdSetDeterministic, 0, EncodeSetDeterministic(1000, 2000, 1500))
	f, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	p, err := decodeSetDeterministic(f.Payload)
	if err != nil {
		t.Fatalf("decodeSetDeterministic: %v", err)
	}
	if p.WCETNs != 1000 || p.PeriodNs != 2000 || p.DeadlineNs != 1500 {
		t.Fatalf("decoded payload = %+v, mismatch", p)
	}
}

func TestParseFrame_RejectsBadMagic(t *testing.T) {
	raw := EncodeFrame(CmdRunSteps, 0, EncodeRunSteps(3))
	raw[0] = 0x00
	if _, err := ParseFrame(raw); err == nil {
		t.Fatalf("ParseFrame with bad magic: want error, got nil")
	}
}

func TestParseFrame_RejectsBadToken(t *testing.T) {
	raw := EncodeFrame(CmdRunSteps, 0, EncodeRunSteps(3))
	raw[8] = raw[8] ^ 0xFF
	if _, err := ParseFrame(raw); err == nil {
		t.Fatalf("ParseFrame with corrupted token: want error, got nil")
	}
}

func TestParseFrame_RejectsTruncated(t *testing.T) {
	raw := EncodeFrame(CmdRunSteps, 0, EncodeRunSteps(3))
	if _, err := ParseFrame(raw[:frameHeaderLen-1]); err == nil {
		t.Fatalf("ParseFrame with truncated header: want error, got nil")
	}
	if _, err := ParseFrame(raw[:len(raw)-1]); err == nil {
		t.Fatalf("ParseFrame with truncated payload: want error, got nil")
	}
}

func TestFrameLen_MatchesEncodedTotal(t *testing.T) {
	raw := EncodeFrame(CmdAddOperator, 0, EncodeAddOperator(1, noChannelRef, noChannelRef, 0, 0))
	n, err := FrameLen(raw[:frameHeaderLen])
	if err != nil {
		t.Fatalf("FrameLen: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("FrameLen = %d, want %d", n, len(raw))
	}
}
