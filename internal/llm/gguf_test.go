package llm

import "testing"

// TestGGUF_RoundTrip mirrors property 9: encoding a metadata map then
// decoding it yields the same map.
func TestGGUF_RoundTrip(t *testing.T) {
	meta := map[string]GGUFValue{
		"model.name":            {Type: GGUFTypeString, Str: "tiny-agent"},
		"model.context_length":  {Type: GGUFTypeU32, U32: 4096},
		"model.vocab_size":      {Type: GGUFTypeU32, U32: 32000},
		"model.temperature_i32": {Type: GGUFTypeI32, I32: -7},
		"model.scale_f32":       {Type: GGUFTypeF32, F32: 0.015625},
	}
	raw := EncodeGGUF(meta, nil, nil)

	got, err := ParseGGUF(raw)
	if err != nil {
		t.Fatalf("ParseGGUF: %v", err)
	}
	if len(got.Metadata) != len(meta) {
		t.Fatalf("decoded %d metadata entries, want %d", len(got.Metadata), len(meta))
	}
	for k, want := range meta {
		gotVal, ok := got.Metadata[k]
		if !ok {
			t.Fatalf("missing metadata key %q after round trip", k)
		}
		if gotVal != want {
			t.Fatalf("metadata[%q] = %+v, want %+v", k, gotVal, want)
		}
	}
}

// TestGGUF_Q4_0RoundTrip mirrors property 9's quantization error bound:
// dequantizing a Q4_0 tensor recovers each value within |err| <=
// scale_f32.
func TestGGUF_Q4_0RoundTrip(t *testing.T) {
	scale := float32(0.5)
	scaleBits := Float32ToFloat16(scale)

	block := make([]byte, 18)
	block[0] = byte(scaleBits)
	block[1] = byte(scaleBits >> 8)
	// Pack nibbles 0..15 (representing values -8..7 after the -8 bias).
	for i := 0; i < 16; i++ {
		lo := byte(i % 16)
		hi := byte((i + 1) % 16)
		block[2+i] = lo | (hi << 4)
	}

	vals, err := DequantizeQ4_0(block)
	if err != nil {
		t.Fatalf("DequantizeQ4_0: %v", err)
	}

	for i := 0; i < 16; i++ {
		lo := int8(i%16) - 8
		hi := int8((i+1)%16) - 8
		wantLo := float32(lo) * scale
		wantHi := float32(hi) * scale
		if absf32(vals[2*i]-wantLo) > scale {
			t.Fatalf("vals[%d] = %f, want within %f of %f", 2*i, vals[2*i], scale, wantLo)
		}
		if absf32(vals[2*i+1]-wantHi) > scale {
			t.Fatalf("vals[%d] = %f, want within %f of %f", 2*i+1, vals[2*i+1], scale, wantHi)
		}
	}
}

func TestGGUF_RejectsBadMagic(t *testing.T) {
	raw := make([]byte, 24)
	if _, err := ParseGGUF(raw); err == nil {
		t.Fatalf("ParseGGUF with zeroed header: want error, got nil")
	}
}

func TestFloat16ToFloat32_SubnormalsFlushToZero(t *testing.T) {
	// Smallest subnormal half: sign=0, exp=0, mantissa=1.
	got := Float16ToFloat32(0x0001)
	if got != 0 {
		t.Fatalf("Float16ToFloat32(subnormal) = %v, want 0", got)
	}
}

func TestFloat16ToFloat32_KnownValues(t *testing.T) {
	cases := []struct {
		bits uint16
		want float32
	}{
		{0x3C00, 1.0},
		{0xC000, -2.0},
		{0x0000, 0.0},
	}
	for _, c := range cases {
		if got := Float16ToFloat32(c.bits); got != c.want {
			t.Errorf("Float16ToFloat32(0x%04X) = %v, want %v", c.bits, got, c.want)
		}
	}
}

func absf32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
