package llm

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
)

// requiredMetadataKeys lists the GGUF metadata keys load_model_package
// rejects as MetadataMissing if absent.
var requiredMetadataKeys = []string{
	"model.name",
	"model.context_length",
	"model.vocab_size",
}

// ModelMetadata is the parsed, verified description of a loaded model
// package: its identity, content hash, and GGUF metadata/tensor index.
// Fields mirror spec §3's LLM Model Metadata record; Name, Quant, and
// Revision are optional and left zero-valued when the GGUF package
// carries no corresponding metadata key.
type ModelMetadata struct {
	ID            string
	Name          string
	Quant         string // one of Q4_0, Q4_1, Int8, FP16, FP32; empty if undeclared
	Revision      string
	SizeBytes     uint64
	Hash          [32]byte
	Sig           []byte
	ContextLength uint32
	VocabSize     uint32
	KV            map[string]GGUFValue
	Tensors       []TensorInfo
	DequantTables map[TensorType][][32]float32 // one entry per quantized tensor (its first block only), in tensor-index order
}

// verifyModelPackage performs the integrity sequence from spec §4.4
// step 1-3, in order: magic/version check (via ParseGGUF), hash
// recomputation, and Ed25519 signature verification.
func verifyModelPackage(raw []byte, wantHash [32]byte, sig []byte, pubKey ed25519.PublicKey) (*File, error) {
	gguf, err := ParseGGUF(raw)
	if err != nil {
		return nil, err
	}

	gotHash := sha256.Sum256(raw)
	if gotHash != wantHash {
		return nil, fmt.Errorf("%w: computed %x, declared %x", ErrHashMismatch, gotHash, wantHash)
	}

	if len(pubKey) == ed25519.PublicKeySize {
		if !ed25519.Verify(pubKey, raw, sig) {
			return nil, ErrSignatureInvalid
		}
	}

	return gguf, nil
}

// buildMetadata validates required keys and constructs ModelMetadata
// from a parsed GGUF file, pre-computing dequantization tables for any
// Q4_0/Q8_0 tensors (spec §4.4 step 5).
func buildMetadata(id string, hash [32]byte, sig []byte, sizeBytes uint64, gguf *File) (*ModelMetadata, error) {
	for _, key := range requiredMetadataKeys {
		if _, ok := gguf.Metadata[key]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMetadataMissing, key)
		}
	}

	meta := &ModelMetadata{
		ID:            id,
		Hash:          hash,
		Sig:           sig,
		SizeBytes:     sizeBytes,
		KV:            gguf.Metadata,
		Tensors:       gguf.Tensors,
		DequantTables: make(map[TensorType][][32]float32),
	}
	if v, ok := gguf.Metadata["model.name"]; ok {
		meta.Name = v.Str
	}
	if v, ok := gguf.Metadata["model.quant"]; ok {
		meta.Quant = v.Str
	}
	if v, ok := gguf.Metadata["model.revision"]; ok {
		meta.Revision = v.Str
	}
	if v, ok := gguf.Metadata["model.context_length"]; ok {
		meta.ContextLength = v.U32
	}
	if v, ok := gguf.Metadata["model.vocab_size"]; ok {
		meta.VocabSize = v.U32
	}

	for _, t := range meta.Tensors {
		switch t.Type {
		case TensorTypeQ4_0:
			block, err := sliceTensorBlock(gguf.Data, t.Offset, 18)
			if err != nil {
				return nil, err
			}
			vals, err := DequantizeQ4_0(block)
			if err != nil {
				return nil, err
			}
			meta.DequantTables[TensorTypeQ4_0] = append(meta.DequantTables[TensorTypeQ4_0], vals)
		case TensorTypeQ8_0:
			block, err := sliceTensorBlock(gguf.Data, t.Offset, 34)
			if err != nil {
				return nil, err
			}
			vals, err := DequantizeQ8_0(block)
			if err != nil {
				return nil, err
			}
			meta.DequantTables[TensorTypeQ8_0] = append(meta.DequantTables[TensorTypeQ8_0], vals)
		}
	}

	return meta, nil
}

func sliceTensorBlock(data []byte, offset uint64, blockLen int) ([]byte, error) {
	end := offset + uint64(blockLen)
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: block at offset %d extends past tensor data (len %d)", ErrTensorNotFound, offset, len(data))
	}
	return data[offset:end], nil
}
