package llm

import (
	"crypto/ed25519"
	"crypto/sha256"
	"testing"
)

func buildSignedPackage(t *testing.T, meta map[string]GGUFValue) ([]byte, [32]byte, []byte, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey: %v", err)
	}
	raw := EncodeGGUF(meta, nil, nil)
	sig := ed25519.Sign(priv, raw)
	hash := sha256.Sum256(raw)
	return raw, hash, sig, pub
}

func validMetadata() map[string]GGUFValue {
	return map[string]GGUFValue{
		"model.name":           {Type: GGUFTypeString, Str: "tiny-agent"},
		"model.context_length": {Type: GGUFTypeU32, U32: 2048},
		"model.vocab_size":     {Type: GGUFTypeU32, U32: 32000},
	}
}

func TestManager_LoadModelPackage_Success(t *testing.T) {
	raw, hash, sig, pub := buildSignedPackage(t, validMetadata())
	mgr := NewManager(1, NewBudget(0, 0, 100), pub, nil)

	if err := mgr.LoadModelPackage("m1", raw, hash, sig); err != nil {
		t.Fatalf("LoadModelPackage: %v", err)
	}
	model := mgr.LoadedModel()
	if model == nil || model.ID != "m1" {
		t.Fatalf("LoadedModel() = %+v, want ID m1", model)
	}
	if model.ContextLength != 2048 || model.VocabSize != 32000 {
		t.Fatalf("LoadedModel() metadata = %+v, want context_length=2048 vocab_size=32000", model)
	}
}

func TestManager_LoadModelPackage_BadSignatureKeepsPreviousModel(t *testing.T) {
	raw, hash, sig, pub := buildSignedPackage(t, validMetadata())
	mgr := NewManager(1, NewBudget(0, 0, 100), pub, nil)
	if err := mgr.LoadModelPackage("m1", raw, hash, sig); err != nil {
		t.Fatalf("initial LoadModelPackage: %v", err)
	}

	raw2, hash2, _, _ := buildSignedPackage(t, validMetadata())
	badSig := make([]byte, ed25519.SignatureSize)
	if err := mgr.LoadModelPackage("m2", raw2, hash2, badSig); err == nil {
		t.Fatalf("LoadModelPackage with bad signature: want error, got nil")
	}

	if got := mgr.LoadedModel().ID; got != "m1" {
		t.Fatalf("LoadedModel().ID = %q after failed reload, want m1 (previous model retained)", got)
	}
}

func TestManager_LoadModelPackage_MissingRequiredMetadata(t *testing.T) {
	meta := map[string]GGUFValue{
		"model.name": {Type: GGUFTypeString, Str: "incomplete"},
	}
	raw, hash, sig, pub := buildSignedPackage(t, meta)
	mgr := NewManager(1, NewBudget(0, 0, 100), pub, nil)

	err := mgr.LoadModelPackage("m1", raw, hash, sig)
	if err == nil {
		t.Fatalf("LoadModelPackage with missing metadata: want error, got nil")
	}
}

func TestManager_LoadModelPackage_HashMismatch(t *testing.T) {
	raw, _, sig, pub := buildSignedPackage(t, validMetadata())
	var wrongHash [32]byte
	mgr := NewManager(1, NewBudget(0, 0, 100), pub, nil)

	if err := mgr.LoadModelPackage("m1", raw, wrongHash, sig); err == nil {
		t.Fatalf("LoadModelPackage with wrong hash: want error, got nil")
	}
}
