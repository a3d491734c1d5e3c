package llm

import "errors"

// Sentinel errors for the LLM session manager's error taxonomy (spec §7).
var (
	ErrModelNotFound       = errors.New("llm: model not found")
	ErrInvalidModelFormat  = errors.New("llm: invalid model format")
	ErrModelTooLarge       = errors.New("llm: model too large")
	ErrUnsupportedVersion  = errors.New("llm: unsupported model version")
	ErrSignatureInvalid    = errors.New("llm: model signature verification failed")
	ErrHashMismatch        = errors.New("llm: model hash mismatch")

	ErrNoModelLoaded         = errors.New("llm: no model loaded")
	ErrPromptTooLong         = errors.New("llm: prompt too long")
	ErrContextLengthExceeded = errors.New("llm: context length exceeded")
	ErrInferenceTimeout      = errors.New("llm: inference timeout")
	ErrInferenceCancelled    = errors.New("llm: inference cancelled")

	ErrOutOfMemory        = errors.New("llm: out of memory")
	ErrTooManyConcurrent  = errors.New("llm: too many concurrent inferences")
	ErrTokenBudgetExceeded = errors.New("llm: token budget exceeded")

	ErrGgufParse       = errors.New("llm: gguf parse error")
	ErrMetadataMissing = errors.New("llm: required metadata key missing")
	ErrTensorNotFound  = errors.New("llm: tensor not found")

	ErrSessionNotFound = errors.New("llm: session not found")
	ErrInternal        = errors.New("llm: internal error")
)
