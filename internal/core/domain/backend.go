package domain

// Backend identifies an embedding backend family. The set is closed:
// every switch over a Backend handles all three values plus a default
// for corrupt input.
type Backend string

// Available embedding backends.
const (
	// BackendOpenAI is the OpenAI embeddings API.
	BackendOpenAI Backend = "openai"

	// BackendGemini is the Google Gemini embeddings API.
	BackendGemini Backend = "gemini"

	// BackendLocal is a locally hosted embedding model server.
	BackendLocal Backend = "local"
)

// IsValid returns true if the backend is recognised.
func (b Backend) IsValid() bool {
	switch b {
	case BackendOpenAI, BackendGemini, BackendLocal:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this backend needs an API key.
func (b Backend) RequiresAPIKey() bool {
	return b == BackendOpenAI || b == BackendGemini
}

// IsLocal returns true if this backend runs locally.
func (b Backend) IsLocal() bool {
	return b == BackendLocal
}

// String returns the string representation.
func (b Backend) String() string {
	return string(b)
}

// Description returns a human-readable description of the backend.
func (b Backend) Description() string {
	switch b {
	case BackendOpenAI:
		return "OpenAI (cloud)"
	case BackendGemini:
		return "Gemini (cloud)"
	case BackendLocal:
		return "Local model server"
	default:
		return unknownDescription
	}
}

// AllBackends returns all recognised backends.
func AllBackends() []Backend {
	return []Backend{
		BackendOpenAI,
		BackendGemini,
		BackendLocal,
	}
}

// EmbeddingRef names one embedding space: a backend plus the concrete
// model within it. Vectors from different refs are never comparable.
type EmbeddingRef struct {
	// Backend is the provider family.
	Backend Backend

	// Model is the model name within the backend.
	Model string
}

// IsZero returns true if the ref is unset.
func (r EmbeddingRef) IsZero() bool {
	return r.Backend == "" && r.Model == ""
}

// String returns "backend/model", used in logs and cache keys.
func (r EmbeddingRef) String() string {
	return string(r.Backend) + "/" + r.Model
}
