package domain

const unknownDescription = "Unknown"

// SearchMode defines how search operations combine retrieval paths.
type SearchMode string

// Available search modes.
const (
	// SearchModeLexical uses only keyword/full-text retrieval.
	SearchModeLexical SearchMode = "lexical"

	// SearchModeSemantic uses only vector retrieval.
	SearchModeSemantic SearchMode = "semantic"

	// SearchModeHybrid fuses lexical and vector retrieval.
	SearchModeHybrid SearchMode = "hybrid"
)

// IsValid returns true if the search mode is recognised.
func (m SearchMode) IsValid() bool {
	switch m {
	case SearchModeLexical, SearchModeSemantic, SearchModeHybrid:
		return true
	default:
		return false
	}
}

// RequiresEmbedding returns true if this mode needs an embedding backend.
func (m SearchMode) RequiresEmbedding() bool {
	return m == SearchModeSemantic || m == SearchModeHybrid
}

// String returns the string representation.
func (m SearchMode) String() string {
	return string(m)
}

// Description returns a human-readable description of the mode.
func (m SearchMode) Description() string {
	switch m {
	case SearchModeLexical:
		return "Lexical (keyword search only)"
	case SearchModeSemantic:
		return "Semantic (vector search only)"
	case SearchModeHybrid:
		return "Hybrid (keyword + vector, fused)"
	default:
		return unknownDescription
	}
}

// AllSearchModes returns all available search modes.
func AllSearchModes() []SearchMode {
	return []SearchMode{
		SearchModeLexical,
		SearchModeSemantic,
		SearchModeHybrid,
	}
}

// SearchSettings holds search behaviour configuration.
type SearchSettings struct {
	// Mode is the default retrieval mode.
	Mode SearchMode

	// Limit is the default result count.
	Limit int
}

// EmbeddingSettings holds embedding backend configuration.
type EmbeddingSettings struct {
	// Backend is the embedding provider family.
	Backend Backend

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint. Required for the local backend,
	// optional override for cloud backends.
	BaseURL string

	// APIKey is the API key (cloud backends).
	APIKey string

	// Dimensions requests a fixed output dimensionality from providers
	// that support it; 0 means the model default.
	Dimensions int
}

// Ref returns the embedding space the settings select.
func (e EmbeddingSettings) Ref() EmbeddingRef {
	return EmbeddingRef{Backend: e.Backend, Model: e.Model}
}

// IsConfigured returns true if the embedding backend is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Backend.IsValid() || e.Model == "" {
		return false
	}
	if e.Backend.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	if e.Backend.IsLocal() && e.BaseURL == "" {
		return false
	}
	return true
}

// RerankSettings holds reranking service configuration.
type RerankSettings struct {
	// Enabled turns the rerank stage on.
	Enabled bool

	// BaseURL is the rerank service endpoint.
	BaseURL string

	// Model is the reranking model name.
	Model string

	// Instruction steers the reranker's relevance judgement.
	Instruction string

	// TopN is how many head results are offered to the reranker.
	TopN int
}

// IsConfigured returns true if the rerank stage can run.
func (r RerankSettings) IsConfigured() bool {
	return r.Enabled && r.BaseURL != ""
}

// AnnSettings holds approximate-nearest-neighbour index configuration.
type AnnSettings struct {
	// Enabled indicates whether ANN lookups are attempted. Vector
	// search works without it via exact scan.
	Enabled bool

	// Breadth is the recall/latency trade-off applied before each
	// query (HNSW efSearch).
	Breadth int

	// Dir is the directory holding persisted index files. Empty means
	// a directory next to the database.
	Dir string
}

// TopicSettings holds topic map builder configuration.
type TopicSettings struct {
	// Python is the interpreter used to run the clustering script.
	Python string

	// Script is the path to the clustering script.
	Script string

	// MaxDocs caps how many documents one build may consume.
	MaxDocs int
}

// FusionSettings holds the term-weighting and rank-fusion constants.
// The defaults are empirically tuned as a set; partial edits shift
// scores in non-obvious ways.
type FusionSettings struct {
	// RRFK is the reciprocal-rank-fusion smoothing constant.
	RRFK float64

	// IDFCap bounds the IDF contribution to a term's weight.
	IDFCap float64

	// HyphenBoost is added to the weight of hyphenated terms.
	HyphenBoost float64

	// LongTermBoost is added for terms of at least LongTermLen runes.
	LongTermBoost float64
	LongTermLen   int

	// NounBoost is added for noun-likely terms.
	NounBoost float64

	// NounMinLen is the minimum length for the bare-length noun test.
	NounMinLen int

	// MaxFetch caps the per-term full-text fetch size.
	MaxFetch int
}

// DefaultFusionSettings returns the tuned fusion constants.
func DefaultFusionSettings() FusionSettings {
	return FusionSettings{
		RRFK:          60,
		IDFCap:        3,
		HyphenBoost:   0.75,
		LongTermBoost: 0.25,
		LongTermLen:   8,
		NounBoost:     3.5,
		NounMinLen:    5,
		MaxFetch:      5000,
	}
}

// ModulatorSettings holds the hybrid score modulator constants. The
// modulator blends one cosine similarity and one raw lexical score
// into a bounded relevance score; see services for the curve itself.
type ModulatorSettings struct {
	// GateSlope and GateMidpoint shape the sigmoid gate on lexical
	// strength.
	GateSlope    float64
	GateMidpoint float64

	// BaseScale, BaseDecay and BaseOffset shape the saturating lexical
	// contribution.
	BaseScale  float64
	BaseDecay  float64
	BaseOffset float64

	// BonusScale and BonusDecay shape the matched-terms bonus.
	BonusScale float64
	BonusDecay float64

	// LexCap bounds the lexical share of the final score.
	LexCap float64

	// WeakLow and WeakHigh bound the lexical-strength band where
	// cosine is damped.
	WeakLow  float64
	WeakHigh float64

	// HeavyPenalty and ModestPenalty scale the two damping tiers.
	HeavyPenalty  float64
	ModestPenalty float64

	// CosFadeLow and CosFadeHigh bound the cosine band where the
	// damping fades out.
	CosFadeLow  float64
	CosFadeHigh float64
}

// DefaultModulatorSettings returns the tuned modulator constants.
func DefaultModulatorSettings() ModulatorSettings {
	return ModulatorSettings{
		GateSlope:     0.45,
		GateMidpoint:  18,
		BaseScale:     0.60,
		BaseDecay:     9,
		BaseOffset:    0.02,
		BonusScale:    0.03,
		BonusDecay:    2,
		LexCap:        0.65,
		WeakLow:       7,
		WeakHigh:      11,
		HeavyPenalty:  0.35,
		ModestPenalty: 0.15,
		CosFadeLow:    0.5,
		CosFadeHigh:   0.6,
	}
}

// AppSettings holds all application settings.
type AppSettings struct {
	// Search holds search behaviour settings.
	Search SearchSettings

	// Embedding holds embedding backend settings.
	Embedding EmbeddingSettings

	// Rerank holds reranking service settings.
	Rerank RerankSettings

	// Ann holds ANN index settings.
	Ann AnnSettings

	// Topics holds topic map builder settings.
	Topics TopicSettings

	// Fusion holds term-weighting and rank-fusion constants.
	Fusion FusionSettings

	// Modulator holds hybrid score modulator constants.
	Modulator ModulatorSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// The embedding backend is left unconfigured; users must set it up
// explicitly before semantic features activate.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Search: SearchSettings{
			Mode:  SearchModeLexical,
			Limit: 50,
		},
		// Embedding is left unconfigured - users must pick a backend
		Embedding: EmbeddingSettings{},
		Rerank: RerankSettings{
			Enabled:     false,
			Instruction: "Given a search query, judge how relevant each note is to it.",
			TopN:        30,
		},
		Ann: AnnSettings{
			Enabled: true,
			Breadth: 200,
		},
		Topics: TopicSettings{
			Python:  "python3",
			MaxDocs: 400,
		},
		Fusion:    DefaultFusionSettings(),
		Modulator: DefaultModulatorSettings(),
	}
}

// DefaultEmbeddingModels returns the default model for each backend.
func DefaultEmbeddingModels() map[Backend]string {
	return map[Backend]string{
		BackendOpenAI: "text-embedding-3-small",
		BackendGemini: "text-embedding-004",
		BackendLocal:  "nomic-embed-text-v1.5",
	}
}

// EmbeddingDimensions returns the native vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		// Gemini models
		"text-embedding-004":   768,
		"gemini-embedding-001": 3072,
		// Local models
		"nomic-embed-text-v1.5": 768,
		"all-minilm":            384,
	}
}
