package services

import (
	"fmt"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driven"
	"github.com/custodia-labs/notelens/internal/core/ports/driving"
	"github.com/custodia-labs/notelens/internal/logger"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keySearchMode  = "search.mode"
	keySearchLimit = "search.limit"

	keyEmbedBackend = "embedding.backend"
	keyEmbedModel   = "embedding.model"
	keyEmbedBaseURL = "embedding.base_url"
	keyEmbedAPIKey  = "embedding.api_key"
	keyEmbedDims    = "embedding.dimensions"

	keyRerankEnabled     = "rerank.enabled"
	keyRerankBaseURL     = "rerank.base_url"
	keyRerankModel       = "rerank.model"
	keyRerankInstruction = "rerank.instruction"
	keyRerankTopN        = "rerank.top_n"

	keyAnnEnabled = "ann.enabled"
	keyAnnBreadth = "ann.breadth"
	keyAnnDir     = "ann.dir"

	keyTopicsPython  = "topics.python"
	keyTopicsScript  = "topics.script"
	keyTopicsMaxDocs = "topics.max_docs"
)

// Ranking constants are persisted too, so deployments can tune fusion
// and score blending without a rebuild.
const (
	keyFusionRRFK          = "fusion.rrf_k"
	keyFusionIDFCap        = "fusion.idf_cap"
	keyFusionHyphenBoost   = "fusion.hyphen_boost"
	keyFusionLongTermBoost = "fusion.long_term_boost"
	keyFusionLongTermLen   = "fusion.long_term_len"
	keyFusionNounBoost     = "fusion.noun_boost"
	keyFusionNounMinLen    = "fusion.noun_min_len"
	keyFusionMaxFetch      = "fusion.max_fetch"

	keyModGateSlope     = "modulator.gate_slope"
	keyModGateMidpoint  = "modulator.gate_midpoint"
	keyModBaseScale     = "modulator.base_scale"
	keyModBaseDecay     = "modulator.base_decay"
	keyModBaseOffset    = "modulator.base_offset"
	keyModBonusScale    = "modulator.bonus_scale"
	keyModBonusDecay    = "modulator.bonus_decay"
	keyModLexCap        = "modulator.lex_cap"
	keyModWeakLow       = "modulator.weak_low"
	keyModWeakHigh      = "modulator.weak_high"
	keyModHeavyPenalty  = "modulator.heavy_penalty"
	keyModModestPenalty = "modulator.modest_penalty"
	keyModCosFadeLow    = "modulator.cos_fade_low"
	keyModCosFadeHigh   = "modulator.cos_fade_high"
)

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	validator   driven.AIConfigValidator
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, validator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		validator:   validator,
	}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Search: domain.SearchSettings{
			Mode:  s.getSearchMode(defaults.Search.Mode),
			Limit: s.getInt(keySearchLimit, defaults.Search.Limit),
		},
		Embedding: domain.EmbeddingSettings{
			Backend:    s.getBackend(keyEmbedBackend, defaults.Embedding.Backend),
			Model:      s.getString(keyEmbedModel, defaults.Embedding.Model),
			BaseURL:    s.configStore.GetString(keyEmbedBaseURL), // No default - empty is valid for cloud backends
			APIKey:     s.configStore.GetString(keyEmbedAPIKey),
			Dimensions: s.getInt(keyEmbedDims, defaults.Embedding.Dimensions),
		},
		Rerank: domain.RerankSettings{
			Enabled:     s.getBool(keyRerankEnabled, defaults.Rerank.Enabled),
			BaseURL:     s.configStore.GetString(keyRerankBaseURL),
			Model:       s.getString(keyRerankModel, defaults.Rerank.Model),
			Instruction: s.getString(keyRerankInstruction, defaults.Rerank.Instruction),
			TopN:        s.getInt(keyRerankTopN, defaults.Rerank.TopN),
		},
		Ann: domain.AnnSettings{
			Enabled: s.getBool(keyAnnEnabled, defaults.Ann.Enabled),
			Breadth: s.getInt(keyAnnBreadth, defaults.Ann.Breadth),
			Dir:     s.getString(keyAnnDir, defaults.Ann.Dir),
		},
		Topics: domain.TopicSettings{
			Python:  s.getString(keyTopicsPython, defaults.Topics.Python),
			Script:  s.getString(keyTopicsScript, defaults.Topics.Script),
			MaxDocs: s.getInt(keyTopicsMaxDocs, defaults.Topics.MaxDocs),
		},
		Fusion: domain.FusionSettings{
			RRFK:          s.getFloat(keyFusionRRFK, defaults.Fusion.RRFK),
			IDFCap:        s.getFloat(keyFusionIDFCap, defaults.Fusion.IDFCap),
			HyphenBoost:   s.getFloat(keyFusionHyphenBoost, defaults.Fusion.HyphenBoost),
			LongTermBoost: s.getFloat(keyFusionLongTermBoost, defaults.Fusion.LongTermBoost),
			LongTermLen:   s.getInt(keyFusionLongTermLen, defaults.Fusion.LongTermLen),
			NounBoost:     s.getFloat(keyFusionNounBoost, defaults.Fusion.NounBoost),
			NounMinLen:    s.getInt(keyFusionNounMinLen, defaults.Fusion.NounMinLen),
			MaxFetch:      s.getInt(keyFusionMaxFetch, defaults.Fusion.MaxFetch),
		},
		Modulator: domain.ModulatorSettings{
			GateSlope:     s.getFloat(keyModGateSlope, defaults.Modulator.GateSlope),
			GateMidpoint:  s.getFloat(keyModGateMidpoint, defaults.Modulator.GateMidpoint),
			BaseScale:     s.getFloat(keyModBaseScale, defaults.Modulator.BaseScale),
			BaseDecay:     s.getFloat(keyModBaseDecay, defaults.Modulator.BaseDecay),
			BaseOffset:    s.getFloat(keyModBaseOffset, defaults.Modulator.BaseOffset),
			BonusScale:    s.getFloat(keyModBonusScale, defaults.Modulator.BonusScale),
			BonusDecay:    s.getFloat(keyModBonusDecay, defaults.Modulator.BonusDecay),
			LexCap:        s.getFloat(keyModLexCap, defaults.Modulator.LexCap),
			WeakLow:       s.getFloat(keyModWeakLow, defaults.Modulator.WeakLow),
			WeakHigh:      s.getFloat(keyModWeakHigh, defaults.Modulator.WeakHigh),
			HeavyPenalty:  s.getFloat(keyModHeavyPenalty, defaults.Modulator.HeavyPenalty),
			ModestPenalty: s.getFloat(keyModModestPenalty, defaults.Modulator.ModestPenalty),
			CosFadeLow:    s.getFloat(keyModCosFadeLow, defaults.Modulator.CosFadeLow),
			CosFadeHigh:   s.getFloat(keyModCosFadeHigh, defaults.Modulator.CosFadeHigh),
		},
	}

	return settings, nil
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	// Save search settings
	if err := s.configStore.Set(keySearchMode, settings.Search.Mode.String()); err != nil {
		return fmt.Errorf("save search mode: %w", err)
	}
	if err := s.configStore.Set(keySearchLimit, settings.Search.Limit); err != nil {
		return fmt.Errorf("save search limit: %w", err)
	}

	// Save embedding settings
	if err := s.configStore.Set(keyEmbedBackend, settings.Embedding.Backend.String()); err != nil {
		return fmt.Errorf("save embedding backend: %w", err)
	}
	if err := s.configStore.Set(keyEmbedModel, settings.Embedding.Model); err != nil {
		return fmt.Errorf("save embedding model: %w", err)
	}
	if err := s.configStore.Set(keyEmbedBaseURL, settings.Embedding.BaseURL); err != nil {
		return fmt.Errorf("save embedding base_url: %w", err)
	}
	if settings.Embedding.APIKey != "" {
		if err := s.configStore.Set(keyEmbedAPIKey, settings.Embedding.APIKey); err != nil {
			return fmt.Errorf("save embedding api_key: %w", err)
		}
	}
	if err := s.configStore.Set(keyEmbedDims, settings.Embedding.Dimensions); err != nil {
		return fmt.Errorf("save embedding dimensions: %w", err)
	}

	// Save rerank settings
	if err := s.configStore.Set(keyRerankEnabled, settings.Rerank.Enabled); err != nil {
		return fmt.Errorf("save rerank enabled: %w", err)
	}
	if err := s.configStore.Set(keyRerankBaseURL, settings.Rerank.BaseURL); err != nil {
		return fmt.Errorf("save rerank base_url: %w", err)
	}
	if err := s.configStore.Set(keyRerankModel, settings.Rerank.Model); err != nil {
		return fmt.Errorf("save rerank model: %w", err)
	}
	if err := s.configStore.Set(keyRerankInstruction, settings.Rerank.Instruction); err != nil {
		return fmt.Errorf("save rerank instruction: %w", err)
	}
	if err := s.configStore.Set(keyRerankTopN, settings.Rerank.TopN); err != nil {
		return fmt.Errorf("save rerank top_n: %w", err)
	}

	// Save ann settings
	if err := s.configStore.Set(keyAnnEnabled, settings.Ann.Enabled); err != nil {
		return fmt.Errorf("save ann enabled: %w", err)
	}
	if err := s.configStore.Set(keyAnnBreadth, settings.Ann.Breadth); err != nil {
		return fmt.Errorf("save ann breadth: %w", err)
	}
	if err := s.configStore.Set(keyAnnDir, settings.Ann.Dir); err != nil {
		return fmt.Errorf("save ann dir: %w", err)
	}

	// Save topics settings
	if err := s.configStore.Set(keyTopicsPython, settings.Topics.Python); err != nil {
		return fmt.Errorf("save topics python: %w", err)
	}
	if err := s.configStore.Set(keyTopicsScript, settings.Topics.Script); err != nil {
		return fmt.Errorf("save topics script: %w", err)
	}
	if err := s.configStore.Set(keyTopicsMaxDocs, settings.Topics.MaxDocs); err != nil {
		return fmt.Errorf("save topics max_docs: %w", err)
	}

	// Save ranking constants
	ranking := []struct {
		key string
		val any
	}{
		{keyFusionRRFK, settings.Fusion.RRFK},
		{keyFusionIDFCap, settings.Fusion.IDFCap},
		{keyFusionHyphenBoost, settings.Fusion.HyphenBoost},
		{keyFusionLongTermBoost, settings.Fusion.LongTermBoost},
		{keyFusionLongTermLen, settings.Fusion.LongTermLen},
		{keyFusionNounBoost, settings.Fusion.NounBoost},
		{keyFusionNounMinLen, settings.Fusion.NounMinLen},
		{keyFusionMaxFetch, settings.Fusion.MaxFetch},
		{keyModGateSlope, settings.Modulator.GateSlope},
		{keyModGateMidpoint, settings.Modulator.GateMidpoint},
		{keyModBaseScale, settings.Modulator.BaseScale},
		{keyModBaseDecay, settings.Modulator.BaseDecay},
		{keyModBaseOffset, settings.Modulator.BaseOffset},
		{keyModBonusScale, settings.Modulator.BonusScale},
		{keyModBonusDecay, settings.Modulator.BonusDecay},
		{keyModLexCap, settings.Modulator.LexCap},
		{keyModWeakLow, settings.Modulator.WeakLow},
		{keyModWeakHigh, settings.Modulator.WeakHigh},
		{keyModHeavyPenalty, settings.Modulator.HeavyPenalty},
		{keyModModestPenalty, settings.Modulator.ModestPenalty},
		{keyModCosFadeLow, settings.Modulator.CosFadeLow},
		{keyModCosFadeHigh, settings.Modulator.CosFadeHigh},
	}
	for _, kv := range ranking {
		if err := s.configStore.Set(kv.key, kv.val); err != nil {
			return fmt.Errorf("save %s: %w", kv.key, err)
		}
	}

	return nil
}

// SetSearchMode updates the default search mode.
func (s *SettingsService) SetSearchMode(mode domain.SearchMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("invalid search mode: %s", mode)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Search.Mode = mode

	// Make sure ANN stays available for modes that scan vectors.
	if mode.RequiresEmbedding() {
		settings.Ann.Enabled = true
	}

	return s.Save(settings)
}

// SetEmbeddingBackend configures the embedding backend.
func (s *SettingsService) SetEmbeddingBackend(backend domain.Backend, model, baseURL, apiKey string) error {
	if !backend.IsValid() {
		return fmt.Errorf("invalid embedding backend: %s", backend)
	}

	// Validate API key if required
	if backend.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", backend)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Embedding.Backend = backend

	// Set model - use provided or default
	if model != "" {
		settings.Embedding.Model = model
	} else {
		defaults := domain.DefaultEmbeddingModels()
		if defaultModel, ok := defaults[backend]; ok {
			settings.Embedding.Model = defaultModel
		}
	}

	// Set base URL based on backend type
	switch {
	case baseURL != "":
		settings.Embedding.BaseURL = baseURL
	case backend.IsLocal():
		// Local backends need a base URL
		settings.Embedding.BaseURL = "http://localhost:11434"
	default:
		// Cloud backends don't need a custom base URL
		settings.Embedding.BaseURL = ""
	}

	// Set API key
	settings.Embedding.APIKey = apiKey

	// Update dimensions based on model
	dims := domain.EmbeddingDimensions()
	if d, ok := dims[settings.Embedding.Model]; ok {
		settings.Embedding.Dimensions = d
	}

	return s.Save(settings)
}

// Validate checks if current settings are valid for the configured mode.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	// Validate search mode
	if !settings.Search.Mode.IsValid() {
		return fmt.Errorf("invalid search mode: %s", settings.Search.Mode)
	}

	// Check embedding configuration if required
	if settings.Search.Mode.RequiresEmbedding() {
		if !settings.Embedding.IsConfigured() {
			return fmt.Errorf(
				"search mode %q requires an embedding backend to be configured",
				settings.Search.Mode.Description(),
			)
		}
	}

	return nil
}

// RequiresEmbedding returns true if current mode needs embedding.
func (s *SettingsService) RequiresEmbedding() bool {
	settings, err := s.Get()
	if err != nil {
		return false
	}
	return settings.Search.Mode.RequiresEmbedding()
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration
// by pinging the backend.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.validator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.validator.ValidateEmbedding(&settings.Embedding)
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	val := s.configStore.GetFloat64(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getSearchMode(defaultVal domain.SearchMode) domain.SearchMode {
	val := s.configStore.GetString(keySearchMode)
	if val == "" {
		return defaultVal
	}
	mode := domain.SearchMode(val)
	if !mode.IsValid() {
		return defaultVal
	}
	return mode
}

func (s *SettingsService) getBackend(key string, defaultVal domain.Backend) domain.Backend {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	backend := domain.Backend(val)
	if !backend.IsValid() {
		return defaultVal
	}
	return backend
}

// loadSettings loads settings through a settings service, falling back
// to defaults so a broken config file degrades behaviour instead of
// blocking work.
func loadSettings(svc driving.SettingsService) domain.AppSettings {
	cfg, err := svc.Get()
	if err != nil || cfg == nil {
		logger.Warn("Loading settings failed, using defaults: %v", err)
		return domain.DefaultAppSettings()
	}
	return *cfg
}
