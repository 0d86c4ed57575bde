package cli

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driving"
)

// setupTestServices installs mock services and returns a cleanup that
// restores the previous ones.
func setupTestServices() func() {
	oldSearch := searchService
	oldEmbed := embedService
	oldTopics := topicService
	oldSettings := settingsService

	searchService = &mockSearchService{}
	embedService = &mockEmbedService{}
	topicService = &mockTopicService{}
	settingsService = &mockSettingsService{}

	return func() {
		searchService = oldSearch
		embedService = oldEmbed
		topicService = oldTopics
		settingsService = oldSettings
	}
}

type mockSearchService struct{}

func (m *mockSearchService) Search(_ context.Context, _ string, _ domain.SearchOptions) ([]domain.SearchResult, error) {
	return []domain.SearchResult{
		{DocID: 1, Title: "First note", Score: 0.91, LexScore: -8.2, Cosine: 0.74, Matched: 2},
		{DocID: 2, Title: "Second note", Score: 0.55, Cosine: 0.61},
	}, nil
}

func (m *mockSearchService) Similar(_ context.Context, docID int64, _ int) ([]domain.SearchResult, error) {
	if docID == 404 {
		return nil, domain.ErrNoVector
	}
	return []domain.SearchResult{
		{DocID: 7, Title: "Neighbour", Score: 0.82, Cosine: 0.82},
	}, nil
}

type mockSearchServiceError struct{}

func (m *mockSearchServiceError) Search(_ context.Context, _ string, _ domain.SearchOptions) ([]domain.SearchResult, error) {
	return nil, errors.New("mock search failure")
}

func (m *mockSearchServiceError) Similar(_ context.Context, _ int64, _ int) ([]domain.SearchResult, error) {
	return nil, errors.New("mock search failure")
}

type mockEmbedService struct{}

func (m *mockEmbedService) Backfill(_ context.Context) (*driving.BackfillReport, error) {
	return &driving.BackfillReport{
		Ref:      domain.EmbeddingRef{Backend: domain.BackendLocal, Model: "nomic-embed-text-v1.5"},
		Embedded: 12,
		Skipped:  1,
		Elapsed:  3 * time.Second,
	}, nil
}

func (m *mockEmbedService) BackfillStatus() driving.BackfillStatus {
	return driving.BackfillStatus{}
}

func (m *mockEmbedService) Coverage(_ context.Context) (*driving.CoverageReport, error) {
	return &driving.CoverageReport{
		Ref:         domain.EmbeddingRef{Backend: domain.BackendLocal, Model: "nomic-embed-text-v1.5"},
		TotalNotes:  13,
		WithVectors: 12,
		Dimensions:  []int{768},
		IndexReady:  true,
	}, nil
}

func (m *mockEmbedService) BuildIndex(_ context.Context) error { return nil }

func (m *mockEmbedService) IndexStatus() driving.IndexBuildStatus {
	return driving.IndexBuildStatus{Dim: 768, Processed: 12, Total: 12}
}

type mockTopicService struct{}

func (m *mockTopicService) Build(_ context.Context, _ domain.TopicScope) (string, error) {
	return "run-1234", nil
}

func (m *mockTopicService) Status() domain.TopicBuildStatus {
	return domain.TopicBuildStatus{State: domain.TopicStateComplete, RunID: "run-1234", DocsTotal: 20, DocsUsable: 18}
}

func (m *mockTopicService) LatestRun(_ context.Context, _ domain.TopicScope) (*domain.TopicRun, error) {
	return &domain.TopicRun{RunID: "run-1234", DocCount: 18, Backend: domain.BackendLocal, Model: "nomic-embed-text-v1.5"}, nil
}

func (m *mockTopicService) ListRuns(_ context.Context, _ int) ([]domain.TopicRun, error) {
	return []domain.TopicRun{
		{RunID: "run-1234", DocCount: 18, Backend: domain.BackendLocal, Model: "nomic-embed-text-v1.5", CreatedAt: time.Now()},
	}, nil
}

func (m *mockTopicService) Tree(_ context.Context, _ string) ([]driving.TopicNode, error) {
	parent := 1
	return []driving.TopicNode{
		{
			Topic: domain.Topic{TopicID: 1, Label: "biology", Level: 1, Size: 10},
			Terms: []domain.TopicTerm{{Term: "cell"}, {Term: "membrane"}},
		},
		{
			Topic: domain.Topic{TopicID: 2, ParentID: &parent, Label: "genetics", Level: 0, Size: 4},
			Terms: []domain.TopicTerm{{Term: "dna"}},
			Docs:  []domain.TopicDoc{{TopicID: 2, DocID: 5, Cos: 0.8}},
		},
	}, nil
}

func (m *mockTopicService) DeleteRun(_ context.Context, runID string) error {
	if runID == "missing" {
		return domain.ErrNotFound
	}
	return nil
}

type mockSettingsService struct {
	settings domain.AppSettings
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	if s.Search.Mode == "" {
		s = domain.DefaultAppSettings()
	}
	return &s, nil
}

func (m *mockSettingsService) Save(settings *domain.AppSettings) error {
	m.settings = *settings
	return nil
}

func (m *mockSettingsService) SetSearchMode(mode domain.SearchMode) error {
	m.settings.Search.Mode = mode
	return nil
}

func (m *mockSettingsService) SetEmbeddingBackend(backend domain.Backend, model, baseURL, apiKey string) error {
	m.settings.Embedding = domain.EmbeddingSettings{Backend: backend, Model: model, BaseURL: baseURL, APIKey: apiKey}
	return nil
}

func (m *mockSettingsService) Validate() error { return nil }

func (m *mockSettingsService) RequiresEmbedding() bool { return false }

func (m *mockSettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

func (m *mockSettingsService) ValidateEmbeddingConfig() error { return nil }
