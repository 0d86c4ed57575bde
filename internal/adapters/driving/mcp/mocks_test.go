package mcp

import (
	"context"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driving"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results []domain.SearchResult
	err     error
}

func (m *mockSearchService) Search(
	_ context.Context,
	_ string,
	_ domain.SearchOptions,
) ([]domain.SearchResult, error) {
	return m.results, m.err
}

func (m *mockSearchService) Similar(
	_ context.Context,
	_ int64,
	_ int,
) ([]domain.SearchResult, error) {
	return m.results, m.err
}

// mockTopicService is a mock implementation of driving.TopicService.
type mockTopicService struct {
	runID  string
	status domain.TopicBuildStatus
	run    *domain.TopicRun
	runs   []domain.TopicRun
	nodes  []driving.TopicNode
	err    error
}

func (m *mockTopicService) Build(_ context.Context, _ domain.TopicScope) (string, error) {
	return m.runID, m.err
}

func (m *mockTopicService) Status() domain.TopicBuildStatus {
	return m.status
}

func (m *mockTopicService) LatestRun(_ context.Context, _ domain.TopicScope) (*domain.TopicRun, error) {
	return m.run, m.err
}

func (m *mockTopicService) ListRuns(_ context.Context, _ int) ([]domain.TopicRun, error) {
	return m.runs, m.err
}

func (m *mockTopicService) Tree(_ context.Context, _ string) ([]driving.TopicNode, error) {
	return m.nodes, m.err
}

func (m *mockTopicService) DeleteRun(_ context.Context, _ string) error {
	return m.err
}
