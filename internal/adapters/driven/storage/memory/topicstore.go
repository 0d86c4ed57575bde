package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driven"
)

// Ensure TopicStore implements the interface.
var _ driven.TopicStore = (*TopicStore)(nil)

// TopicStore is an in-memory implementation of driven.TopicStore.
type TopicStore struct {
	mu     sync.RWMutex
	runs   map[string]domain.TopicRun
	topics map[string][]domain.Topic
	terms  map[string][]domain.TopicTerm
	docs   map[string][]domain.TopicDoc
}

// NewTopicStore creates a new in-memory topic store.
func NewTopicStore() *TopicStore {
	return &TopicStore{
		runs:   make(map[string]domain.TopicRun),
		topics: make(map[string][]domain.Topic),
		terms:  make(map[string][]domain.TopicTerm),
		docs:   make(map[string][]domain.TopicDoc),
	}
}

// SaveRun writes a run with its full tree.
func (s *TopicStore) SaveRun(_ context.Context, run domain.TopicRun, topics []domain.Topic, terms []domain.TopicTerm, docs []domain.TopicDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	s.topics[run.RunID] = append([]domain.Topic(nil), topics...)
	s.terms[run.RunID] = append([]domain.TopicTerm(nil), terms...)
	s.docs[run.RunID] = append([]domain.TopicDoc(nil), docs...)
	return nil
}

// GetRun retrieves one run by id.
func (s *TopicStore) GetRun(_ context.Context, runID string) (*domain.TopicRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &run, nil
}

// LatestRun retrieves the most recent run for a scope hash.
func (s *TopicStore) LatestRun(_ context.Context, scopeHash string) (*domain.TopicRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.TopicRun
	for id := range s.runs {
		run := s.runs[id]
		if run.ScopeHash != scopeHash {
			continue
		}
		if latest == nil || run.CreatedAt.After(latest.CreatedAt) {
			latest = &run
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return latest, nil
}

// ListRuns returns runs newest first.
func (s *TopicStore) ListRuns(_ context.Context, limit int) ([]domain.TopicRun, error) {
	s.mu.RLock()
	runs := make([]domain.TopicRun, 0, len(s.runs))
	for id := range s.runs {
		runs = append(runs, s.runs[id])
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].RunID < runs[j].RunID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetTopics returns a run's topics ordered by level then topic id.
func (s *TopicStore) GetTopics(_ context.Context, runID string) ([]domain.Topic, error) {
	s.mu.RLock()
	topics := append([]domain.Topic(nil), s.topics[runID]...)
	s.mu.RUnlock()

	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Level != topics[j].Level {
			return topics[i].Level < topics[j].Level
		}
		return topics[i].TopicID < topics[j].TopicID
	})
	return topics, nil
}

// GetTerms returns one topic's terms in rank order.
func (s *TopicStore) GetTerms(_ context.Context, runID string, topicID int) ([]domain.TopicTerm, error) {
	s.mu.RLock()
	var terms []domain.TopicTerm
	for _, t := range s.terms[runID] {
		if t.TopicID == topicID {
			terms = append(terms, t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(terms, func(i, j int) bool { return terms[i].Rank < terms[j].Rank })
	return terms, nil
}

// GetDocs returns one topic's document assignments ordered by doc id.
func (s *TopicStore) GetDocs(_ context.Context, runID string, topicID int) ([]domain.TopicDoc, error) {
	s.mu.RLock()
	var docs []domain.TopicDoc
	for _, d := range s.docs[runID] {
		if d.TopicID == topicID {
			docs = append(docs, d)
		}
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].DocID < docs[j].DocID })
	return docs, nil
}

// DeleteRun removes a run and its tree.
func (s *TopicStore) DeleteRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	delete(s.topics, runID)
	delete(s.terms, runID)
	delete(s.docs, runID)
	return nil
}
