package driven

import (
	"context"

	"github.com/custodia-labs/notelens/internal/core/domain"
)

// TopicStore persists topic runs and their trees.
type TopicStore interface {
	// SaveRun writes a run with its full tree in one transaction.
	// Either everything lands or nothing does.
	SaveRun(ctx context.Context, run domain.TopicRun, topics []domain.Topic, terms []domain.TopicTerm, docs []domain.TopicDoc) error

	// GetRun retrieves one run by id, domain.ErrNotFound when absent.
	GetRun(ctx context.Context, runID string) (*domain.TopicRun, error)

	// LatestRun retrieves the most recent run for a scope hash,
	// domain.ErrNotFound when the scope has never been built.
	LatestRun(ctx context.Context, scopeHash string) (*domain.TopicRun, error)

	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, limit int) ([]domain.TopicRun, error)

	// GetTopics returns a run's topics ordered by level then topic id.
	GetTopics(ctx context.Context, runID string) ([]domain.Topic, error)

	// GetTerms returns one topic's terms in rank order.
	GetTerms(ctx context.Context, runID string, topicID int) ([]domain.TopicTerm, error)

	// GetDocs returns one topic's document assignments.
	GetDocs(ctx context.Context, runID string, topicID int) ([]domain.TopicDoc, error)

	// DeleteRun removes a run and its tree.
	DeleteRun(ctx context.Context, runID string) error
}
