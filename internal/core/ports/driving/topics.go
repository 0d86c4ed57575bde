package driving

import (
	"context"

	"github.com/custodia-labs/notelens/internal/core/domain"
)

// TopicService builds and serves hierarchical topic maps.
type TopicService interface {
	// Build runs one topic-map build over the given scope and returns
	// the persisted run id. Builds are exclusive: a second Build while
	// one is running returns domain.ErrBuildInProgress.
	Build(ctx context.Context, scope domain.TopicScope) (string, error)

	// Status reports pollable coarse progress for the running or most
	// recent build.
	Status() domain.TopicBuildStatus

	// LatestRun finds the newest persisted run for a scope.
	LatestRun(ctx context.Context, scope domain.TopicScope) (*domain.TopicRun, error)

	// ListRuns returns persisted runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]domain.TopicRun, error)

	// Tree returns a run's topic tree with terms attached, ordered by
	// level then topic id.
	Tree(ctx context.Context, runID string) ([]TopicNode, error)

	// DeleteRun removes a persisted run and its tree.
	DeleteRun(ctx context.Context, runID string) error
}

// TopicNode is one topic with its terms and document assignments,
// ready for display.
type TopicNode struct {
	Topic domain.Topic
	Terms []domain.TopicTerm
	Docs  []domain.TopicDoc
}
