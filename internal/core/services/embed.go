package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driven"
	"github.com/custodia-labs/notelens/internal/core/ports/driving"
	"github.com/custodia-labs/notelens/internal/logger"
)

// Ensure EmbedService implements the interface.
var _ driving.EmbedService = (*EmbedService)(nil)

const (
	// backfillWorkers bounds concurrent provider requests.
	backfillWorkers = 5

	// backfillBatchSize is how many notes go into one provider call.
	backfillBatchSize = 32

	// idPageSize pages the corpus id walk.
	idPageSize = 1000
)

// EmbedService manages vector coverage for the active embedding space:
// backfilling missing vectors through the provider and building the
// ANN index over what is stored.
type EmbedService struct {
	notes    driven.NoteStore
	vectors  driven.EmbeddingStore
	embedder driven.EmbeddingService
	settings driving.SettingsService

	ann driven.AnnIndex // optional

	mu      sync.RWMutex
	running bool
	status  driving.BackfillStatus
}

// NewEmbedService creates an embed service. The embedder may be nil,
// which leaves only Coverage usable.
func NewEmbedService(
	notes driven.NoteStore,
	vectors driven.EmbeddingStore,
	embedder driven.EmbeddingService,
	settings driving.SettingsService,
) *EmbedService {
	return &EmbedService{
		notes:    notes,
		vectors:  vectors,
		embedder: embedder,
		settings: settings,
	}
}

// SetAnnIndex attaches an approximate-neighbour index for BuildIndex
// and coverage reporting.
func (s *EmbedService) SetAnnIndex(ann driven.AnnIndex) {
	s.ann = ann
}

// Backfill computes and stores vectors for notes that lack them,
// fanning batches out over a bounded worker pool.
func (s *EmbedService) Backfill(ctx context.Context) (*driving.BackfillReport, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("backfill: %w", domain.ErrEmbeddingUnavailable)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, domain.ErrBuildInProgress
	}
	s.running = true
	started := time.Now()
	s.status = driving.BackfillStatus{Running: true, StartedAt: started}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.status.Running = false
		s.mu.Unlock()
	}()

	ref := domain.EmbeddingRef{Backend: s.embedder.Backend(), Model: s.embedder.ModelName()}

	logger.Section("Embedding Backfill")
	logger.Info("Backfilling %s vectors", ref)

	missing, err := s.missingIDs(ctx, ref)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.status.Total = len(missing)
	s.mu.Unlock()

	if len(missing) == 0 {
		logger.Info("Coverage already complete")
		return &driving.BackfillReport{Ref: ref, Elapsed: time.Since(started)}, nil
	}
	logger.Info("%d notes need vectors", len(missing))

	pool, err := ants.NewPool(backfillWorkers)
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		tallyMu  sync.Mutex
		embedded int
		failed   int
		skipped  int
	)

	for start := 0; start < len(missing); start += backfillBatchSize {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		default:
		}

		end := min(start+backfillBatchSize, len(missing))
		batch := missing[start:end]

		wg.Add(1)
		task := func() {
			defer wg.Done()
			e, f, k := s.backfillBatch(ctx, ref, batch)
			tallyMu.Lock()
			embedded += e
			failed += f
			skipped += k
			tallyMu.Unlock()
			s.advance(len(batch), f)
		}
		if err := pool.Submit(task); err != nil {
			// Pool rejected the task, run it inline.
			task()
		}
	}
	wg.Wait()

	report := &driving.BackfillReport{
		Ref:      ref,
		Embedded: embedded,
		Failed:   failed,
		Skipped:  skipped,
		Elapsed:  time.Since(started),
	}
	logger.Info("Backfill done: %d embedded, %d failed, %d skipped in %s",
		report.Embedded, report.Failed, report.Skipped, report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// BackfillStatus reports progress of the running or most recent
// backfill.
func (s *EmbedService) BackfillStatus() driving.BackfillStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Coverage reports how much of the corpus has vectors for the active
// embedding space.
func (s *EmbedService) Coverage(ctx context.Context) (*driving.CoverageReport, error) {
	ref := s.activeRef()
	if ref.IsZero() {
		return nil, fmt.Errorf("coverage: %w", domain.ErrEmbeddingUnavailable)
	}

	total, err := s.notes.DocCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("doc count: %w", err)
	}
	withVectors, err := s.vectors.CountByRef(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("vector count: %w", err)
	}
	dims, err := s.vectors.Dimensions(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("dimensions: %w", err)
	}

	report := &driving.CoverageReport{
		Ref:         ref,
		TotalNotes:  total,
		WithVectors: withVectors,
		Dimensions:  dims,
	}
	if s.ann != nil {
		if dim := s.primaryDimension(dims); dim > 0 {
			report.IndexReady = s.ann.Ready(dim)
		}
	}
	return report, nil
}

// BuildIndex constructs and persists the ANN index for the active
// embedding space over its primary dimension.
func (s *EmbedService) BuildIndex(ctx context.Context) error {
	if s.ann == nil {
		return fmt.Errorf("index build: no ann index configured: %w", domain.ErrInvalidInput)
	}
	ref := s.activeRef()
	if ref.IsZero() {
		return fmt.Errorf("index build: %w", domain.ErrEmbeddingUnavailable)
	}

	dims, err := s.vectors.Dimensions(ctx, ref)
	if err != nil {
		return fmt.Errorf("dimensions: %w", err)
	}
	dim := s.primaryDimension(dims)
	if dim == 0 {
		return fmt.Errorf("index build: no vectors stored for %s, run 'embed backfill' first: %w", ref, domain.ErrNoVector)
	}

	rows, err := s.vectors.ScanByDimension(ctx, ref, dim)
	if err != nil {
		return fmt.Errorf("loading vectors: %w", err)
	}

	logger.Section("Index Build")
	logger.Info("Building index for %s dim=%d over %d vectors", ref, dim, len(rows))
	if err := s.ann.Build(ctx, dim, rows); err != nil {
		return fmt.Errorf("building index: %w", err)
	}
	logger.Info("Index build complete")
	return nil
}

// IndexStatus reports progress of the running or most recent index
// build.
func (s *EmbedService) IndexStatus() driving.IndexBuildStatus {
	if s.ann == nil {
		return driving.IndexBuildStatus{}
	}
	st := s.ann.BuildStatus()
	return driving.IndexBuildStatus{
		Running:   st.Running,
		Dim:       st.Dim,
		Processed: st.Processed,
		Errors:    st.Errors,
		Total:     st.Total,
		StartedAt: st.StartedAt,
		ETA:       st.ETA,
	}
}

// activeRef is the embedding space maintenance runs against.
func (s *EmbedService) activeRef() domain.EmbeddingRef {
	if s.embedder != nil {
		return domain.EmbeddingRef{Backend: s.embedder.Backend(), Model: s.embedder.ModelName()}
	}
	return loadSettings(s.settings).Embedding.Ref()
}

// primaryDimension picks the dimension search runs against: the
// attached backend's, when present among the stored ones, otherwise
// the largest stored dimensionality.
func (s *EmbedService) primaryDimension(dims []int) int {
	if len(dims) == 0 {
		return 0
	}
	if s.embedder != nil {
		want := s.embedder.Dimensions()
		for _, d := range dims {
			if d == want {
				return d
			}
		}
	}
	return dims[len(dims)-1]
}

// missingIDs walks the corpus and filters down to notes without a
// stored vector for ref.
func (s *EmbedService) missingIDs(ctx context.Context, ref domain.EmbeddingRef) ([]int64, error) {
	var missing []int64
	for offset := 0; ; offset += idPageSize {
		page, err := s.notes.ListIDs(ctx, idPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("listing notes: %w", err)
		}
		if len(page) == 0 {
			break
		}
		gaps, err := s.vectors.MissingIDs(ctx, page, ref)
		if err != nil {
			return nil, fmt.Errorf("filtering missing vectors: %w", err)
		}
		missing = append(missing, gaps...)
		if len(page) < idPageSize {
			break
		}
	}
	return missing, nil
}

// backfillBatch embeds one id batch and upserts the results. Returns
// embedded, failed, and skipped counts.
func (s *EmbedService) backfillBatch(ctx context.Context, ref domain.EmbeddingRef, ids []int64) (embedded, failed, skipped int) {
	texts := make([]string, 0, len(ids))
	textIDs := make([]int64, 0, len(ids))
	for _, id := range ids {
		note, err := s.notes.GetNote(ctx, id)
		if err != nil {
			failed++
			continue
		}
		t := noteText(*note)
		if t == "" {
			skipped++
			continue
		}
		texts = append(texts, t)
		textIDs = append(textIDs, id)
	}
	if len(texts) == 0 {
		return embedded, failed, skipped
	}

	vecs, err := s.embedder.EmbedBatch(ctx, texts, driven.EmbedRoleDocument)
	if err != nil {
		logger.Warn("Embedding batch of %d failed: %v", len(texts), err)
		return embedded, failed + len(texts), skipped
	}
	if len(vecs) != len(texts) {
		logger.Warn("Provider returned %d vectors for %d texts, dropping batch", len(vecs), len(texts))
		return embedded, failed + len(texts), skipped
	}

	rows := make([]domain.EmbeddingVector, 0, len(vecs))
	for i, vec := range vecs {
		if len(vec) == 0 {
			failed++
			continue
		}
		rows = append(rows, domain.NewEmbeddingVector(textIDs[i], ref, vec, contentHash(texts[i])))
	}
	if err := s.vectors.UpsertVectors(ctx, rows); err != nil {
		logger.Warn("Upserting %d vectors failed: %v", len(rows), err)
		return embedded, failed + len(rows), skipped
	}
	return embedded + len(rows), failed, skipped
}

// advance bumps the pollable progress counters and refreshes the ETA.
func (s *EmbedService) advance(processed, errs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Processed += processed
	s.status.Errors += errs
	if s.status.Processed > 0 && s.status.Total > s.status.Processed {
		elapsed := time.Since(s.status.StartedAt)
		perItem := elapsed / time.Duration(s.status.Processed)
		s.status.ETA = perItem * time.Duration(s.status.Total-s.status.Processed)
	} else {
		s.status.ETA = 0
	}
}

// contentHash is the staleness marker stored with each vector.
func contentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
