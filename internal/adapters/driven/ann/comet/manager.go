// Package comet manages persisted HNSW indexes, one per embedding
// dimension, backed by the comet vector search library. Index files
// live under a dedicated directory and are watched for external
// changes so cached handles never go stale.
package comet

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	wcomet "github.com/wizenheimer/comet"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driven"
	"github.com/custodia-labs/notelens/internal/logger"
)

// Ensure Manager implements the interface.
var _ driven.AnnIndex = (*Manager)(nil)

// Default configuration values.
const (
	DefaultBreadth = 120

	// buildYieldEvery is how many inserts happen between status
	// updates and context checks during a build.
	buildYieldEvery = 500
)

// Config holds configuration for the index manager.
type Config struct {
	// Dir is the directory holding index files (required).
	Dir string

	// Breadth is the default HNSW efSearch applied to queries
	// (default: 120).
	Breadth int
}

// handle is one opened index with its id mapping. ids maps comet's
// internal node ids back to note ids.
type handle struct {
	index   *wcomet.HNSWIndex
	ids     map[uint64]int64
	breadth int
}

// Manager owns the per-dimension index files and their cached handles.
type Manager struct {
	dir     string
	breadth int

	mu      sync.Mutex
	handles map[int]*handle
	status  driven.AnnBuildStatus

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewManager creates an index manager rooted at cfg.Dir, creating the
// directory if needed.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("ann: index directory is required")
	}
	if cfg.Breadth <= 0 {
		cfg.Breadth = DefaultBreadth
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("ann: create index dir: %w", err)
	}

	m := &Manager{
		dir:     cfg.Dir,
		breadth: cfg.Breadth,
		handles: make(map[int]*handle),
		done:    make(chan struct{}),
	}

	// Handle invalidation on external file changes is best-effort; the
	// manager still works without a watcher.
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err := watcher.Add(cfg.Dir); err == nil {
			m.watcher = watcher
			go m.watch()
		} else {
			watcher.Close()
			logger.Warn("ann: index dir watch unavailable: %v", err)
		}
	} else {
		logger.Warn("ann: fsnotify unavailable: %v", err)
	}

	return m, nil
}

// watch drops cached handles whenever their index file changes on
// disk.
func (m *Manager) watch() {
	for {
		select {
		case <-m.done:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			var dim int
			if _, err := fmt.Sscanf(filepath.Base(event.Name), "index-%d", &dim); err == nil {
				m.mu.Lock()
				delete(m.handles, dim)
				m.mu.Unlock()
			}
		case _, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (m *Manager) indexPath(dim int) string {
	return filepath.Join(m.dir, fmt.Sprintf("index-%d.bin", dim))
}

func (m *Manager) idsPath(dim int) string {
	return filepath.Join(m.dir, fmt.Sprintf("index-%d.ids.json", dim))
}

// Build constructs and persists the index for one dimension, replacing
// any previous file. Only one build may run at a time.
func (m *Manager) Build(ctx context.Context, dim int, vectors []domain.EmbeddingVector) error {
	if dim <= 0 {
		return fmt.Errorf("ann: %w: dimension %d", domain.ErrInvalidInput, dim)
	}

	m.mu.Lock()
	if m.status.Running {
		m.mu.Unlock()
		return domain.ErrBuildInProgress
	}
	m.status = driven.AnnBuildStatus{
		Running:   true,
		Dim:       dim,
		Total:     len(vectors),
		StartedAt: time.Now(),
	}
	m.mu.Unlock()

	err := m.build(ctx, dim, vectors)

	m.mu.Lock()
	m.status.Running = false
	m.mu.Unlock()
	return err
}

func (m *Manager) build(ctx context.Context, dim int, vectors []domain.EmbeddingVector) error {
	mParam, efConstruction, _ := wcomet.DefaultHNSWConfig()
	index, err := wcomet.NewHNSWIndex(dim, wcomet.Cosine, mParam, efConstruction, m.breadth)
	if err != nil {
		return fmt.Errorf("ann: create index: %w", err)
	}

	ids := make(map[uint64]int64, len(vectors))
	processed, errors := 0, 0
	started := time.Now()

	for i, vec := range vectors {
		if len(vec.Vec) != dim {
			errors++
			continue
		}
		node := wcomet.NewVectorNode(vec.Vec)
		if err := index.Add(*node); err != nil {
			errors++
		} else {
			ids[uint64(node.ID())] = vec.DocID
			processed++
		}

		if (i+1)%buildYieldEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			m.updateStatus(processed, errors, started, len(vectors))
			runtime.Gosched()
		}
	}
	m.updateStatus(processed, errors, started, len(vectors))

	if err := m.persist(dim, index, ids); err != nil {
		return err
	}

	m.mu.Lock()
	m.handles[dim] = &handle{index: index, ids: ids, breadth: m.breadth}
	m.mu.Unlock()

	logger.Info("ann: built index dim=%d vectors=%d errors=%d in %s",
		dim, processed, errors, time.Since(started).Round(time.Millisecond))
	return nil
}

func (m *Manager) updateStatus(processed, errors int, started time.Time, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Processed = processed
	m.status.Errors = errors
	if processed > 0 && processed < total {
		elapsed := time.Since(started)
		m.status.ETA = time.Duration(float64(elapsed) / float64(processed) * float64(total-processed))
	} else {
		m.status.ETA = 0
	}
}

// persist writes the index and its id sidecar atomically via rename.
func (m *Manager) persist(dim int, index *wcomet.HNSWIndex, ids map[uint64]int64) error {
	tmp := m.indexPath(dim) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("ann: create index file: %w", err)
	}
	if _, err := index.WriteTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("ann: write index: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ann: close index file: %w", err)
	}
	if err := os.Rename(tmp, m.indexPath(dim)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ann: replace index file: %w", err)
	}

	payload, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("ann: marshal id map: %w", err)
	}
	if err := os.WriteFile(m.idsPath(dim), payload, 0o644); err != nil {
		return fmt.Errorf("ann: write id map: %w", err)
	}
	return nil
}

// BuildStatus reports progress of the running or most recent build.
func (m *Manager) BuildStatus() driven.AnnBuildStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Ready reports whether a persisted index exists for dim.
func (m *Manager) Ready(dim int) bool {
	if _, err := os.Stat(m.indexPath(dim)); err != nil {
		return false
	}
	_, err := os.Stat(m.idsPath(dim))
	return err == nil
}

// Search queries the persisted index for len(query) dimensions. A
// breadth different from the cached handle's reopens the index with
// that efSearch.
func (m *Manager) Search(ctx context.Context, query []float32, k, breadth int) ([]driven.AnnHit, error) {
	if len(query) == 0 || k <= 0 {
		return nil, fmt.Errorf("ann: %w: empty query", domain.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if breadth <= 0 {
		breadth = m.breadth
	}

	h, err := m.handle(len(query), breadth)
	if err != nil {
		return nil, err
	}

	results, err := h.index.NewSearch().
		WithQuery(query).
		WithK(k).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("ann: search: %w", err)
	}

	hits := make([]driven.AnnHit, 0, len(results))
	for _, result := range results {
		docID, ok := h.ids[uint64(result.GetId())]
		if !ok {
			continue
		}
		hits = append(hits, driven.AnnHit{
			DocID:      docID,
			Similarity: 1 - float64(result.GetScore()),
		})
	}
	return hits, nil
}

// handle returns the cached handle for dim, loading it from disk when
// absent or when a different breadth is requested.
func (m *Manager) handle(dim, breadth int) (*handle, error) {
	m.mu.Lock()
	cached, ok := m.handles[dim]
	m.mu.Unlock()
	if ok && cached.breadth == breadth {
		return cached, nil
	}

	h, err := m.load(dim, breadth)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.handles[dim] = h
	m.mu.Unlock()
	return h, nil
}

// load reads one persisted index and its id sidecar from disk.
func (m *Manager) load(dim, breadth int) (*handle, error) {
	f, err := os.Open(m.indexPath(dim))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("ann: %w: no index for dimension %d", domain.ErrNotFound, dim)
		}
		return nil, fmt.Errorf("ann: open index: %w", err)
	}
	defer f.Close()

	mParam, efConstruction, _ := wcomet.DefaultHNSWConfig()
	index, err := wcomet.NewHNSWIndex(dim, wcomet.Cosine, mParam, efConstruction, breadth)
	if err != nil {
		return nil, fmt.Errorf("ann: create index: %w", err)
	}
	if _, err := index.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("ann: read index: %w", err)
	}

	payload, err := os.ReadFile(m.idsPath(dim))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("ann: %w: no id map for dimension %d", domain.ErrNotFound, dim)
		}
		return nil, fmt.Errorf("ann: read id map: %w", err)
	}
	ids := make(map[uint64]int64)
	if err := json.Unmarshal(payload, &ids); err != nil {
		return nil, fmt.Errorf("ann: decode id map: %w", err)
	}

	return &handle{index: index, ids: ids, breadth: breadth}, nil
}

// Close releases cached index handles and stops the directory watcher.
func (m *Manager) Close() error {
	close(m.done)
	if m.watcher != nil {
		m.watcher.Close()
	}
	m.mu.Lock()
	m.handles = make(map[int]*handle)
	m.mu.Unlock()
	return nil
}
