// Command notelens is a hybrid note search engine: full-text retrieval
// fused with embedding similarity, plus clustered topic maps over the
// corpus.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/notelens/internal/adapters/driven/ai"
	anncomet "github.com/custodia-labs/notelens/internal/adapters/driven/ann/comet"
	"github.com/custodia-labs/notelens/internal/adapters/driven/cluster/bertopic"
	configfile "github.com/custodia-labs/notelens/internal/adapters/driven/config/file"
	"github.com/custodia-labs/notelens/internal/adapters/driven/keywords"
	"github.com/custodia-labs/notelens/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/notelens/internal/adapters/driving/cli"
	"github.com/custodia-labs/notelens/internal/core/ports/driven"
	"github.com/custodia-labs/notelens/internal/core/services"
	"github.com/custodia-labs/notelens/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configStore, err := configfile.NewConfigStore("")
	if err != nil {
		return fmt.Errorf("opening config store: %w", err)
	}

	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())

	store, err := sqlite.NewStore("")
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	notes := store.NoteStore()
	vectors := store.EmbeddingStore()
	topics := store.TopicStore()

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	// Optional backends degrade to nil; commands that need them report
	// what to configure.
	var embedder driven.EmbeddingService
	if settings.Embedding.IsConfigured() {
		embedder, err = ai.CreateEmbeddingService(&settings.Embedding)
		if err != nil {
			logger.Warn("Embedding backend unavailable: %v", err)
		}
	}

	var reranker driven.Reranker
	if settings.Rerank.IsConfigured() {
		reranker, err = ai.CreateReranker(&settings.Rerank)
		if err != nil {
			logger.Warn("Rerank backend unavailable: %v", err)
		}
	}

	var ann driven.AnnIndex
	if settings.Ann.Enabled {
		annDir := settings.Ann.Dir
		if annDir == "" {
			annDir = filepath.Join(filepath.Dir(store.Path()), "index")
		}
		manager, err := anncomet.NewManager(anncomet.Config{
			Dir:     annDir,
			Breadth: settings.Ann.Breadth,
		})
		if err != nil {
			logger.Warn("ANN index unavailable: %v", err)
		} else {
			ann = manager
			defer manager.Close()
		}
	}

	var clusterer driven.Clusterer
	if settings.Topics.Script != "" {
		clusterer, err = bertopic.NewClusterer(bertopic.Config{
			Python: settings.Topics.Python,
			Script: settings.Topics.Script,
		})
		if err != nil {
			logger.Warn("Clustering backend unavailable: %v", err)
		}
	}

	extractor := keywords.NewExtractor()

	searchService := services.NewSearchService(notes, vectors, extractor, settingsService)
	if embedder != nil {
		searchService.SetEmbeddingService(embedder)
	}
	if ann != nil {
		searchService.SetAnnIndex(ann)
	}
	if reranker != nil {
		searchService.SetReranker(reranker)
	}

	embedService := services.NewEmbedService(notes, vectors, embedder, settingsService)
	if ann != nil {
		embedService.SetAnnIndex(ann)
	}

	topicService := services.NewTopicService(notes, vectors, topics, clusterer, settingsService)
	topicService.SetSearchService(searchService)
	if embedder != nil {
		topicService.SetEmbeddingService(embedder)
	}

	cli.SetVersion(version)
	cli.SetServices(cli.Services{
		Search:   searchService,
		Embed:    embedService,
		Topics:   topicService,
		Settings: settingsService,
	})

	return cli.Execute()
}
