package driven

import "context"

// Clusterer organises documents into a hierarchical topic forest.
// The contract is deliberately coarse-grained message passing: callers
// hand over documents, vectors and parameters, and receive a topic
// forest or an error. The clustering algorithm itself is a replaceable
// external capability, never reimplemented in-process.
type Clusterer interface {
	// Cluster runs one clustering job. Progress events stream to
	// onProgress when non-nil. A non-zero subprocess exit or malformed
	// payload surfaces as a wrapped domain.ErrClusterFailed.
	Cluster(ctx context.Context, req ClusterRequest, onProgress func(ClusterProgress)) (*ClusterResult, error)
}

// ClusterRequest is one clustering job. Exactly one of Embeddings or
// EmbeddingSource must be set: inline vectors, or a pointer for the
// clusterer to load them itself.
type ClusterRequest struct {
	// Documents are the (id, cleaned text) pairs to cluster.
	Documents []ClusterDocument `json:"documents"`

	// Embeddings are inline vectors, 1:1 with Documents.
	Embeddings [][]float32 `json:"embeddings,omitempty"`

	// EmbeddingSource tells the clusterer where to load vectors from.
	EmbeddingSource *ClusterEmbeddingSource `json:"embedding_source,omitempty"`

	// Params are the clustering hyperparameters.
	Params ClusterParams `json:"params"`
}

// ClusterDocument pairs a document id with its cleaned text.
type ClusterDocument struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// ClusterEmbeddingSource points the clusterer at stored vectors.
type ClusterEmbeddingSource struct {
	DBPath  string `json:"db_path"`
	Backend string `json:"backend"`
	Model   string `json:"model"`
}

// ClusterParams are the clustering hyperparameters, derived from the
// document count before each run.
type ClusterParams struct {
	UMAP           UMAPParams       `json:"umap"`
	HDBSCAN        HDBSCANParams    `json:"hdbscan"`
	Vectorizer     VectorizerParams `json:"vectorizer"`
	TopNTerms      int              `json:"top_n_terms"`
	MinTopicSize   int              `json:"min_topic_size"`
	NrTopics       *int             `json:"nr_topics"`
	Hierarchy      HierarchyParams  `json:"hierarchy"`
	Representation map[string]any   `json:"representation,omitempty"`
}

// UMAPParams control the dimensionality reduction step.
type UMAPParams struct {
	NNeighbors  int     `json:"n_neighbors"`
	NComponents int     `json:"n_components"`
	MinDist     float64 `json:"min_dist"`
	Metric      string  `json:"metric"`
	RandomState int     `json:"random_state"`
}

// HDBSCANParams control the density clustering step.
type HDBSCANParams struct {
	MinClusterSize         int    `json:"min_cluster_size"`
	MinSamples             *int   `json:"min_samples"`
	Metric                 string `json:"metric"`
	ClusterSelectionMethod string `json:"cluster_selection_method"`
}

// VectorizerParams control topic term extraction.
type VectorizerParams struct {
	NgramRange  [2]int `json:"ngram_range"`
	MinDf       int    `json:"min_df"`
	MaxFeatures *int   `json:"max_features"`
}

// HierarchyParams control hierarchical topic linking.
type HierarchyParams struct {
	UseCTFIDF   bool     `json:"use_ctfidf"`
	Linkage     string   `json:"linkage"`
	MaxDistance *float64 `json:"max_distance"`
}

// ClusterProgress is one streamed progress event.
type ClusterProgress struct {
	// Type discriminates the event: "stage", "embedding_progress",
	// "warning", "hierarchy_columns" or "hierarchy_debug".
	Type string `json:"type"`

	// Stage and Message describe stage events and warnings.
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`

	// Completed and Total carry embedding_progress counts.
	Completed int `json:"completed,omitempty"`
	Total     int `json:"total,omitempty"`

	// Hierarchy diagnostics.
	ParentsExpected int `json:"parents_expected,omitempty"`
	ParentsEmitted  int `json:"parents_emitted,omitempty"`
	TotalTopics     int `json:"total_topics,omitempty"`
	MaxLevel        int `json:"max_level,omitempty"`
}

// ClusterResult is the clusterer's final payload.
type ClusterResult struct {
	Topics []ClusteredTopic `json:"topics"`
	Meta   ClusterMeta      `json:"meta"`
}

// ClusteredTopic is one topic as returned by the clusterer. ParentID
// is nil for roots; topic id -1 is the outlier bucket.
type ClusteredTopic struct {
	TopicID  int                 `json:"topic_id"`
	ParentID *int                `json:"parent_id"`
	Level    int                 `json:"level"`
	Label    string              `json:"label"`
	Size     int                 `json:"size"`
	Score    *float64            `json:"score"`
	Terms    []ClusteredTerm     `json:"terms"`
	Docs     []ClusteredTopicDoc `json:"docs"`
}

// ClusteredTerm is one representative term of a clustered topic.
type ClusteredTerm struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// ClusteredTopicDoc is one document assignment of a clustered topic.
type ClusteredTopicDoc struct {
	ID     int64    `json:"id"`
	Weight *float64 `json:"weight"`
}

// ClusterMeta summarises a clustering run.
type ClusterMeta struct {
	NrTopics        int `json:"nr_topics"`
	Outliers        int `json:"outliers"`
	ParentsExpected int `json:"parents_expected"`
	ParentsEmitted  int `json:"parents_emitted"`
	MaxLevel        int `json:"max_level"`
}
