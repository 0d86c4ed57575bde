package bertopic

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/notelens/internal/core/domain"
	"github.com/custodia-labs/notelens/internal/core/ports/driven"
)

// fakeScript writes an executable shell script and returns a Clusterer
// running it. The subprocess contract only needs stdin/stdout/ndjson,
// so a shell stand-in exercises the adapter without Python.
func fakeScript(t *testing.T, body string) *Clusterer {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cluster.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))

	c, err := NewClusterer(Config{Python: "/bin/sh", Script: path})
	require.NoError(t, err)
	return c
}

func sampleRequest() driven.ClusterRequest {
	return driven.ClusterRequest{
		Documents:  []driven.ClusterDocument{{ID: 1, Text: "alpha"}, {ID: 2, Text: "beta"}},
		Embeddings: [][]float32{{1, 0}, {0, 1}},
		Params: driven.ClusterParams{
			TopNTerms:    10,
			MinTopicSize: 2,
		},
	}
}

func TestNewClusterer_RequiresScript(t *testing.T) {
	_, err := NewClusterer(Config{})
	assert.Error(t, err)
}

func TestCluster_ProgressAndFinalPayload(t *testing.T) {
	c := fakeScript(t, `
cat > /dev/null
echo '{"type":"stage","stage":"umap"}'
echo '{"type":"embedding_progress","completed":1,"total":2}'
echo 'not json, ignored'
echo '{"topics":[{"topic_id":0,"parent_id":null,"level":0,"label":"alpha beta","size":2,"terms":[{"term":"alpha","score":0.9,"rank":0}],"docs":[{"id":1},{"id":2}]}],"meta":{"nr_topics":1,"outliers":0}}'
`)

	var events []driven.ClusterProgress
	result, err := c.Cluster(context.Background(), sampleRequest(), func(p driven.ClusterProgress) {
		events = append(events, p)
	})
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "stage", events[0].Type)
	assert.Equal(t, "umap", events[0].Stage)
	assert.Equal(t, 1, events[1].Completed)

	require.Len(t, result.Topics, 1)
	assert.Equal(t, 0, result.Topics[0].TopicID)
	assert.Equal(t, "alpha beta", result.Topics[0].Label)
	assert.Len(t, result.Topics[0].Docs, 2)
	assert.Equal(t, 1, result.Meta.NrTopics)
}

func TestCluster_ReceivesRequestOnStdin(t *testing.T) {
	// The script echoes the document count it read back as the label.
	c := fakeScript(t, `
input=$(cat)
count=$(printf '%s' "$input" | grep -o '"id"' | wc -l)
echo "{\"topics\":[{\"topic_id\":0,\"parent_id\":null,\"level\":0,\"label\":\"docs=$count\",\"size\":0,\"terms\":[],\"docs\":[]}],\"meta\":{}}"
`)

	result, err := c.Cluster(context.Background(), sampleRequest(), nil)
	require.NoError(t, err)
	require.Len(t, result.Topics, 1)
	assert.Equal(t, "docs=2", result.Topics[0].Label)
}

func TestCluster_ErrorPayload(t *testing.T) {
	c := fakeScript(t, `
cat > /dev/null
echo '{"error":"hdbscan found no clusters"}'
`)

	_, err := c.Cluster(context.Background(), sampleRequest(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrClusterFailed)
	assert.Contains(t, err.Error(), "hdbscan found no clusters")
}

func TestCluster_NonZeroExitWithStderr(t *testing.T) {
	c := fakeScript(t, `
cat > /dev/null
echo 'Traceback: boom' >&2
exit 3
`)

	_, err := c.Cluster(context.Background(), sampleRequest(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrClusterFailed)
	assert.Contains(t, err.Error(), "Traceback: boom")
}

func TestCluster_NoFinalPayload(t *testing.T) {
	c := fakeScript(t, `
cat > /dev/null
echo '{"type":"stage","stage":"umap"}'
`)

	_, err := c.Cluster(context.Background(), sampleRequest(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrClusterFailed)
}

func TestCluster_ContextCancellation(t *testing.T) {
	c := fakeScript(t, `
cat > /dev/null
exec sleep 30
`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Cluster(ctx, sampleRequest(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
