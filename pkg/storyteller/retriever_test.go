package storyteller

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravenwood/storyteller/pkg/memory"
	"github.com/ravenwood/storyteller/pkg/vector"
)

type fakeProvider struct {
	upserts map[string]map[string]any
	hits    []vector.Result
	err     error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{upserts: make(map[string]map[string]any)}
}

func (p *fakeProvider) Upsert(ctx context.Context, collection, id string, vec []float32, metadata map[string]any) error {
	if p.err != nil {
		return p.err
	}
	p.upserts[collection+"/"+id] = metadata
	return nil
}

func (p *fakeProvider) Search(ctx context.Context, collection string, vec []float32, topK int) ([]vector.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.hits, nil
}

func (p *fakeProvider) SearchWithFilter(ctx context.Context, collection string, vec []float32, topK int, filter map[string]any) ([]vector.Result, error) {
	return p.Search(ctx, collection, vec, topK)
}

func (p *fakeProvider) Delete(ctx context.Context, collection, id string) error { return nil }
func (p *fakeProvider) DeleteCollection(ctx context.Context, collection string) error {
	return nil
}
func (p *fakeProvider) Name() string { return "fake" }
func (p *fakeProvider) Close() error { return nil }

type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0}, nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (e *fakeEmbedder) Dimension() int { return 2 }
func (e *fakeEmbedder) Model() string  { return "fake" }

func TestMemoryRetrieverUsesRulesIndex(t *testing.T) {
	mgr := memory.NewManager(memory.Config{}, nil, nil)
	mgr.IngestRules(context.Background(), []memory.RuleDocument{
		{Source: "base.md", Content: "nomination requires a seconder before voting opens"},
	})

	r := NewMemoryRetriever(mgr)
	results, err := r.Retrieve(context.Background(), "nomination voting", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Content, "nomination")
	assert.Greater(t, results[0].Score, 0.0)
}

func TestVectorRetrieverRequiresDependencies(t *testing.T) {
	_, err := NewVectorRetriever(nil, &fakeEmbedder{})
	assert.ErrorContains(t, err, "vector provider is required")

	_, err = NewVectorRetriever(newFakeProvider(), nil)
	assert.ErrorContains(t, err, "embedder is required")
}

func TestVectorRetrieverMapsHits(t *testing.T) {
	provider := newFakeProvider()
	provider.hits = []vector.Result{
		{ID: "base.md#0", Score: 0.91, Content: "ghost votes may be spent once", Metadata: map[string]any{"source": "base.md"}},
		{ID: "base.md#1", Score: 0.40, Metadata: map[string]any{"content": "executions resolve at dusk"}},
	}

	r, err := NewVectorRetriever(provider, &fakeEmbedder{})
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "ghost vote", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "ghost votes may be spent once", results[0].Content)
	assert.Equal(t, 0.91, results[0].Score)
	// Content falls back to metadata when the hit body is empty.
	assert.Equal(t, "executions resolve at dusk", results[1].Content)
}

func TestVectorRetrieverEmptyQuery(t *testing.T) {
	r, err := NewVectorRetriever(newFakeProvider(), &fakeEmbedder{})
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestVectorRetrieverEmbedFailure(t *testing.T) {
	r, err := NewVectorRetriever(newFakeProvider(), &fakeEmbedder{err: fmt.Errorf("backend down")})
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "ghost vote", 5)
	assert.ErrorContains(t, err, "embed query")
}

func TestIndexRulesChunksAndUpserts(t *testing.T) {
	provider := newFakeProvider()
	docs := []memory.RuleDocument{
		{Source: "base.md", Content: "First paragraph.\n\nSecond paragraph.\n\n   \n\nThird."},
		{Source: "roles.md", RoleName: "Seer", Content: "Each night, learn one alignment."},
	}

	added, err := IndexRules(context.Background(), provider, &fakeEmbedder{}, docs)
	require.NoError(t, err)
	assert.Equal(t, 4, added)

	meta, ok := provider.upserts["rules/base.md#1"]
	require.True(t, ok)
	assert.Equal(t, "Second paragraph.", meta["content"])

	meta, ok = provider.upserts["rules/roles.md#0"]
	require.True(t, ok)
	assert.Equal(t, "Seer", meta["role_name"])
}

func TestIndexRulesSkipsEmptyDocuments(t *testing.T) {
	provider := newFakeProvider()
	added, err := IndexRules(context.Background(), provider, &fakeEmbedder{}, []memory.RuleDocument{
		{Source: "empty.md", Content: "   \n\n  "},
	})
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Empty(t, provider.upserts)
}
