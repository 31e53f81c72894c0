package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChromemUpsertAndSearch(t *testing.T) {
	p, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Upsert(ctx, "rules", "base.md#0", []float32{1, 0},
		map[string]any{"content": "nominations open at noon", "source": "base.md"}))
	require.NoError(t, p.Upsert(ctx, "rules", "base.md#1", []float32{0, 1},
		map[string]any{"content": "executions resolve at dusk", "source": "base.md"}))

	results, err := p.Search(ctx, "rules", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "base.md#0", results[0].ID)
	assert.Equal(t, "nominations open at noon", results[0].Content)
	assert.Equal(t, "base.md", results[0].Metadata["source"])
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestChromemSearchWithFilter(t *testing.T) {
	p, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Upsert(ctx, "rules", "a", []float32{1, 0},
		map[string]any{"content": "rule a", "source": "base.md"}))
	require.NoError(t, p.Upsert(ctx, "rules", "b", []float32{1, 0},
		map[string]any{"content": "rule b", "source": "roles.md"}))

	results, err := p.SearchWithFilter(ctx, "rules", []float32{1, 0}, 1,
		map[string]any{"source": "roles.md"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestChromemDelete(t *testing.T) {
	p, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Upsert(ctx, "rules", "a", []float32{1, 0},
		map[string]any{"content": "rule a"}))
	require.NoError(t, p.Upsert(ctx, "rules", "b", []float32{0, 1},
		map[string]any{"content": "rule b"}))
	require.NoError(t, p.Delete(ctx, "rules", "a"))

	results, err := p.Search(ctx, "rules", []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestChromemPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	p, err := NewChromemProvider(ChromemConfig{PersistPath: dir})
	require.NoError(t, err)
	require.NoError(t, p.Upsert(ctx, "rules", "a", []float32{1, 0},
		map[string]any{"content": "rule a"}))
	require.NoError(t, p.Close())

	reloaded, err := NewChromemProvider(ChromemConfig{PersistPath: dir})
	require.NoError(t, err)
	defer reloaded.Close()

	results, err := reloaded.Search(ctx, "rules", []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "rule a", results[0].Content)
}

func TestChromemName(t *testing.T) {
	p, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "chromem", p.Name())
}
