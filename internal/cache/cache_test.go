package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Views int    `json:"views"`
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), "wiki")
	require.NoError(t, err)
	return c
}

func TestLoadOrFetch_ComputesOnceAndCaches(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	var calls int
	compute := func(_ context.Context) (payload, error) {
		calls++
		return payload{Name: "Gorges du Verdon", Views: 1200}, nil
	}

	first, err := LoadOrFetch(ctx, c, "fr:Gorges du Verdon", false, compute)
	require.NoError(t, err)
	second, err := LoadOrFetch(ctx, c, "fr:Gorges du Verdon", false, compute)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "compute must run only once for the same key")
	assert.Equal(t, first, second)
	assert.True(t, c.Exists("fr:Gorges du Verdon"))
}

func TestLoadOrFetch_ForceRefreshRecomputesAndOverwrites(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	var calls int
	compute := func(_ context.Context) (payload, error) {
		calls++
		return payload{Name: "Lac d'Annecy", Views: calls}, nil
	}

	_, err := LoadOrFetch(ctx, c, "k", false, compute)
	require.NoError(t, err)

	refreshed, err := LoadOrFetch(ctx, c, "k", true, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, refreshed.Views)

	// Stored entry reflects the refresh.
	cached, err := LoadOrFetch(ctx, c, "k", false, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, cached.Views)
	assert.Equal(t, 2, calls)
}

func TestLoadOrFetch_CorruptEntryFallsThrough(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(c.Dir(), "bad.json"), []byte("{not json"), 0o644))

	val, err := LoadOrFetch(ctx, c, "bad", false, func(_ context.Context) (payload, error) {
		return payload{Name: "recovered"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", val.Name)
}

func TestDeleteAndClear(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		_, err := LoadOrFetch(ctx, c, key, false, func(_ context.Context) (int, error) { return 1, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.Len())

	require.NoError(t, c.Delete("a"))
	assert.False(t, c.Exists("a"))
	require.NoError(t, c.Delete("a"), "deleting a missing key is not an error")

	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Len())
}

func TestSanitizeKey_PathSeparators(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, err := LoadOrFetch(ctx, c, "en:Mont Blanc/summit", false, func(_ context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.True(t, c.Exists("en:Mont Blanc/summit"))

	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), "/")
}
