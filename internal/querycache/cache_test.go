package querycache_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/scanreport/internal/querycache"
)

func TestCache_GetPut(t *testing.T) {
	t.Parallel()

	c := querycache.New[[]int64](4)

	_, found := c.Get(querycache.Key{Generation: 1, Sort: "path"})
	assert.False(t, found)

	c.Put(querycache.Key{Generation: 1, Sort: "path"}, []int64{2, 0, 1})

	got, found := c.Get(querycache.Key{Generation: 1, Sort: "path"})
	require.True(t, found)
	assert.Equal(t, []int64{2, 0, 1}, got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := querycache.New[int](2)

	c.Put(querycache.Key{Sort: "a"}, 1)
	c.Put(querycache.Key{Sort: "b"}, 2)

	_, found := c.Get(querycache.Key{Sort: "a"})
	require.True(t, found)

	c.Put(querycache.Key{Sort: "c"}, 3)

	_, found = c.Get(querycache.Key{Sort: "b"})
	assert.False(t, found)

	_, found = c.Get(querycache.Key{Sort: "a"})
	assert.True(t, found)
	assert.Equal(t, 2, c.Len())
}

func TestCache_NewGenerationDropsEntries(t *testing.T) {
	t.Parallel()

	c := querycache.New[int](8)

	c.Put(querycache.Key{Generation: 1, Sort: "path"}, 1)
	c.Put(querycache.Key{Generation: 1, Sort: "criticality"}, 2)

	_, found := c.Get(querycache.Key{Generation: 2, Sort: "path"})
	assert.False(t, found)
	assert.Zero(t, c.Len())
	assert.Equal(t, int64(1), c.Stats().Purges)

	c.Put(querycache.Key{Generation: 1, Sort: "path"}, 1)
	assert.Zero(t, c.Len())
}

func TestCache_NilIsDisabled(t *testing.T) {
	t.Parallel()

	c := querycache.New[int](0)
	require.Nil(t, c)

	c.Put(querycache.Key{Sort: "a"}, 1)

	_, found := c.Get(querycache.Key{Sort: "a"})
	assert.False(t, found)
	assert.Equal(t, querycache.Stats{}, c.Stats())
}

func TestCache_Concurrent(t *testing.T) {
	t.Parallel()

	c := querycache.New[int](16)

	var wg sync.WaitGroup

	for g := range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range 100 {
				key := querycache.Key{Generation: uint64(i / 10), Sort: string(rune('a' + g%5))}
				c.Put(key, i)
				c.Get(key)
			}
		}()
	}

	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 16)
}
