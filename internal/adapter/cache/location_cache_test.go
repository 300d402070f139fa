package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rl1809/slabby/internal/core/domain"
	"github.com/rl1809/slabby/internal/port"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGet_UnknownOnMiss(t *testing.T) {
	c := NewLocationCache()

	got := c.Get(domain.NewLocation(1, 2, 3, "world"))
	assert.Equal(t, port.LookupUnknown, got.Kind)
	assert.Nil(t, got.Shop)
}

func TestStore_Tombstone(t *testing.T) {
	c := NewLocationCache()
	loc := domain.NewLocation(1, 2, 3, "world")

	c.Store(loc, nil)

	got := c.Get(loc)
	assert.Equal(t, port.LookupTombstone, got.Kind)
	assert.Nil(t, got.Shop)
}

func TestStore_HitReturnsSharedReference(t *testing.T) {
	c := NewLocationCache()
	loc := domain.NewLocation(10, 5, 20, "world")
	shop := &domain.Shop{ID: 7}
	shop.SetLocation(&loc)

	c.Store(loc, shop)

	got := c.Get(loc)
	require.Equal(t, port.LookupHit, got.Kind)
	assert.Same(t, shop, got.Shop)
}

func TestStore_OneEntryPerCoordinate(t *testing.T) {
	c := NewLocationCache()
	loc := domain.NewLocation(1, 5, 1, "world")
	first := &domain.Shop{ID: 1}
	second := &domain.Shop{ID: 2}

	c.Store(loc, first)
	c.Store(loc, second)

	got := c.Get(loc)
	require.Equal(t, port.LookupHit, got.Kind)
	assert.Same(t, second, got.Shop)
	assert.Equal(t, 1, c.Len())
}

func TestDelete_ForcesUnknown(t *testing.T) {
	c := NewLocationCache()
	loc := domain.NewLocation(1, 2, 3, "world")
	c.Store(loc, &domain.Shop{ID: 1})

	c.Delete(loc)

	assert.Equal(t, port.LookupUnknown, c.Get(loc).Kind)
	assert.Equal(t, 0, c.Len())
}

func TestWorldIsPartOfKey(t *testing.T) {
	c := NewLocationCache()
	c.Store(domain.NewLocation(1, 2, 3, "world"), &domain.Shop{ID: 1})

	assert.Equal(t, port.LookupUnknown, c.Get(domain.NewLocation(1, 2, 3, "world_nether")).Kind)
}

func TestClear(t *testing.T) {
	c := NewLocationCache()
	for i := 0; i < 5; i++ {
		c.Store(domain.NewLocation(i, 0, 0, "world"), nil)
	}

	c.Clear()

	assert.Equal(t, 0, c.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c := NewLocationCache()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loc := domain.NewLocation(i%10, 0, 0, fmt.Sprintf("w%d", i%3))
			c.Store(loc, &domain.Shop{ID: int64(i)})
			_ = c.Get(loc)
			if i%4 == 0 {
				c.Delete(loc)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 30)
}
