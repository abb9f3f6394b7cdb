package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkpreview/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRepo(maxEntries int) (*Repository, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(DefaultTTL, maxEntries, WithClock(clock.Now)), clock
}

func sample(title string) domain.Metadata {
	md := domain.EmptyMetadata()
	md.Title = title
	return md
}

func TestRepository_GetWithinTTL(t *testing.T) {
	testCases := []struct {
		name string
		ttl  time.Duration
	}{
		{"one second", time.Second},
		{"one minute", time.Minute},
		{"default ttl", 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			repo, clock := newTestRepo(0)
			repo.Set("k", sample("v"), tc.ttl)

			ttl := tc.ttl
			if ttl == 0 {
				ttl = DefaultTTL
			}

			clock.Advance(ttl - time.Nanosecond)
			got, ok := repo.Get("k")
			require.True(t, ok)
			assert.Equal(t, "v", got.Title)

			clock.Advance(time.Nanosecond)
			_, ok = repo.Get("k")
			assert.False(t, ok, "entry must be absent at exactly ttl")
		})
	}
}

func TestRepository_ExpiredEntryIsDeletedOnGet(t *testing.T) {
	repo, clock := newTestRepo(0)
	repo.Set("k", sample("v"), time.Second)
	require.Equal(t, 1, repo.Len())

	clock.Advance(2 * time.Second)
	assert.False(t, repo.Has("k"))
	assert.Equal(t, 0, repo.Len())
}

func TestRepository_SetReplaces(t *testing.T) {
	repo, _ := newTestRepo(0)
	repo.Set("k", sample("old"), time.Minute)
	repo.Set("k", sample("new"), time.Minute)

	got, ok := repo.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", got.Title)
}

func TestRepository_StoresFreshVariant(t *testing.T) {
	repo, _ := newTestRepo(0)
	md := sample("v")
	md.Cached = true
	repo.Set("k", md, time.Minute)

	got, ok := repo.Get("k")
	require.True(t, ok)
	assert.False(t, got.Cached)
}

func TestRepository_Delete(t *testing.T) {
	repo, _ := newTestRepo(0)
	repo.Set("k", sample("v"), time.Minute)
	repo.Delete("k")
	assert.False(t, repo.Has("k"))
}

func TestRepository_MaxEntriesBoundsSize(t *testing.T) {
	repo, _ := newTestRepo(32)
	for i := 0; i < 1000; i++ {
		repo.Set(fmt.Sprintf("key-%d", i), sample("v"), time.Minute)
	}
	assert.LessOrEqual(t, repo.Len(), 32)
}

func TestRepository_UnboundedByDefault(t *testing.T) {
	repo, _ := newTestRepo(0)
	for i := 0; i < 500; i++ {
		repo.Set(fmt.Sprintf("key-%d", i), sample("v"), time.Minute)
	}
	assert.Equal(t, 500, repo.Len())
}

func TestRepository_ConcurrentAccess(t *testing.T) {
	repo, _ := newTestRepo(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i%5)
			title := fmt.Sprintf("title-%d", i)
			repo.Set(key, sample(title), time.Minute)
			if got, ok := repo.Get(key); ok {
				assert.NotEmpty(t, got.Title)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, repo.Len())
}
