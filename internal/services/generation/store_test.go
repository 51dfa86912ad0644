package generation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/testforge/casegen/internal/domain"
	"github.com/testforge/casegen/internal/repository/redis"
)

func testResult(title string) *domain.GenerationResult {
	return &domain.GenerationResult{
		AllTestCases: []domain.TestCase{{Type: domain.TypeFunctional, Title: title}},
		Functional:   []string{title + ": ok"},
		SessionID:    "s-" + title,
	}
}

func TestMemoryResultCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryResultCache(2, time.Hour)

	got, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	in := testResult("a")
	require.NoError(t, c.Set(ctx, "a", in))
	in.AllTestCases[0].Title = "mutated after set"

	got, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.AllTestCases[0].Title)

	got.Functional[0] = "mutated after get"
	again, _ := c.Get(ctx, "a")
	assert.Equal(t, "a: ok", again.Functional[0])
}

func TestMemoryResultCache_Bounded(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryResultCache(3, time.Hour)

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), testResult(fmt.Sprint(i))))
	}

	assert.Equal(t, 3, c.Len())
	got, _ := c.Get(ctx, "k0")
	assert.Nil(t, got, "oldest entry is evicted")
	got, _ = c.Get(ctx, "k9")
	assert.NotNil(t, got)
}

func TestMemoryResultCache_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryResultCache(10, 30*time.Millisecond)
	require.NoError(t, c.Set(ctx, "a", testResult("a")))

	assert.Eventually(t, func() bool {
		got, _ := c.Get(ctx, "a")
		return got == nil
	}, time.Second, 10*time.Millisecond)
}

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStore(10, time.Hour)

	session := &domain.Session{ID: "s1", OCRResults: []string{"Login"}, PageNames: []string{"Login Page"}}
	require.NoError(t, s.Create(ctx, session))
	session.OCRResults[0] = "changed"

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Login"}, got.OCRResults)

	got, err = s.Get(ctx, "s2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func newRedisStore(t *testing.T) (*redis.Cache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	c := redis.NewFromClient(client, time.Hour, time.Hour)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestTieredResultCache_PromotesSharedHits(t *testing.T) {
	ctx := context.Background()
	remote, _ := newRedisStore(t)

	// Another instance wrote the entry
	require.NoError(t, remote.SetResult(ctx, "k", testResult("shared")))

	local := NewMemoryResultCache(10, time.Hour)
	tiered := NewTieredResultCache(local, remote, zaptest.NewLogger(t))

	got, err := tiered.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "shared", got.AllTestCases[0].Title)
	assert.Equal(t, 1, local.Len())
}

func TestTieredResultCache_WritesBothTiers(t *testing.T) {
	ctx := context.Background()
	remote, mr := newRedisStore(t)
	local := NewMemoryResultCache(10, time.Hour)
	tiered := NewTieredResultCache(local, remote, zaptest.NewLogger(t))

	require.NoError(t, tiered.Set(ctx, "k", testResult("x")))

	assert.Equal(t, 1, local.Len())
	assert.True(t, mr.Exists(redis.PrefixResult+"k"))
}

func TestTieredResultCache_SharedOutageIsAMiss(t *testing.T) {
	ctx := context.Background()
	remote, mr := newRedisStore(t)
	mr.Close()

	tiered := NewTieredResultCache(NewMemoryResultCache(10, time.Hour), remote, zaptest.NewLogger(t))

	got, err := tiered.Get(ctx, "k")
	assert.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, tiered.Set(ctx, "k", testResult("x")), "local write still succeeds")
	got, err = tiered.Get(ctx, "k")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

type failingRemote struct{ *redis.Cache }

func (failingRemote) SetSession(context.Context, *domain.Session) error {
	return errors.New("redis: connection refused")
}

func TestTieredSessionStore(t *testing.T) {
	ctx := context.Background()
	remote, _ := newRedisStore(t)

	// Instance A creates the session; instance B finds it in Redis.
	a := NewTieredSessionStore(NewMemorySessionStore(10, time.Hour), remote)
	require.NoError(t, a.Create(ctx, &domain.Session{ID: "s1", PageNames: []string{"Login"}}))

	bLocal := NewMemorySessionStore(10, time.Hour)
	b := NewTieredSessionStore(bLocal, remote)
	got, err := b.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"Login"}, got.PageNames)

	promoted, _ := bLocal.Get(ctx, "s1")
	assert.NotNil(t, promoted)

	missing, err := b.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	broken := NewTieredSessionStore(NewMemorySessionStore(10, time.Hour), failingRemote{remote})
	assert.Error(t, broken.Create(ctx, &domain.Session{ID: "s2"}))
}
