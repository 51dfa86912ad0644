package app

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/testforge/casegen/internal/config"
	"github.com/testforge/casegen/internal/domain"
	"github.com/testforge/casegen/internal/llm"
	"github.com/testforge/casegen/internal/observability"
	rediscache "github.com/testforge/casegen/internal/repository/redis"
)

const reply = `{"testCases":[{"type":"Functional","title":"Search returns results","preconditions":"Catalog has items",
"testSteps":"1. Type a term\n2. Press Search","testData":"term: shoes","expectedResults":"Matching items are listed"}]}`

type fakeBackend struct {
	name  domain.Backend
	calls int
}

func (f *fakeBackend) Name() domain.Backend { return f.name }

func (f *fakeBackend) Complete(context.Context, llm.Prompt, []llm.Image) (string, error) {
	f.calls++
	return reply, nil
}

type fakeEngine struct{}

func (fakeEngine) Recognize(_ context.Context, _ []byte, filename string) (string, error) {
	return "Search\nResults for " + filename, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Pipeline: config.PipelineConfig{
			DefaultModel:        "claude",
			CacheSize:           8,
			CacheTTL:            time.Hour,
			SessionSize:         8,
			SessionTTL:          time.Hour,
			RetryAttempts:       3,
			RetryBaseDelay:      time.Millisecond,
			RetryMaxDelay:       time.Millisecond,
			KeyIncludesScenario: true,
		},
		Redis: config.RedisConfig{
			PoolSize:     2,
			DialTimeout:  time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
	}
}

func searchRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		Screenshots: []domain.Screenshot{{Name: "search_results.png", Data: []byte("png")}},
	}
}

func TestNew_RequiresABackend(t *testing.T) {
	_, err := New(context.Background(), testConfig(), nil, zaptest.NewLogger(t), Options{Backends: []llm.Backend{}})
	assert.Error(t, err)
}

func TestNew_WithoutKeysFails(t *testing.T) {
	_, err := New(context.Background(), testConfig(), nil, zaptest.NewLogger(t), Options{})
	assert.ErrorContains(t, err, "no model backend configured")
}

func TestNew_BuildsClaudeFromKey(t *testing.T) {
	cfg := testConfig()
	cfg.Claude = config.ClaudeConfig{APIKey: "sk-test", RateLimitRPM: 60}

	a, err := New(context.Background(), cfg, nil, zaptest.NewLogger(t), Options{Engine: fakeEngine{}})
	require.NoError(t, err)
	assert.Equal(t, []domain.Backend{domain.BackendClaude}, a.Backends.Names())
	assert.Nil(t, a.Cache)
	assert.NoError(t, a.Close())
}

func TestNew_FallsBackToConfiguredBackend(t *testing.T) {
	cfg := testConfig()
	gemini := &fakeBackend{name: domain.BackendGemini}

	a, err := New(context.Background(), cfg, nil, zaptest.NewLogger(t), Options{
		Backends: []llm.Backend{gemini},
		Engine:   fakeEngine{},
	})
	require.NoError(t, err)

	result, err := a.Generator.ExtractAndGenerate(context.Background(), searchRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.BackendGemini, result.Model)
	assert.Equal(t, 1, gemini.calls)
}

func TestNew_SharedRedisTier(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = port

	metrics := observability.NewMetrics("app_test")
	claude := &fakeBackend{name: domain.BackendClaude}
	a, err := New(context.Background(), cfg, metrics, zaptest.NewLogger(t), Options{
		UseRedis: true,
		Backends: []llm.Backend{claude},
		Engine:   fakeEngine{},
	})
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Cache)

	result, err := a.Generator.ExtractAndGenerate(context.Background(), searchRequest(), nil)
	require.NoError(t, err)

	assert.True(t, mr.Exists(rediscache.PrefixSession+result.SessionID))
	keys, err := a.Cache.Client().Keys(context.Background(), rediscache.PrefixResult+"*").Result()
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestNew_UnreachableRedisDegrades(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.Host = "127.0.0.1"
	cfg.Redis.Port = 1

	a, err := New(context.Background(), cfg, nil, zaptest.NewLogger(t), Options{
		UseRedis: true,
		Backends: []llm.Backend{&fakeBackend{name: domain.BackendClaude}},
		Engine:   fakeEngine{},
	})
	require.NoError(t, err)
	assert.Nil(t, a.Cache)

	_, err = a.Generator.ExtractAndGenerate(context.Background(), searchRequest(), nil)
	assert.NoError(t, err)
}
