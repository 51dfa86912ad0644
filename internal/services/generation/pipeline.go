// Package generation runs the screenshot-to-test-case pipeline: classify OCR
// text, detect the domain, assemble the prompt, dispatch to a model backend,
// parse the reply, then cache the result and open a regeneration session.
package generation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/testforge/casegen/internal/domain"
	"github.com/testforge/casegen/internal/llm"
	"github.com/testforge/casegen/internal/observability"
	"github.com/testforge/casegen/internal/ocr"
	"github.com/testforge/casegen/internal/services/elements"
	"github.com/testforge/casegen/internal/services/testdesign"
)

// Archiver stores finished sessions out of process and serves them back
// once the session store has evicted them. *storage.ArtifactStore
// implements it. LoadSession returns nil, nil for an unknown id.
type Archiver interface {
	Archive(ctx context.Context, session *domain.Session, screenshots []domain.Screenshot, result *domain.GenerationResult) (string, error)
	LoadSession(ctx context.Context, id string) (*domain.Session, error)
}

// Options configures a Generator
type Options struct {
	DefaultModel        domain.Backend
	KeyIncludesScenario bool
}

// DefaultOptions returns claude as default model with scenario-aware keys
func DefaultOptions() Options {
	return Options{
		DefaultModel:        domain.BackendClaude,
		KeyIncludesScenario: true,
	}
}

// Generator is the pipeline entry point
type Generator struct {
	backends   *llm.Registry
	dispatcher *llm.Dispatcher
	cache      ResultCache
	sessions   SessionStore
	validator  *testdesign.Validator
	opts       Options

	extractor *ocr.Extractor
	archive   Archiver
	metrics   *observability.Metrics

	group singleflight.Group
	newID func() string
	now   func() time.Time

	logger *zap.Logger
}

// Option customizes a Generator
type Option func(*Generator)

// WithExtractor enables ExtractAndGenerate
func WithExtractor(x *ocr.Extractor) Option {
	return func(g *Generator) { g.extractor = x }
}

// WithArchive archives every generated session
func WithArchive(a Archiver) Option {
	return func(g *Generator) { g.archive = a }
}

// WithMetrics records pipeline metrics on m
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// NewGenerator wires the pipeline
func NewGenerator(backends *llm.Registry, dispatcher *llm.Dispatcher, cache ResultCache, sessions SessionStore, opts Options, logger *zap.Logger, options ...Option) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = domain.BackendClaude
	}

	g := &Generator{
		backends:   backends,
		dispatcher: dispatcher,
		cache:      cache,
		sessions:   sessions,
		validator:  testdesign.NewValidator(),
		opts:       opts,
		newID:      func() string { return uuid.NewString() },
		now:        time.Now,
		logger:     logger.Named("generation"),
	}
	for _, o := range options {
		o(g)
	}
	return g
}

// Generate returns test cases for the request. Unless ForceRegenerate is
// set, a cached result for the same inputs is returned without dispatching.
// Concurrent requests for the same inputs share one dispatch.
func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error) {
	start := g.now()
	if req.Model == "" {
		req.Model = g.opts.DefaultModel
	}
	if err := req.Validate(); err != nil {
		g.metrics.RecordGeneration(string(req.Model), "invalid", time.Since(start))
		return nil, err
	}

	key, err := g.CacheKey(req)
	if err != nil {
		return nil, fmt.Errorf("computing cache key: %w", err)
	}
	logger := g.logger.With(zap.String("cache_key", shortKey(key)), zap.String("backend", req.Model.String()))

	if !req.ForceRegenerate {
		cached, err := g.cache.Get(ctx, key)
		if err != nil {
			logger.Warn("cache lookup failed", zap.Error(err))
		}
		g.metrics.RecordCacheLookup(cached != nil)
		if cached != nil {
			logger.Info("returning cached result", zap.String("session_id", cached.SessionID))
			g.metrics.RecordGeneration(req.Model.String(), "cached", time.Since(start))
			return cached, nil
		}
	}

	ch := g.group.DoChan(key, func() (interface{}, error) {
		// Detached so one caller giving up does not fail the others.
		return g.run(context.WithoutCancel(ctx), req, key, logger)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			g.metrics.RecordGeneration(req.Model.String(), string(domain.Classify(res.Err)), time.Since(start))
			return nil, res.Err
		}
		if res.Shared {
			logger.Debug("joined in-flight generation")
		}
		g.metrics.RecordGeneration(req.Model.String(), "success", time.Since(start))
		return res.Val.(*domain.GenerationResult).Clone(), nil
	}
}

func (g *Generator) run(ctx context.Context, req domain.GenerationRequest, key string, logger *zap.Logger) (*domain.GenerationResult, error) {
	backend, err := g.backends.Get(req.Model)
	if err != nil {
		return nil, err
	}

	els := elements.ClassifyAll(req.OCRResults, req.PageNames)
	detected := testdesign.DetectDomain(req.PageNames, req.OCRResults)
	prompt := testdesign.BuildPrompt(testdesign.PromptInput{
		Screenshots: req.Screenshots,
		OCRResults:  req.OCRResults,
		PageNames:   req.PageNames,
		Elements:    els,
		Domain:      detected,
		Scenario:    req.Scenario,
	})

	logger.Info("dispatching generation",
		zap.Int("screenshots", req.Count()),
		zap.String("domain", detected.Domain),
		zap.Int("images", len(prompt.Images)),
		zap.Int("estimated_count", prompt.EstimatedCount),
	)

	raw, err := g.dispatcher.Dispatch(ctx, backend, prompt.Request(), prompt.Images)
	if err != nil {
		return nil, err
	}

	result, err := testdesign.ParseResponse(raw)
	if err != nil {
		logger.Warn("model response rejected", zap.Error(err), zap.Int("response_length", len(raw)))
		return nil, err
	}
	for _, w := range g.validator.ValidateResult(result) {
		logger.Debug("test case warning", zap.String("warning", w))
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = g.newID()
	}
	result.SessionID = sessionID
	result.EstimatedCount = prompt.EstimatedCount
	result.Domain = detected
	result.Model = req.Model

	if err := g.cache.Set(ctx, key, result); err != nil {
		logger.Warn("cache store failed", zap.Error(err))
	}

	session := &domain.Session{
		ID:              sessionID,
		OCRResults:      append([]string(nil), req.OCRResults...),
		ScreenshotCount: req.Count(),
		PageNames:       append([]string(nil), req.PageNames...),
		Model:           req.Model,
		Scenario:        req.Scenario.Normalize(),
		CreatedAt:       g.now().UTC(),
	}
	if err := g.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	g.metrics.RecordSessionCreated()

	for t, n := range countByType(result.AllTestCases) {
		g.metrics.RecordTestCases(req.Model.String(), t, n)
	}

	if g.archive != nil {
		if uri, err := g.archive.Archive(ctx, session, req.Screenshots, result); err != nil {
			logger.Warn("archiving session failed", zap.String("session_id", sessionID), zap.Error(err))
		} else {
			logger.Debug("session archived", zap.String("session_id", sessionID), zap.String("uri", uri))
		}
	}

	logger.Info("generation complete",
		zap.String("session_id", sessionID),
		zap.Int("test_cases", len(result.AllTestCases)),
	)
	return result, nil
}

// Regenerate reruns generation from a stored session without images. A nil
// scenario or model keeps the session's own. The session ID is kept.
func (g *Generator) Regenerate(ctx context.Context, sessionID string, scenario *domain.ScenarioContext, model *domain.Backend) (*domain.GenerationResult, error) {
	session, err := g.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound(sessionID)
	}

	req := domain.GenerationRequest{
		OCRResults:      session.OCRResults,
		PageNames:       session.PageNames,
		Scenario:        session.Scenario,
		Model:           session.Model,
		ForceRegenerate: true,
		SessionID:       session.ID,
	}
	if scenario != nil {
		req.Scenario = *scenario
	}
	if model != nil {
		req.Model = *model
	}

	g.logger.Info("regenerating", zap.String("session_id", sessionID), zap.String("backend", req.Model.String()))
	return g.Generate(ctx, req)
}

// loadSession reads the session store, then the archive when one is
// configured. A session found only in the archive is put back in the store.
func (g *Generator) loadSession(ctx context.Context, id string) (*domain.Session, error) {
	session, err := g.sessions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if session != nil || g.archive == nil {
		return session, nil
	}

	session, err = g.archive.LoadSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading archived session: %w", err)
	}
	if session == nil {
		return nil, nil
	}
	g.logger.Info("session restored from archive", zap.String("session_id", id))
	if err := g.sessions.Create(ctx, session); err != nil {
		g.logger.Warn("re-storing archived session failed", zap.String("session_id", id), zap.Error(err))
	}
	return session, nil
}

// ExtractAndGenerate runs OCR over the request's screenshots, then
// Generate. Missing page names are derived from file names. OCR failures
// leave empty text for that screenshot.
func (g *Generator) ExtractAndGenerate(ctx context.Context, req domain.GenerationRequest, onProgress ocr.ProgressFunc) (*domain.GenerationResult, error) {
	if g.extractor == nil {
		return nil, domain.ErrInternal("OCR is not configured")
	}
	n := len(req.Screenshots)
	if n < 1 || n > domain.MaxScreenshots {
		return nil, domain.ErrValidationField("screenshots",
			fmt.Sprintf("between 1 and %d screenshots required, got %d", domain.MaxScreenshots, n))
	}

	if len(req.PageNames) == 0 {
		req.PageNames = PageNamesFromFiles(req.Screenshots)
	}

	texts, err := g.extractor.ExtractAll(ctx, req.Screenshots, onProgress)
	if err != nil {
		return nil, err
	}
	req.OCRResults = texts

	return g.Generate(ctx, req)
}

// PageNamesFromFiles derives page names from screenshot file names:
// "checkout_step-2.png" becomes "checkout step 2". Unnamed screenshots
// get "Page N".
func PageNamesFromFiles(shots []domain.Screenshot) []string {
	names := make([]string, len(shots))
	for i, s := range shots {
		base := strings.TrimSuffix(path.Base(s.Name), path.Ext(s.Name))
		base = strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(base))
		if base == "" || base == "." || base == "/" {
			base = fmt.Sprintf("Page %d", i+1)
		}
		names[i] = base
	}
	return names
}

// cacheKeyInput is hashed to form the cache key. Field order is fixed by
// the struct, so the encoding is deterministic.
type cacheKeyInput struct {
	Screenshots []string                `json:"screenshots"`
	OCRResults  []string                `json:"ocrResults"`
	PageNames   []string                `json:"pageNames"`
	Backend     domain.Backend          `json:"backend"`
	Scenario    *domain.ScenarioContext `json:"scenario,omitempty"`
}

// CacheKey is the SHA-256 of screenshot identities, OCR text, page names
// and backend, plus the normalized scenario when KeyIncludesScenario is set.
func (g *Generator) CacheKey(req domain.GenerationRequest) (string, error) {
	in := cacheKeyInput{
		Screenshots: make([]string, len(req.Screenshots)),
		OCRResults:  req.OCRResults,
		PageNames:   req.PageNames,
		Backend:     req.Model,
	}
	for i, s := range req.Screenshots {
		in.Screenshots[i] = s.Identity()
	}
	if g.opts.KeyIncludesScenario {
		scenario := req.Scenario.Normalize()
		in.Scenario = &scenario
	}

	data, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func countByType(cases []domain.TestCase) map[string]int {
	counts := make(map[string]int)
	for _, tc := range cases {
		counts[tc.Type]++
	}
	return counts
}
