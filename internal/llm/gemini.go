package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/testforge/casegen/internal/domain"
)

// contentGenerator is the part of *genai.Models the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures the Gemini backend
type GeminiConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// GeminiClient generates completions with Google's Gemini API.
type GeminiClient struct {
	models      contentGenerator
	model       string
	maxTokens   int32
	temperature float32
	timeout     time.Duration
	logger      *zap.Logger
}

// NewGeminiClient creates a Gemini backend.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return newGeminiClient(client.Models, cfg, logger), nil
}

func newGeminiClient(models contentGenerator, cfg GeminiConfig, logger *zap.Logger) *GeminiClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 8192
	}
	return &GeminiClient{
		models:      models,
		model:       cfg.Model,
		maxTokens:   int32(cfg.MaxTokens),
		temperature: float32(cfg.Temperature),
		timeout:     cfg.Timeout,
		logger:      logger.Named("gemini"),
	}
}

// Name implements Backend
func (g *GeminiClient) Name() domain.Backend {
	return domain.BackendGemini
}

// Complete sends the captioned images followed by the prompt text.
func (g *GeminiClient) Complete(ctx context.Context, prompt Prompt, images []Image) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	parts := make([]*genai.Part, 0, len(images)*2+1)
	for _, img := range images {
		parts = append(parts,
			genai.NewPartFromText(img.Tag),
			genai.NewPartFromBytes(img.Data, img.MimeType),
		)
	}
	parts = append(parts, genai.NewPartFromText(prompt.User))

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: g.maxTokens,
	}
	if prompt.System != "" {
		config.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		config,
	)
	if err != nil {
		return "", g.classify(ctx, err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrMalformedResponse("empty completion", nil)
	}

	fields := []zap.Field{zap.String("model", g.model), zap.Duration("duration", time.Since(start))}
	if u := resp.UsageMetadata; u != nil {
		fields = append(fields,
			zap.Int32("input_tokens", u.PromptTokenCount),
			zap.Int32("output_tokens", u.CandidatesTokenCount),
		)
	}
	g.logger.Debug("completion received", fields...)

	return text, nil
}

func (g *GeminiClient) classify(ctx context.Context, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return ClassifyStatus(g.Name(), apiErr.Code, retryDelay(apiErr.Details), apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return ClassifyStatus(g.Name(), apiErrPtr.Code, retryDelay(apiErrPtr.Details), apiErrPtr.Message)
	}
	return classifyTransportError(ctx, g.Name(), err)
}

// retryDelay reads google.rpc.RetryInfo from error details, e.g.
// {"@type": ".../google.rpc.RetryInfo", "retryDelay": "17s"}.
func retryDelay(details []map[string]any) time.Duration {
	for _, d := range details {
		t, _ := d["@type"].(string)
		if !strings.HasSuffix(t, "RetryInfo") {
			continue
		}
		if s, ok := d["retryDelay"].(string); ok {
			if dur, err := time.ParseDuration(s); err == nil {
				return dur
			}
		}
	}
	return 0
}
