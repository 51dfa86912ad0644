package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/testforge/casegen/internal/domain"
)

const anthropicVersion = "2023-06-01"

// ClaudeClient is the Backend for the Anthropic Messages API
type ClaudeClient struct {
	apiKey      string
	endpoint    string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	limiter     *rate.Limiter

	requests  atomic.Int64
	failures  atomic.Int64
	tokensIn  atomic.Int64
	tokensOut atomic.Int64

	logger *zap.Logger
}

// Config for Claude client
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
	RateLimitRPM int // Requests per minute
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://api.anthropic.com",
		Model:        "claude-sonnet-4-20250514",
		MaxTokens:    8192,
		Temperature:  0.3,
		Timeout:      120 * time.Second,
		RateLimitRPM: 50,
	}
}

// ClaudeStats is a snapshot of the client's lifetime usage
type ClaudeStats struct {
	Requests     int64
	Failures     int64
	InputTokens  int64
	OutputTokens int64
}

// EstimatedCostUSD prices the snapshot at Sonnet rates: $3 per million
// input tokens and $15 per million output tokens.
func (s ClaudeStats) EstimatedCostUSD() float64 {
	return float64(s.InputTokens)*3/1e6 + float64(s.OutputTokens)*15/1e6
}

// NewClaudeClient creates a new Claude API client
func NewClaudeClient(cfg Config, logger *zap.Logger) (*ClaudeClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RateLimitRPM == 0 {
		cfg.RateLimitRPM = def.RateLimitRPM
	}

	return &ClaudeClient{
		apiKey:      cfg.APIKey,
		endpoint:    strings.TrimRight(cfg.BaseURL, "/") + "/v1/messages",
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPM)/60.0), 1),
		logger:      logger.Named("claude"),
	}, nil
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// text concatenates the text blocks of a reply
func (r *messagesResponse) text() string {
	var sb strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Name implements Backend
func (c *ClaudeClient) Name() domain.Backend {
	return domain.BackendClaude
}

// Model returns the configured model ID
func (c *ClaudeClient) Model() string {
	return c.model
}

// Stats returns lifetime request and token counts
func (c *ClaudeClient) Stats() ClaudeStats {
	return ClaudeStats{
		Requests:     c.requests.Load(),
		Failures:     c.failures.Load(),
		InputTokens:  c.tokensIn.Load(),
		OutputTokens: c.tokensOut.Load(),
	}
}

// Complete sends the prompt and images as a single user turn
func (c *ClaudeClient) Complete(ctx context.Context, prompt Prompt, images []Image) (string, error) {
	c.requests.Add(1)

	if err := c.limiter.Wait(ctx); err != nil {
		c.failures.Add(1)
		return "", fmt.Errorf("rate limit: %w", err)
	}

	start := time.Now()
	resp, err := c.send(ctx, messagesRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      prompt.System,
		Messages:    []message{{Role: "user", Content: buildContent(prompt.User, images)}},
		Temperature: c.temperature,
	})
	if err != nil {
		c.failures.Add(1)
		return "", err
	}

	c.tokensIn.Add(int64(resp.Usage.InputTokens))
	c.tokensOut.Add(int64(resp.Usage.OutputTokens))

	c.logger.Debug("completion received",
		zap.String("model", resp.Model),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.String("stop_reason", resp.StopReason),
		zap.Duration("duration", time.Since(start)),
	)

	text := resp.text()
	if text == "" {
		return "", domain.ErrMalformedResponse("empty completion", nil)
	}
	return text, nil
}

// buildContent interleaves each image after its caption, then the prompt text.
func buildContent(text string, images []Image) []contentBlock {
	blocks := make([]contentBlock, 0, len(images)*2+1)
	for _, img := range images {
		blocks = append(blocks,
			contentBlock{Type: "text", Text: img.Tag},
			contentBlock{Type: "image", Source: &imageSource{
				Type:      "base64",
				MediaType: img.MimeType,
				Data:      base64.StdEncoding.EncodeToString(img.Data),
			}},
		)
	}
	return append(blocks, contentBlock{Type: "text", Text: text})
}

func (c *ClaudeClient) send(ctx context.Context, body messagesRequest) (*messagesResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, c.Name(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, c.Name(), fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		detail := string(raw)
		var e apiError
		if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
			detail = e.Error.Type + ": " + e.Error.Message
		}
		wait := ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return nil, ClassifyStatus(c.Name(), resp.StatusCode, wait, detail)
	}

	var out messagesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, domain.ErrMalformedResponse("unreadable API envelope", err)
	}
	return &out, nil
}
