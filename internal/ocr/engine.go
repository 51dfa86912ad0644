// Package ocr extracts text from screenshots through an external OCR engine.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/casegen/internal/config"
	"github.com/testforge/casegen/internal/domain"
	"github.com/testforge/casegen/internal/observability"
)

// Engine recognizes the text in one image.
type Engine interface {
	Recognize(ctx context.Context, image []byte, filename string) (string, error)
}

// HTTPEngine talks to a tesseract-server style endpoint: the image is posted
// as the multipart field "file" with an "options" JSON field. Replies of
// {"data":{"stdout":...}}, {"text":...} and plain text are understood.
type HTTPEngine struct {
	endpoint   string
	language   string
	httpClient *http.Client
}

// NewHTTPEngine creates an engine from config
func NewHTTPEngine(cfg config.OCRConfig) *HTTPEngine {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}
	return &HTTPEngine{
		endpoint:   cfg.Endpoint,
		language:   lang,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type engineResponse struct {
	Text string `json:"text"`
	Data struct {
		Stdout string `json:"stdout"`
		Stderr string `json:"stderr"`
	} `json:"data"`
}

// Recognize implements Engine
func (e *HTTPEngine) Recognize(ctx context.Context, image []byte, filename string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("empty image")
	}
	if filename == "" {
		filename = "screenshot.png"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	options, _ := json.Marshal(map[string]any{"languages": []string{e.language}})
	if err := mw.WriteField("options", string(options)); err != nil {
		return "", fmt.Errorf("writing options: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("writing image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling OCR engine: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading OCR response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OCR engine returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		var out engineResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return "", fmt.Errorf("decoding OCR response: %w", err)
		}
		if out.Text != "" {
			return out.Text, nil
		}
		return out.Data.Stdout, nil
	}
	return string(raw), nil
}

// Extractor runs OCR over a screenshot sequence.
type Extractor struct {
	engine  Engine
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewExtractor creates an extractor; metrics may be nil.
func NewExtractor(engine Engine, metrics *observability.Metrics, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{engine: engine, metrics: metrics, logger: logger.Named("ocr")}
}

// ProgressFunc is called after each screenshot with the number done so far.
type ProgressFunc func(done, total int)

// ExtractAll recognizes screenshots one at a time, in order. A screenshot
// whose OCR fails yields "" and the batch carries on. Only cancellation of
// ctx stops the batch.
func (x *Extractor) ExtractAll(ctx context.Context, screenshots []domain.Screenshot, onProgress ProgressFunc) ([]string, error) {
	results := make([]string, len(screenshots))

	for i, shot := range screenshots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		text, err := x.engine.Recognize(ctx, shot.Data, shot.Name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			x.metrics.RecordOCRFailure()
			x.logger.Warn("OCR failed, continuing with empty text",
				zap.Int("screenshot", i+1),
				zap.String("name", shot.Name),
				zap.Error(err),
			)
			text = ""
		} else {
			x.logger.Debug("OCR complete",
				zap.Int("screenshot", i+1),
				zap.Int("chars", len(text)),
				zap.Duration("duration", time.Since(start)),
			)
		}
		results[i] = text

		if onProgress != nil {
			onProgress(i+1, len(screenshots))
		}
	}

	return results, nil
}
