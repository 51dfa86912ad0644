package handlers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/testforge/casegen/internal/domain"
	"github.com/testforge/casegen/internal/ocr"
	"github.com/testforge/casegen/internal/services/testdesign"
	"github.com/testforge/casegen/pkg/httputil"
)

// Pipeline is the generation service behind the handler.
// *generation.Generator implements it.
type Pipeline interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error)
	Regenerate(ctx context.Context, sessionID string, scenario *domain.ScenarioContext, model *domain.Backend) (*domain.GenerationResult, error)
	ExtractAndGenerate(ctx context.Context, req domain.GenerationRequest, onProgress ocr.ProgressFunc) (*domain.GenerationResult, error)
}

// GenerationHandler handles test case generation requests
type GenerationHandler struct {
	pipeline Pipeline
	logger   *zap.Logger
}

// NewGenerationHandler creates a new generation handler
func NewGenerationHandler(pipeline Pipeline, logger *zap.Logger) *GenerationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationHandler{
		pipeline: pipeline,
		logger:   logger,
	}
}

// ScreenshotPayload is one uploaded image. Data is base64, optionally as a
// data URL.
type ScreenshotPayload struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// GenerateRequest is the body of POST /api/v1/generations
type GenerateRequest struct {
	Screenshots     []ScreenshotPayload    `json:"screenshots"`
	OCRResults      []string               `json:"ocrResults,omitempty"`
	PageNames       []string               `json:"pageNames,omitempty"`
	Scenario        domain.ScenarioContext `json:"scenario"`
	Model           string                 `json:"model,omitempty"`
	ForceRegenerate bool                   `json:"forceRegenerate"`
}

// RegenerateRequest is the body of POST /api/v1/generations/{session_id}/regenerate
type RegenerateRequest struct {
	Scenario *domain.ScenarioContext `json:"scenario,omitempty"`
	Model    string                  `json:"model,omitempty"`
}

// EstimateResponse is returned by the estimate endpoint
type EstimateResponse struct {
	TestingIntent  domain.TestingIntent `json:"testingIntent"`
	CoverageLevel  domain.CoverageLevel `json:"coverageLevel"`
	TestTypes      []string             `json:"testTypes"`
	EstimatedCount int                  `json:"estimatedCount"`
}

// Create handles POST /api/v1/generations. OCR runs server side when
// ocrResults is omitted.
func (h *GenerationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body GenerateRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	req, err := body.toDomain()
	if err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	var result *domain.GenerationResult
	if body.OCRResults == nil {
		result, err = h.pipeline.ExtractAndGenerate(r.Context(), req, nil)
	} else {
		result, err = h.pipeline.Generate(r.Context(), req)
	}
	if err != nil {
		h.logFailure("generation failed", err)
		httputil.ErrorFromDomain(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Regenerate handles POST /api/v1/generations/{session_id}/regenerate
func (h *GenerationHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "session_id"))
	if sessionID == "" {
		httputil.ErrorFromDomain(w, domain.ErrValidationField("session_id", "session ID is required"))
		return
	}

	var body RegenerateRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &body); err != nil {
			httputil.ErrorFromDomain(w, err)
			return
		}
	}

	var model *domain.Backend
	if body.Model != "" {
		b, err := domain.ParseBackend(body.Model)
		if err != nil {
			httputil.ErrorFromDomain(w, err)
			return
		}
		model = &b
	}

	result, err := h.pipeline.Regenerate(r.Context(), sessionID, body.Scenario, model)
	if err != nil {
		h.logFailure("regeneration failed", err, zap.String("session_id", sessionID))
		httputil.ErrorFromDomain(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Estimate handles GET /api/v1/generations/estimate?intent=&coverage=&types=
func (h *GenerationHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var types []string
	if raw := q.Get("types"); raw != "" {
		types = strings.Split(raw, ",")
	}
	scenario := domain.ScenarioContext{
		TestingIntent: domain.TestingIntent(q.Get("intent")),
		CoverageLevel: domain.CoverageLevel(q.Get("coverage")),
		TestTypes:     types,
	}.Normalize()

	httputil.JSON(w, http.StatusOK, EstimateResponse{
		TestingIntent:  scenario.TestingIntent,
		CoverageLevel:  scenario.CoverageLevel,
		TestTypes:      scenario.TestTypes,
		EstimatedCount: testdesign.EstimateTestCount(scenario.TestingIntent, scenario.CoverageLevel, len(scenario.TestTypes)),
	})
}

func (h *GenerationHandler) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err), zap.String("action", string(domain.Classify(err))))
	if domain.GetHTTPStatus(err) >= 500 {
		h.logger.Error(msg, fields...)
		return
	}
	h.logger.Warn(msg, fields...)
}

func (b GenerateRequest) toDomain() (domain.GenerationRequest, error) {
	req := domain.GenerationRequest{
		OCRResults:      b.OCRResults,
		PageNames:       b.PageNames,
		Scenario:        b.Scenario,
		ForceRegenerate: b.ForceRegenerate,
	}

	if b.Model != "" {
		model, err := domain.ParseBackend(b.Model)
		if err != nil {
			return req, err
		}
		req.Model = model
	}

	for i, s := range b.Screenshots {
		shot, err := s.decode()
		if err != nil {
			return req, domain.ErrValidationField("screenshots",
				fmt.Sprintf("screenshot %d: %v", i+1, err))
		}
		req.Screenshots = append(req.Screenshots, shot)
	}
	return req, nil
}

// decode accepts raw base64 or a data URL such as "data:image/png;base64,...".
func (p ScreenshotPayload) decode() (domain.Screenshot, error) {
	data := strings.TrimSpace(p.Data)
	mimeType := p.MimeType

	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return domain.Screenshot{}, fmt.Errorf("unsupported data URL")
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(header, ";base64")
		}
		data = payload
	}
	if data == "" {
		return domain.Screenshot{}, fmt.Errorf("image data is empty")
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return domain.Screenshot{}, fmt.Errorf("invalid base64: %w", err)
	}
	return domain.Screenshot{Data: raw, Name: p.Name, MimeType: mimeType}, nil
}
