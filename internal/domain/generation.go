package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// MaxScreenshots bounds a single generation request.
const MaxScreenshots = 25

// Screenshot is one captured page. Order in a request is the journey order.
type Screenshot struct {
	Data     []byte `json:"data"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
}

// Identity is the content hash used for cache keys.
func (s Screenshot) Identity() string {
	h := sha256.New()
	h.Write(s.Data)
	h.Write([]byte{0})
	h.Write([]byte(s.Name))
	return hex.EncodeToString(h.Sum(nil))
}

// GenerationRequest is the pipeline input. A request replayed from a session
// carries SessionID and no screenshots.
type GenerationRequest struct {
	Screenshots     []Screenshot    `json:"screenshots,omitempty"`
	OCRResults      []string        `json:"ocrResults"`
	PageNames       []string        `json:"pageNames"`
	Scenario        ScenarioContext `json:"scenario"`
	Model           Backend         `json:"model"`
	ForceRegenerate bool            `json:"forceRegenerate"`
	SessionID       string          `json:"sessionId,omitempty"`
}

// Count is the number of pages in the request.
func (r *GenerationRequest) Count() int {
	if r.SessionID != "" && len(r.Screenshots) == 0 {
		return len(r.OCRResults)
	}
	return len(r.Screenshots)
}

// Validate enforces slot alignment and the 1..MaxScreenshots bound.
func (r *GenerationRequest) Validate() error {
	n := r.Count()
	if n < 1 || n > MaxScreenshots {
		return ErrValidationField("screenshots",
			fmt.Sprintf("between 1 and %d screenshots required, got %d", MaxScreenshots, n))
	}
	if len(r.OCRResults) != n {
		return ErrValidationField("ocrResults",
			fmt.Sprintf("expected %d OCR results, got %d", n, len(r.OCRResults)))
	}
	if len(r.PageNames) != n {
		return ErrValidationField("pageNames",
			fmt.Sprintf("expected %d page names, got %d", n, len(r.PageNames)))
	}
	if r.Model != BackendClaude && r.Model != BackendGemini {
		return ErrUnknownBackend(string(r.Model))
	}
	return nil
}

// Test case type labels.
const (
	TypeFunctional  = "Functional"
	TypeIntegration = "Integration"
	TypeEndToEnd    = "End-to-End"
)

// TestCase is a normalized manual test case. Every field is non-empty.
type TestCase struct {
	Type            string `json:"type"`
	Title           string `json:"title"`
	Preconditions   string `json:"preconditions"`
	TestSteps       string `json:"testSteps"`
	TestData        string `json:"testData"`
	ExpectedResults string `json:"expectedResults"`
}

// GenerationResult holds the parsed cases plus one-line summaries per bucket.
type GenerationResult struct {
	AllTestCases []TestCase `json:"allTestCases"`
	Functional   []string   `json:"functional"`
	EndToEnd     []string   `json:"endToEnd"`
	Integration  []string   `json:"integration"`
	UI           []string   `json:"ui"`

	SessionID      string     `json:"sessionId,omitempty"`
	EstimatedCount int        `json:"estimatedCount,omitempty"`
	Domain         DomainInfo `json:"domain"`
	Model          Backend    `json:"model,omitempty"`
}

// Clone returns a deep copy so cached values are never mutated by callers.
func (r *GenerationResult) Clone() *GenerationResult {
	if r == nil {
		return nil
	}
	out := *r
	out.AllTestCases = append([]TestCase(nil), r.AllTestCases...)
	out.Functional = append([]string(nil), r.Functional...)
	out.EndToEnd = append([]string(nil), r.EndToEnd...)
	out.Integration = append([]string(nil), r.Integration...)
	out.UI = append([]string(nil), r.UI...)
	out.Domain.Functions = append([]string(nil), r.Domain.Functions...)
	out.Domain.TestAreas = append([]string(nil), r.Domain.TestAreas...)
	return &out
}

// Session retains generation inputs so a caller can regenerate without
// re-uploading screenshots.
type Session struct {
	ID              string          `json:"id"`
	OCRResults      []string        `json:"ocrResults"`
	ScreenshotCount int             `json:"screenshotCount"`
	PageNames       []string        `json:"pageNames"`
	Model           Backend         `json:"model"`
	Scenario        ScenarioContext `json:"scenario"`
	CreatedAt       time.Time       `json:"createdAt"`
}
