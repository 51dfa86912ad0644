package domain

import (
	"fmt"
	"strings"
)

// Backend identifies an LLM provider.
type Backend string

const (
	BackendClaude Backend = "claude"
	BackendGemini Backend = "gemini"
)

// ParseBackend maps a user-supplied model name onto a Backend. Empty input
// selects Claude.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "claude", "anthropic":
		return BackendClaude, nil
	case "gemini", "google":
		return BackendGemini, nil
	default:
		return "", ErrUnknownBackend(s)
	}
}

func (b Backend) String() string { return string(b) }

// Category is the UI role assigned to an OCR line.
type Category string

const (
	CategoryInteractive Category = "interactive"
	CategoryNavigation  Category = "navigation"
	CategoryForm        Category = "form"
	CategoryStructure   Category = "structure"
	CategoryData        Category = "data"
	CategoryContent     Category = "content"
	CategoryFeedback    Category = "feedback"
	CategoryUnknown     Category = "unknown"
)

// Priority levels, 1 is the most relevant for testing.
const (
	PriorityHigh    = 1
	PriorityMedium  = 2
	PriorityLow     = 3
	PriorityGrouped = 4
)

// UIElement is a classified candidate extracted from OCR text.
type UIElement struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Category Category `json:"category"`
	Priority int      `json:"priority"`
	Grouped  bool     `json:"grouped,omitempty"`
	Examples []string `json:"examples,omitempty"`
	Page     string   `json:"page,omitempty"`
}

// TestingIntent selects the prompt template.
type TestingIntent string

const (
	IntentComprehensive  TestingIntent = "comprehensive"
	IntentFormValidation TestingIntent = "form-validation"
	IntentUserJourney    TestingIntent = "user-journey"
	IntentIntegration    TestingIntent = "integration"
	IntentBusinessLogic  TestingIntent = "business-logic"
)

// CoverageLevel controls requested breadth.
type CoverageLevel string

const (
	CoverageEssential     CoverageLevel = "essential"
	CoverageComprehensive CoverageLevel = "comprehensive"
	CoverageExhaustive    CoverageLevel = "exhaustive"
)

// Test types a scenario may request.
const (
	TestTypePositive  = "positive"
	TestTypeNegative  = "negative"
	TestTypeEdgeCases = "edge_cases"
)

// AllTestTypes is the default selection, in prompt order.
var AllTestTypes = []string{TestTypePositive, TestTypeNegative, TestTypeEdgeCases}

// IsKnownTestType reports whether t is one of AllTestTypes.
func IsKnownTestType(t string) bool {
	for _, k := range AllTestTypes {
		if k == t {
			return true
		}
	}
	return false
}

// ScenarioContext is the optional user-supplied framing of a generation.
type ScenarioContext struct {
	UserStory          string        `json:"userStory,omitempty"`
	AcceptanceCriteria string        `json:"acceptanceCriteria,omitempty"`
	BusinessRules      string        `json:"businessRules,omitempty"`
	EdgeCases          string        `json:"edgeCases,omitempty"`
	TestEnvironment    string        `json:"testEnvironment,omitempty"`
	TestingIntent      TestingIntent `json:"testingIntent,omitempty"`
	CoverageLevel      CoverageLevel `json:"coverageLevel,omitempty"`
	TestTypes          []string      `json:"testTypes,omitempty"`
}

// Normalize returns a copy with trimmed text, lower-cased enums and a
// non-empty test type list. Unknown test types are dropped; an empty result
// falls back to AllTestTypes.
func (s ScenarioContext) Normalize() ScenarioContext {
	out := ScenarioContext{
		UserStory:          strings.TrimSpace(s.UserStory),
		AcceptanceCriteria: strings.TrimSpace(s.AcceptanceCriteria),
		BusinessRules:      strings.TrimSpace(s.BusinessRules),
		EdgeCases:          strings.TrimSpace(s.EdgeCases),
		TestEnvironment:    strings.TrimSpace(s.TestEnvironment),
		TestingIntent:      TestingIntent(strings.ToLower(strings.TrimSpace(string(s.TestingIntent)))),
		CoverageLevel:      CoverageLevel(strings.ToLower(strings.TrimSpace(string(s.CoverageLevel)))),
	}
	if out.TestingIntent == "" {
		out.TestingIntent = IntentComprehensive
	}
	if out.CoverageLevel == "" {
		out.CoverageLevel = CoverageComprehensive
	}

	seen := make(map[string]bool)
	for _, t := range s.TestTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if IsKnownTestType(t) && !seen[t] {
			seen[t] = true
			out.TestTypes = append(out.TestTypes, t)
		}
	}
	if len(out.TestTypes) == 0 {
		out.TestTypes = append([]string(nil), AllTestTypes...)
	}
	return out
}

// DomainInfo is the advisory business domain detected from page content.
type DomainInfo struct {
	Domain    string   `json:"domain"`
	Functions []string `json:"functions"`
	TestAreas []string `json:"testAreas"`
}

func (d DomainInfo) String() string {
	return fmt.Sprintf("%s (%s)", d.Domain, strings.Join(d.Functions, ", "))
}
