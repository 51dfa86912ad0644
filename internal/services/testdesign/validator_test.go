package testdesign

import (
	"strings"
	"testing"

	"github.com/testforge/casegen/internal/domain"
)

func TestValidator_ValidateTestCase(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name     string
		tc       domain.TestCase
		wantWarn string
	}{
		{
			name: "clean case",
			tc: domain.TestCase{
				Title:           "Login succeeds",
				TestSteps:       "1. Open Login Page\n2. Click Submit",
				ExpectedResults: "• Dashboard is shown",
			},
		},
		{
			name: "too few steps",
			tc: domain.TestCase{
				Title:           "Login",
				TestSteps:       DefaultTestSteps,
				ExpectedResults: "• ok",
			},
			wantWarn: "Too few steps",
		},
		{
			name: "screenshot reference",
			tc: domain.TestCase{
				Title:           "Login",
				TestSteps:       "1. Open Screenshot 1\n2. Click Submit",
				ExpectedResults: "• ok",
			},
			wantWarn: "References a screenshot",
		},
		{
			name: "default title",
			tc: domain.TestCase{
				Title:           DefaultTitle,
				TestSteps:       "1. a\n2. b",
				ExpectedResults: "• ok",
			},
			wantWarn: "Missing title",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := v.ValidateTestCase(&tt.tc, "tc")
			if tt.wantWarn == "" {
				if len(warnings) != 0 {
					t.Errorf("unexpected warnings: %v", warnings)
				}
				return
			}
			if !containsWarning(warnings, tt.wantWarn) {
				t.Errorf("warnings %v missing %q", warnings, tt.wantWarn)
			}
		})
	}
}

func TestValidator_ValidateResult(t *testing.T) {
	v := NewValidator()

	if w := v.ValidateResult(&domain.GenerationResult{}); !containsWarning(w, "No test cases") {
		t.Errorf("expected empty-result warning, got %v", w)
	}

	tc := domain.TestCase{Title: "Same", TestSteps: "1. a\n2. b", ExpectedResults: "• ok"}
	w := v.ValidateResult(&domain.GenerationResult{AllTestCases: []domain.TestCase{tc, tc, tc}})
	count := 0
	for _, s := range w {
		if strings.HasPrefix(s, "Duplicate title") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("duplicate warnings = %d, want 1", count)
	}
}

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}
