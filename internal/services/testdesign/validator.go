package testdesign

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/testforge/casegen/internal/domain"
)

var screenshotRefPattern = regexp.MustCompile(`(?i)\b(screenshot|image)\s*#?\d+\b`)

// Validator reports quality warnings on parsed test cases. Warnings never
// reject a result; they are logged by the caller.
type Validator struct {
	config ValidationConfig
}

// ValidationConfig configures validation rules
type ValidationConfig struct {
	MinStepsPerTest  int
	MaxStepsPerTest  int
	MaxTitleLength   int
	RequireTestData  bool
	ForbidScreenRefs bool
}

// DefaultValidationConfig returns sensible defaults
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MinStepsPerTest:  2,
		MaxStepsPerTest:  30,
		MaxTitleLength:   120,
		RequireTestData:  false,
		ForbidScreenRefs: true,
	}
}

// NewValidator creates a new validator with default config
func NewValidator() *Validator {
	return &Validator{
		config: DefaultValidationConfig(),
	}
}

// NewValidatorWithConfig creates a new validator with custom config
func NewValidatorWithConfig(config ValidationConfig) *Validator {
	return &Validator{
		config: config,
	}
}

// ValidateResult validates every case in a result
func (v *Validator) ValidateResult(result *domain.GenerationResult) []string {
	var warnings []string

	if len(result.AllTestCases) == 0 {
		warnings = append(warnings, "Result: No test cases generated")
	}

	titles := make(map[string]int)
	for i, tc := range result.AllTestCases {
		warnings = append(warnings, v.ValidateTestCase(&tc, fmt.Sprintf("TestCase[%d]", i))...)

		key := strings.ToLower(tc.Title)
		titles[key]++
		if titles[key] == 2 {
			warnings = append(warnings, fmt.Sprintf("Duplicate title: %s", tc.Title))
		}
	}

	return warnings
}

// ValidateTestCase validates a test case
func (v *Validator) ValidateTestCase(tc *domain.TestCase, path string) []string {
	var warnings []string

	if tc.Title == DefaultTitle {
		warnings = append(warnings, fmt.Sprintf("%s: Missing title", path))
	}
	if v.config.MaxTitleLength > 0 && len(tc.Title) > v.config.MaxTitleLength {
		warnings = append(warnings, fmt.Sprintf("%s: Title too long (%d > %d)", path, len(tc.Title), v.config.MaxTitleLength))
	}

	steps := len(nonEmptyLines(tc.TestSteps))
	if steps < v.config.MinStepsPerTest {
		warnings = append(warnings, fmt.Sprintf("%s: Too few steps (%d < %d)", path, steps, v.config.MinStepsPerTest))
	}
	if v.config.MaxStepsPerTest > 0 && steps > v.config.MaxStepsPerTest {
		warnings = append(warnings, fmt.Sprintf("%s: Too many steps (%d > %d)", path, steps, v.config.MaxStepsPerTest))
	}

	if v.config.RequireTestData && tc.TestData == DefaultTestData {
		warnings = append(warnings, fmt.Sprintf("%s: Missing test data", path))
	}
	if tc.ExpectedResults == DefaultExpectedResults {
		warnings = append(warnings, fmt.Sprintf("%s: Missing expected results", path))
	}

	if v.config.ForbidScreenRefs {
		for _, field := range []string{tc.Title, tc.Preconditions, tc.TestSteps, tc.ExpectedResults} {
			if screenshotRefPattern.MatchString(field) {
				warnings = append(warnings, fmt.Sprintf("%s: References a screenshot by number instead of page name", path))
				break
			}
		}
	}

	return warnings
}
