package testdesign

import (
	"fmt"
	"math"
	"strings"

	"github.com/testforge/casegen/internal/domain"
	"github.com/testforge/casegen/internal/llm"
	"github.com/testforge/casegen/internal/services/elements"
)

// maxExamples caps the example values listed for a grouped element.
const maxExamples = 3

// PromptInput carries everything the assembler needs. Elements may be left
// nil, in which case OCRResults are classified here.
type PromptInput struct {
	Screenshots []domain.Screenshot
	OCRResults  []string
	PageNames   []string
	Elements    [][]domain.UIElement
	Domain      domain.DomainInfo
	Scenario    domain.ScenarioContext
}

// Prompt is an assembled model request.
type Prompt struct {
	System         string
	User           string
	Images         []llm.Image
	EstimatedCount int
}

// Request returns the text part of the prompt for a backend.
func (p Prompt) Request() llm.Prompt {
	return llm.Prompt{System: p.System, User: p.User}
}

var intentMultipliers = map[domain.TestingIntent]float64{
	domain.IntentFormValidation: 15,
	domain.IntentUserJourney:    8,
	domain.IntentIntegration:    12,
	domain.IntentBusinessLogic:  10,
	domain.IntentComprehensive:  18,
}

var coverageMultipliers = map[domain.CoverageLevel]float64{
	domain.CoverageEssential:     0.6,
	domain.CoverageComprehensive: 1.0,
	domain.CoverageExhaustive:    1.4,
}

// EstimateTestCount is a display hint only; the model is not held to it.
func EstimateTestCount(intent domain.TestingIntent, coverage domain.CoverageLevel, numTypes int) int {
	im, ok := intentMultipliers[intent]
	if !ok {
		im = 12
	}
	cm, ok := coverageMultipliers[coverage]
	if !ok {
		cm = 1.0
	}
	return int(math.Round(im * cm * (0.3*float64(numTypes) + 0.4)))
}

// SystemPrompt returns the QA analyst system prompt
func SystemPrompt() string {
	return `You are a senior QA analyst who writes precise manual test cases from application screenshots.

## Working Rules
- Base every test case on what is visible in the screenshots and the extracted text
- Follow the page order given to you; it is the user journey
- Refer to pages by the names supplied, never as "Screenshot 1" or "Image 2"
- Write steps a tester can execute without further context
- Give concrete test data values rather than placeholders

## Test Case Types
- **Functional**: behaviour of a single page or component
- **Integration**: data or state passing between pages or systems
- **End-to-End**: a complete journey across several pages

## Output Requirements
Return ONLY a single JSON object. No prose before or after it.`
}

// BuildPrompt assembles the full prompt and per-image blocks.
func BuildPrompt(in PromptInput) Prompt {
	scenario := in.Scenario.Normalize()
	els := in.Elements
	if els == nil {
		els = elements.ClassifyAll(in.OCRResults, in.PageNames)
	}

	pages := make([]string, len(in.OCRResults))
	for i := range pages {
		pages[i] = elements.PageName(in.PageNames, i)
	}

	var sb strings.Builder

	sb.WriteString("# Generate Manual Test Cases\n\n")

	sb.WriteString("## Application Context\n")
	sb.WriteString(fmt.Sprintf("**Detected Domain**: %s\n", in.Domain.Domain))
	if len(in.Domain.Functions) > 0 {
		sb.WriteString(fmt.Sprintf("**Typical Functions**: %s\n", strings.Join(in.Domain.Functions, ", ")))
	}
	if len(in.Domain.TestAreas) > 0 {
		sb.WriteString(fmt.Sprintf("**Key Test Areas**: %s\n", strings.Join(in.Domain.TestAreas, ", ")))
	}
	sb.WriteString("\n")

	sb.WriteString("## Page Sequence (user journey order)\n")
	for i, name := range pages {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, name))
	}
	sb.WriteString("\n")

	sb.WriteString("## Extracted Page Content\n")
	for i, name := range pages {
		writePageSection(&sb, name, in.OCRResults[i], elementsAt(els, i))
	}

	writeContextSections(&sb, scenario)

	sb.WriteString("## Testing Focus\n")
	sb.WriteString(intentSection(scenario.TestingIntent))
	sb.WriteString("\n\n")

	sb.WriteString("## Coverage\n")
	sb.WriteString(coverageClause(scenario.CoverageLevel))
	sb.WriteString("\n\n")

	sb.WriteString("## Test Types to Include\n")
	for _, t := range scenario.TestTypes {
		sb.WriteString(fmt.Sprintf("- %s\n", testTypeLine(t)))
	}
	sb.WriteString("\n")

	estimate := EstimateTestCount(scenario.TestingIntent, scenario.CoverageLevel, len(scenario.TestTypes))
	sb.WriteString(fmt.Sprintf("Aim for roughly %d test cases.\n\n", estimate))

	sb.WriteString(outputFormat(pages))

	return Prompt{
		System:         SystemPrompt(),
		User:           sb.String(),
		Images:         imageBlocks(in.Screenshots, pages),
		EstimatedCount: estimate,
	}
}

func elementsAt(els [][]domain.UIElement, i int) []domain.UIElement {
	if i < len(els) {
		return els[i]
	}
	return nil
}

func writePageSection(sb *strings.Builder, name, text string, els []domain.UIElement) {
	sb.WriteString(fmt.Sprintf("\n### Page: %s\n", name))
	if strings.TrimSpace(text) == "" {
		sb.WriteString("(no text could be extracted from this page; rely on the image)\n")
		return
	}

	sb.WriteString(fmt.Sprintf("Elements: %s\n", elements.Summarize(els)))
	for _, el := range els {
		if el.Grouped {
			examples := el.Examples
			if len(examples) > maxExamples {
				examples = examples[:maxExamples]
			}
			sb.WriteString(fmt.Sprintf("- [%s] %s (e.g. %s)\n", el.Category, el.Label, strings.Join(examples, ", ")))
			continue
		}
		sb.WriteString(fmt.Sprintf("- [%s/%s] %s\n", el.Category, el.Type, el.Label))
	}

	sb.WriteString("\nRaw text:\n```\n")
	sb.WriteString(strings.TrimSpace(text))
	sb.WriteString("\n```\n")
}

func writeContextSections(sb *strings.Builder, s domain.ScenarioContext) {
	sections := []struct {
		title string
		body  string
	}{
		{"User Story", s.UserStory},
		{"Acceptance Criteria", s.AcceptanceCriteria},
		{"Business Rules", s.BusinessRules},
		{"Edge Cases to Consider", s.EdgeCases},
		{"Test Environment", s.TestEnvironment},
	}
	for _, sec := range sections {
		if sec.body == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("\n## %s\n%s\n", sec.title, sec.body))
	}
	sb.WriteString("\n")
}

func intentSection(intent domain.TestingIntent) string {
	switch intent {
	case domain.IntentFormValidation:
		return `Focus on form validation:
- Required fields, formats, length limits and boundary values
- Error message content and placement
- Submission with valid, invalid and partially completed data`
	case domain.IntentUserJourney:
		return `Focus on the user journey:
- The complete flow across the pages in the order given
- Navigation between pages, including back and cancel paths
- State carried from one page to the next`
	case domain.IntentIntegration:
		return `Focus on integration points:
- Data entered on one page appearing correctly on later pages
- Interactions with external systems implied by the screens
- Failure handling when a dependent service is unavailable`
	case domain.IntentBusinessLogic:
		return `Focus on business logic:
- Calculations, rules and conditional behaviour visible on the pages
- Role or status dependent behaviour
- Rule violations and how the application reports them`
	default:
		return `Provide comprehensive coverage:
- Functional checks for every interactive element
- Validation of all inputs
- The end-to-end journey across the pages
- Integration between pages and error handling`
	}
}

func coverageClause(level domain.CoverageLevel) string {
	switch level {
	case domain.CoverageEssential:
		return "Cover only the essential, highest-risk scenarios. Prefer fewer, high-value test cases."
	case domain.CoverageExhaustive:
		return "Be exhaustive: include boundary values, rare paths and unusual input combinations."
	default:
		return "Provide balanced coverage of main flows, validation and common error paths."
	}
}

func testTypeLine(t string) string {
	switch t {
	case domain.TestTypePositive:
		return "Positive: valid inputs and expected successful behaviour"
	case domain.TestTypeNegative:
		return "Negative: invalid inputs, unauthorized actions and error handling"
	default:
		return "Edge cases: boundaries, empty states, limits and unusual sequences"
	}
}

func outputFormat(pages []string) string {
	example := "Login Page"
	if len(pages) > 0 {
		example = pages[0]
	}
	return fmt.Sprintf(`## Output Format
Return ONLY a JSON object with this structure:
{
  "testCases": [
    {
      "type": "Functional|Integration|End-to-End",
      "title": "Short descriptive title",
      "preconditions": "State required before the test",
      "testSteps": "1. Open the %s\n2. ...",
      "testData": "• field: value",
      "expectedResults": "• Observable outcome"
    }
  ]
}

## Guidelines
1. Reference pages by their names (for example "%s"), never "Screenshot N"
2. Number test steps and keep one action per step
3. Put each test data item and expected result on its own bullet line
4. Do not wrap the JSON in commentary`, example, example)
}

func imageBlocks(shots []domain.Screenshot, pages []string) []llm.Image {
	if len(shots) == 0 {
		return nil
	}
	out := make([]llm.Image, 0, len(shots))
	for i, s := range shots {
		name := s.Name
		if i < len(pages) {
			name = pages[i]
		}
		mime := s.MimeType
		if mime == "" {
			mime = "image/png"
		}
		out = append(out, llm.Image{
			Tag:      fmt.Sprintf("[Image %d: %s]", i+1, name),
			MimeType: mime,
			Data:     s.Data,
		})
	}
	return out
}
