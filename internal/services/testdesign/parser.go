package testdesign

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/testforge/casegen/internal/domain"
)

// Defaults applied to missing or empty fields.
const (
	DefaultTitle           = "Untitled Test Case"
	DefaultPreconditions   = "None"
	DefaultTestSteps       = "1. Execute the test scenario"
	DefaultTestData        = "• No specific test data required"
	DefaultExpectedResults = "• System behaves as expected"

	bullet = "• "
)

var (
	fencePattern    = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")
	numberedPattern = regexp.MustCompile(`^\d+[.)]\s*`)
	bulletPattern   = regexp.MustCompile(`^[•\-*]\s*`)
)

// field aliases seen in model output, first match wins
var fieldAliases = map[string][]string{
	"type":            {"type", "testType", "category"},
	"title":           {"title", "name", "testCase"},
	"preconditions":   {"preconditions", "precondition", "prerequisites"},
	"testSteps":       {"testSteps", "steps"},
	"testData":        {"testData", "data"},
	"expectedResults": {"expectedResults", "expectedResult", "expected"},
}

// ParseResponse extracts and normalizes test cases from raw model text.
// Output that lacks a testCases array fails with MALFORMED_RESPONSE.
// Braces in prose before the object are skipped.
func ParseResponse(raw string) (*domain.GenerationResult, error) {
	rawCases, err := findTestCases(stripFences(raw))
	if err != nil {
		return nil, err
	}

	result := &domain.GenerationResult{
		AllTestCases: make([]domain.TestCase, 0, len(rawCases)),
		Functional:   []string{},
		EndToEnd:     []string{},
		Integration:  []string{},
		UI:           []string{},
	}

	for _, rc := range rawCases {
		obj, ok := rc.(map[string]interface{})
		if !ok {
			continue
		}
		rawType := lookup(obj, "type")
		tc := normalizeCase(obj, rawType)
		result.AllTestCases = append(result.AllTestCases, tc)

		summary := summaryLine(tc)
		switch bucketKey(rawType) {
		case "endtoend", "e2e":
			result.EndToEnd = append(result.EndToEnd, summary)
		case "integration":
			result.Integration = append(result.Integration, summary)
		case "ui":
			result.UI = append(result.UI, summary)
		default:
			result.Functional = append(result.Functional, summary)
		}
	}

	return result, nil
}

// findTestCases tries each balanced {...} span in turn and returns the
// testCases array of the first one that decodes and carries it. The error
// describes the first candidate that failed.
func findTestCases(text string) ([]interface{}, error) {
	var firstErr error
	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	for off := 0; off < len(text); {
		i := strings.IndexByte(text[off:], '{')
		if i < 0 {
			break
		}
		start := off + i
		off = start + 1

		span := balancedObject(text[start:])
		if span == "" {
			fail(domain.ErrMalformedResponse("unbalanced JSON object", nil))
			continue
		}

		dec := json.NewDecoder(strings.NewReader(span))
		dec.UseNumber()
		var doc map[string]interface{}
		if err := dec.Decode(&doc); err != nil {
			fail(domain.ErrMalformedResponse("invalid JSON", err))
			continue
		}
		rawCases, ok := doc["testCases"].([]interface{})
		if !ok {
			fail(domain.ErrMalformedResponse("missing testCases array", nil))
			continue
		}
		return rawCases, nil
	}

	if firstErr == nil {
		firstErr = domain.ErrMalformedResponse("no JSON object found", nil)
	}
	return nil, firstErr
}

func normalizeCase(obj map[string]interface{}, rawType string) domain.TestCase {
	return domain.TestCase{
		Type:            NormalizeType(rawType),
		Title:           orDefault(firstLine(lookup(obj, "title")), DefaultTitle),
		Preconditions:   orDefault(lookup(obj, "preconditions"), DefaultPreconditions),
		TestSteps:       orDefault(FormatSteps(lookup(obj, "testSteps")), DefaultTestSteps),
		TestData:        orDefault(FormatBullets(lookup(obj, "testData")), DefaultTestData),
		ExpectedResults: orDefault(FormatBullets(lookup(obj, "expectedResults")), DefaultExpectedResults),
	}
}

func lookup(obj map[string]interface{}, field string) string {
	for _, key := range fieldAliases[field] {
		if v, ok := obj[key]; ok && v != nil {
			if s := coerce(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// coerce renders any JSON value as text. Arrays become one line per item.
func coerce(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := coerce(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case map[string]interface{}:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(t); err != nil {
			return ""
		}
		return strings.TrimSpace(buf.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// NormalizeType maps free-form type labels to Functional, Integration or
// End-to-End.
func NormalizeType(raw string) string {
	switch bucketKey(raw) {
	case "endtoend", "e2e":
		return domain.TypeEndToEnd
	case "integration":
		return domain.TypeIntegration
	default:
		return domain.TypeFunctional
	}
}

func bucketKey(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '-', '_':
			return -1
		}
		return r
	}, strings.ToLower(raw))
}

// FormatSteps renders steps as a numbered list. Text that is already
// numbered is kept as is.
func FormatSteps(s string) string {
	items := splitItems(s, numberedPattern)
	if len(items) == 0 {
		return ""
	}
	if allMatch(items, numberedPattern) {
		return strings.Join(items, "\n")
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(bulletPattern.ReplaceAllString(numberedPattern.ReplaceAllString(item, ""), ""))
		if item == "" {
			continue
		}
		out = append(out, fmt.Sprintf("%d. %s", len(out)+1, item))
	}
	return strings.Join(out, "\n")
}

// FormatBullets renders text as one bullet per line, keeping existing
// bullet, dash or asterisk markers.
func FormatBullets(s string) string {
	items := splitItems(s, bulletPattern)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if bulletPattern.MatchString(item) {
			out = append(out, item)
			continue
		}
		out = append(out, bullet+item)
	}
	return strings.Join(out, "\n")
}

// splitItems splits on newlines; a single line that is not already marked
// with the list prefix is split on semicolons, or on commas when none exist.
// Commas between digits, as in "1,000", do not split.
func splitItems(s string, marker *regexp.Regexp) []string {
	lines := nonEmptyLines(s)
	if len(lines) != 1 || marker.MatchString(lines[0]) {
		return lines
	}

	line := lines[0]
	var parts []string
	switch {
	case strings.Contains(line, ";"):
		parts = strings.Split(line, ";")
	case strings.Contains(line, ","):
		parts = splitCommas(line)
	default:
		return lines
	}

	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitCommas(line string) []string {
	var parts []string
	last := 0
	for i := 0; i < len(line); i++ {
		if line[i] != ',' {
			continue
		}
		if i > 0 && i+1 < len(line) && isDigit(line[i-1]) && isDigit(line[i+1]) {
			continue
		}
		parts = append(parts, line[last:i])
		last = i + 1
	}
	return append(parts, line[last:])
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func allMatch(items []string, re *regexp.Regexp) bool {
	for _, item := range items {
		if !re.MatchString(item) {
			return false
		}
	}
	return true
}

func summaryLine(tc domain.TestCase) string {
	first := tc.ExpectedResults
	if lines := nonEmptyLines(first); len(lines) > 0 {
		first = lines[0]
	}
	first = strings.TrimSpace(bulletPattern.ReplaceAllString(first, ""))
	return fmt.Sprintf("%s: %s", tc.Title, first)
}

func firstLine(s string) string {
	if lines := nonEmptyLines(s); len(lines) > 0 {
		return lines[0]
	}
	return ""
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func stripFences(text string) string {
	return fencePattern.ReplaceAllString(text, "")
}

// balancedObject returns the {...} span that text starts with, ignoring
// braces inside string literals. Unbalanced input yields "".
func balancedObject(text string) string {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[:i+1]
			}
		}
	}
	return ""
}
