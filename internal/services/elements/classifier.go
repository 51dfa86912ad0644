// Package elements turns raw OCR text into categorized UI element candidates.
package elements

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/testforge/casegen/internal/domain"
)

const (
	minLineLength   = 2
	noiseMaxLength  = 10
	headerMaxLength = 20
	dataMaxLength   = 50
)

var (
	noisePattern = regexp.MustCompile(`(?i)^(the|a|an|and|or|of|to|in|on|at|by|for|with|is|it|am|pm|today|yesterday|©.*|\d{1,2}:\d{2}(:\d{2})?\s*([ap]m)?|\d+\s*(s|m|h|d|min|mins|sec|secs|hrs?)\s+ago)$`)

	actionPattern     = regexp.MustCompile(`(?i)\b(button|submit|save|cancel|delete|remove|add|create|edit|update|confirm|continue|next|back|apply|reset|send|upload|download|login|log in|logout|log out|sign in|sign up|sign out|register|checkout|check out|buy|pay|search|ok|close|approve|reject)\b`)
	linkPattern       = regexp.MustCompile(`(?i)\b(link|navigate|go to|view|learn more|see all|details|here|click)\b`)
	navigationPattern = regexp.MustCompile(`(?i)\b(menu|nav|navigation|breadcrumb|home|dashboard|settings|profile|sidebar|tabs?)\b`)
	formPattern       = regexp.MustCompile(`(?i)\b(input|field|dropdown|select|checkbox|radio|textbox|text area|password|username|enter|choose|required|optional|placeholder)\b`)
	headerPattern     = regexp.MustCompile(`(?i)^(#|no\.?|name|email|status|date|actions?|id|type|description|amount|total|price|qty|quantity|created|updated|modified|role|phone|owner|category)(\s+\w+)?$`)
	numericPattern    = regexp.MustCompile(`^[\d\s.,%$+\-/]+$`)
)

// dataPattern is one of the high-volume value shapes collapsed into a single
// grouped candidate per screenshot.
type dataPattern struct {
	kind  string
	label string
	re    *regexp.Regexp
}

var dataPatterns = []dataPattern{
	{"email", "Email addresses", regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)},
	{"phone", "Phone numbers", regexp.MustCompile(`^(\+\d{1,3}[\s.\-]?)?\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}$`)},
	{"date", "Dates", regexp.MustCompile(`(?i)\b(\d{4}-\d{2}-\d{2}|\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}|(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4})\b`)},
	{"id", "Numeric IDs", regexp.MustCompile(`^#?([A-Za-z]{1,4}-?)?\d{4,}$`)},
}

// Classify extracts candidates from one screenshot's OCR text. The result is
// sorted by priority; lines keep their original order within a tier. Length
// limits count characters, not bytes.
func Classify(text string, screenshotIndex int, pageName string) []domain.UIElement {
	var (
		out     []domain.UIElement
		seen    = make(map[string]bool)
		grouped = make(map[string]bool)
	)

	emit := func(el domain.UIElement) {
		el.ID = fmt.Sprintf("s%d_e%d", screenshotIndex, len(out))
		el.Page = pageName
		out = append(out, el)
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		n := utf8.RuneCountInString(line)
		if n < minLineLength {
			continue
		}
		key := strings.ToLower(line)
		if seen[key] {
			continue
		}
		seen[key] = true

		if n < noiseMaxLength && noisePattern.MatchString(line) {
			continue
		}

		if el, ok := classifyStructural(line); ok {
			emit(el)
			continue
		}

		if p, ok := matchDataPattern(line); ok {
			if !grouped[p.kind] {
				grouped[p.kind] = true
				emit(domain.UIElement{
					Text:     line,
					Label:    p.label,
					Type:     p.kind,
					Category: domain.CategoryData,
					Priority: domain.PriorityGrouped,
					Grouped:  true,
					Examples: []string{line},
				})
			}
			continue
		}

		if n > dataMaxLength || numericPattern.MatchString(line) {
			continue
		}
		emit(domain.UIElement{
			Text:     line,
			Label:    line,
			Type:     "text",
			Category: domain.CategoryData,
			Priority: domain.PriorityLow,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

func classifyStructural(line string) (domain.UIElement, bool) {
	el := domain.UIElement{Text: line, Label: line}

	switch {
	case actionPattern.MatchString(line):
		el.Type, el.Category, el.Priority = "button", domain.CategoryInteractive, domain.PriorityHigh
	case linkPattern.MatchString(line):
		el.Type, el.Category, el.Priority = "link", domain.CategoryInteractive, domain.PriorityHigh
	case navigationPattern.MatchString(line):
		el.Type, el.Category, el.Priority = "menu", domain.CategoryNavigation, domain.PriorityHigh
	case formPattern.MatchString(line) || strings.Contains(line, ":") || strings.HasSuffix(line, "*"):
		el.Type, el.Category, el.Priority = "input", domain.CategoryForm, domain.PriorityMedium
		el.Label = formLabel(line)
	case utf8.RuneCountInString(line) < headerMaxLength && headerPattern.MatchString(line):
		el.Type, el.Category, el.Priority = "header", domain.CategoryStructure, domain.PriorityMedium
	default:
		return el, false
	}
	return el, true
}

func formLabel(line string) string {
	label := strings.TrimSuffix(strings.TrimSpace(strings.TrimSuffix(line, ":")), ":")
	if strings.HasSuffix(label, "*") {
		label = strings.TrimSpace(strings.TrimRight(label, "*")) + " (Required)"
	}
	return label
}

func matchDataPattern(line string) (dataPattern, bool) {
	for _, p := range dataPatterns {
		if p.re.MatchString(line) {
			return p, true
		}
	}
	return dataPattern{}, false
}

// ClassifyAll classifies every OCR slot. Missing page names fall back to
// "Page N".
func ClassifyAll(ocrResults, pageNames []string) [][]domain.UIElement {
	out := make([][]domain.UIElement, len(ocrResults))
	for i, text := range ocrResults {
		out[i] = Classify(text, i, PageName(pageNames, i))
	}
	return out
}

// PageName returns the supplied name for slot i or a positional fallback.
func PageName(pageNames []string, i int) string {
	if i < len(pageNames) {
		if name := strings.TrimSpace(pageNames[i]); name != "" {
			return name
		}
	}
	return fmt.Sprintf("Page %d", i+1)
}

// Summary counts candidates per category.
type Summary map[domain.Category]int

// Summarize counts candidates by category.
func Summarize(elements []domain.UIElement) Summary {
	s := make(Summary)
	for _, el := range elements {
		s[el.Category]++
	}
	return s
}

// String renders the summary in a fixed category order, omitting zeros.
func (s Summary) String() string {
	order := []domain.Category{
		domain.CategoryInteractive,
		domain.CategoryNavigation,
		domain.CategoryForm,
		domain.CategoryStructure,
		domain.CategoryData,
		domain.CategoryContent,
		domain.CategoryFeedback,
		domain.CategoryUnknown,
	}
	var parts []string
	for _, c := range order {
		if n := s[c]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, c))
		}
	}
	if len(parts) == 0 {
		return "no elements"
	}
	return strings.Join(parts, ", ")
}
