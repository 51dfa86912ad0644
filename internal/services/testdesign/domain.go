package testdesign

import (
	"regexp"
	"strings"

	"github.com/testforge/casegen/internal/domain"
)

type domainProfile struct {
	name      string
	keywords  []string
	functions []string
	testAreas []string
}

// Order matters: on equal scores the earlier profile wins.
var domainProfiles = []domainProfile{
	{
		name:      "E-commerce",
		keywords:  []string{"cart", "checkout", "product", "order", "shipping", "price", "buy", "shop", "catalog", "coupon", "wishlist", "payment"},
		functions: []string{"product browsing", "cart management", "checkout", "order tracking", "payment processing"},
		testAreas: []string{"cart calculations", "payment validation", "inventory limits", "discount rules", "shipping options"},
	},
	{
		name:      "CRM",
		keywords:  []string{"customer", "lead", "contact", "opportunity", "pipeline", "deal", "account", "campaign", "prospect", "sales"},
		functions: []string{"contact management", "lead tracking", "deal pipeline", "activity logging", "reporting"},
		testAreas: []string{"record ownership", "pipeline stage transitions", "duplicate detection", "search and filtering", "data import"},
	},
	{
		name:      "Banking",
		keywords:  []string{"account", "balance", "transfer", "transaction", "deposit", "withdraw", "loan", "statement", "beneficiary", "iban", "credit"},
		functions: []string{"account overview", "fund transfers", "transaction history", "statements", "beneficiary management"},
		testAreas: []string{"balance integrity", "transfer limits", "authorization checks", "audit trail", "currency formatting"},
	},
	{
		name:      "Project Management",
		keywords:  []string{"project", "task", "milestone", "sprint", "assignee", "board", "backlog", "deadline", "kanban", "timeline"},
		functions: []string{"task tracking", "sprint planning", "assignment", "progress reporting", "collaboration"},
		testAreas: []string{"status workflows", "permission by role", "due date handling", "notifications", "board drag and drop"},
	},
	{
		name:      "Healthcare",
		keywords:  []string{"patient", "appointment", "doctor", "prescription", "diagnosis", "medical", "clinic", "insurance", "records", "physician"},
		functions: []string{"patient registration", "appointment scheduling", "medical records", "prescriptions", "billing"},
		testAreas: []string{"data privacy", "scheduling conflicts", "record accuracy", "access control", "insurance validation"},
	},
}

// keywordPatterns[i][j] matches domainProfiles[i].keywords[j] as a whole
// word, allowing a plural suffix, so "order" counts in "orders" but not in
// "border".
var keywordPatterns = compileKeywords(domainProfiles)

func compileKeywords(profiles []domainProfile) [][]*regexp.Regexp {
	out := make([][]*regexp.Regexp, len(profiles))
	for i, p := range profiles {
		out[i] = make([]*regexp.Regexp, len(p.keywords))
		for j, kw := range p.keywords {
			out[i][j] = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `(?:s|es)?\b`)
		}
	}
	return out
}

var defaultDomain = domain.DomainInfo{
	Domain:    "General Business Application",
	Functions: []string{"data entry", "navigation", "search", "record management"},
	TestAreas: []string{"input validation", "navigation flow", "error handling", "data persistence"},
}

// DetectDomain scores page names and OCR text against the known profiles.
// The result is advisory and never blocks generation.
func DetectDomain(pageNames, ocrTexts []string) domain.DomainInfo {
	corpus := strings.ToLower(strings.Join(pageNames, " ") + " " + strings.Join(ocrTexts, " "))

	best, bestScore := -1, 0
	for i := range domainProfiles {
		score := 0
		for _, re := range keywordPatterns[i] {
			score += len(re.FindAllStringIndex(corpus, -1))
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 {
		return cloneInfo(defaultDomain)
	}
	p := domainProfiles[best]
	return cloneInfo(domain.DomainInfo{Domain: p.name, Functions: p.functions, TestAreas: p.testAreas})
}

func cloneInfo(d domain.DomainInfo) domain.DomainInfo {
	return domain.DomainInfo{
		Domain:    d.Domain,
		Functions: append([]string(nil), d.Functions...),
		TestAreas: append([]string(nil), d.TestAreas...),
	}
}
