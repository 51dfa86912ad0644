package elements

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/casegen/internal/domain"
)

func findByText(els []domain.UIElement, text string) *domain.UIElement {
	for i := range els {
		if els[i].Text == text {
			return &els[i]
		}
	}
	return nil
}

func grouped(els []domain.UIElement) map[string][]domain.UIElement {
	out := make(map[string][]domain.UIElement)
	for _, el := range els {
		if el.Grouped {
			out[el.Type] = append(out[el.Type], el)
		}
	}
	return out
}

func TestClassify_LoginPage(t *testing.T) {
	els := Classify("Login\nSubmit\nuser1@test.com\nuser2@test.com\n2024-01-01", 0, "Login Page")

	require.Len(t, els, 4)

	login := findByText(els, "Login")
	require.NotNil(t, login)
	assert.Equal(t, domain.CategoryInteractive, login.Category)
	assert.Equal(t, 1, login.Priority)

	submit := findByText(els, "Submit")
	require.NotNil(t, submit)
	assert.Equal(t, domain.CategoryInteractive, submit.Category)
	assert.Equal(t, 1, submit.Priority)

	g := grouped(els)
	require.Len(t, g["email"], 1)
	assert.Equal(t, []string{"user1@test.com"}, g["email"][0].Examples)
	assert.Equal(t, 4, g["email"][0].Priority)
	assert.Equal(t, domain.CategoryData, g["email"][0].Category)
	require.Len(t, g["date"], 1)
	assert.Equal(t, []string{"2024-01-01"}, g["date"][0].Examples)

	assert.Nil(t, findByText(els, "user2@test.com"))

	for _, el := range els {
		assert.Equal(t, "Login Page", el.Page)
		assert.True(t, strings.HasPrefix(el.ID, "s0_e"), el.ID)
	}
}

func TestClassify_GroupingIsOncePerPattern(t *testing.T) {
	text := strings.Join([]string{
		"a@x.com", "b@x.com", "c@x.com",
		"(555) 123-4567", "(555) 765-4321",
		"01/02/2024", "2024-03-04",
		"100234", "#99881",
	}, "\n")

	g := grouped(Classify(text, 2, "Customers"))
	for kind, items := range g {
		assert.Len(t, items, 1, "pattern %s grouped more than once", kind)
	}
	assert.Len(t, g, 4)
}

func TestClassify_Precedence(t *testing.T) {
	tests := []struct {
		line     string
		category domain.Category
		priority int
		label    string
	}{
		{"Save Changes", domain.CategoryInteractive, 1, "Save Changes"},
		{"Click to continue", domain.CategoryInteractive, 1, "Click to continue"},
		{"Learn more", domain.CategoryInteractive, 1, "Learn more"},
		{"Main Menu", domain.CategoryNavigation, 1, "Main Menu"},
		{"Username", domain.CategoryForm, 2, "Username"},
		{"First Name:", domain.CategoryForm, 2, "First Name"},
		{"Email *", domain.CategoryForm, 2, "Email (Required)"},
		{"Status", domain.CategoryStructure, 2, "Status"},
		{"Hello Jane Smith", domain.CategoryData, 3, "Hello Jane Smith"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			els := Classify(tt.line, 0, "p")
			require.Len(t, els, 1)
			assert.Equal(t, tt.category, els[0].Category)
			assert.Equal(t, tt.priority, els[0].Priority)
			assert.Equal(t, tt.label, els[0].Label)
		})
	}
}

func TestClassify_Filtering(t *testing.T) {
	text := strings.Join([]string{
		"x",
		"Dashboard",
		"DASHBOARD",
		"the",
		"10:30 AM",
		"5 min ago",
		"42",
		strings.Repeat("lorem ipsum ", 6),
	}, "\n")

	els := Classify(text, 1, "Home")
	require.Len(t, els, 1)
	assert.Equal(t, "Dashboard", els[0].Text)
	assert.Equal(t, "s1_e0", els[0].ID)
}

func TestClassify_SortedStable(t *testing.T) {
	els := Classify("Welcome Jane\nEmail:\nSubmit\nnote@x.io\nCancel", 0, "Form")
	require.NotEmpty(t, els)

	for i := 1; i < len(els); i++ {
		assert.LessOrEqual(t, els[i-1].Priority, els[i].Priority)
	}
	assert.Equal(t, "Submit", els[0].Text)
	assert.Equal(t, "Cancel", els[1].Text)
}

func TestClassify_Empty(t *testing.T) {
	assert.Empty(t, Classify("", 0, "Blank"))
	assert.Empty(t, Classify("\n \n\t\n", 0, "Blank"))
}

func TestClassifyAll(t *testing.T) {
	out := ClassifyAll([]string{"Submit", ""}, []string{"Checkout"})
	require.Len(t, out, 2)
	assert.Equal(t, "Checkout", out[0][0].Page)
	assert.Empty(t, out[1])
	assert.Equal(t, "Page 2", PageName([]string{"Checkout"}, 1))
}

func TestSummarize(t *testing.T) {
	els := Classify("Submit\nCancel\nUsername\nhello world", 0, "p")
	s := Summarize(els)
	assert.Equal(t, 2, s[domain.CategoryInteractive])
	assert.Equal(t, 1, s[domain.CategoryForm])
	assert.Equal(t, "2 interactive, 1 form, 1 data", s.String())
	assert.Equal(t, "no elements", Summarize(nil).String())
}

func TestClassify_LengthCountsCharacters(t *testing.T) {
	// 30 characters, 55 bytes
	report := "Отчет по клиентам за квартал я"
	els := Classify(report+"\n確\n"+strings.Repeat("界", 51), 0, "Reports")

	require.Len(t, els, 1)
	assert.Equal(t, report, els[0].Text)
	assert.Equal(t, domain.CategoryData, els[0].Category)
}
