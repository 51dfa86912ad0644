package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRequest(n int) *GenerationRequest {
	req := &GenerationRequest{Model: BackendClaude}
	for i := 0; i < n; i++ {
		req.Screenshots = append(req.Screenshots, Screenshot{Data: []byte{byte(i)}, Name: "page"})
		req.OCRResults = append(req.OCRResults, "text")
		req.PageNames = append(req.PageNames, "page")
	}
	return req
}

func TestGenerationRequest_Validate_Bounds(t *testing.T) {
	tests := []struct {
		n       int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{25, false},
		{26, true},
	}

	for _, tt := range tests {
		err := makeRequest(tt.n).Validate()
		if tt.wantErr {
			require.Error(t, err, "n=%d", tt.n)
			assert.Equal(t, ErrCodeValidation, GetErrorCode(err))
		} else {
			assert.NoError(t, err, "n=%d", tt.n)
		}
	}
}

func TestGenerationRequest_Validate_Alignment(t *testing.T) {
	req := makeRequest(3)
	req.PageNames = req.PageNames[:2]
	assert.Error(t, req.Validate())

	req = makeRequest(3)
	req.OCRResults = append(req.OCRResults, "extra")
	assert.Error(t, req.Validate())
}

func TestGenerationRequest_Validate_Session(t *testing.T) {
	req := &GenerationRequest{
		SessionID:  "s1",
		OCRResults: []string{"a", "b"},
		PageNames:  []string{"A", "B"},
		Model:      BackendGemini,
	}
	assert.NoError(t, req.Validate())
	assert.Equal(t, 2, req.Count())
}

func TestGenerationRequest_Validate_UnknownModel(t *testing.T) {
	req := makeRequest(1)
	req.Model = "gpt"
	assert.Equal(t, ErrCodeUnknownBackend, GetErrorCode(req.Validate()))
}

func TestScreenshot_Identity(t *testing.T) {
	a := Screenshot{Data: []byte("img"), Name: "Login"}
	b := Screenshot{Data: []byte("img"), Name: "Home"}
	assert.Equal(t, a.Identity(), a.Identity())
	assert.NotEqual(t, a.Identity(), b.Identity())
	assert.Len(t, a.Identity(), 64)
}

func TestScenarioContext_Normalize(t *testing.T) {
	s := ScenarioContext{
		UserStory:     "  As a user  ",
		TestingIntent: "Form-Validation",
		TestTypes:     []string{"Negative", "bogus", "negative"},
	}.Normalize()

	assert.Equal(t, "As a user", s.UserStory)
	assert.Equal(t, IntentFormValidation, s.TestingIntent)
	assert.Equal(t, CoverageComprehensive, s.CoverageLevel)
	assert.Equal(t, []string{"negative"}, s.TestTypes)

	empty := ScenarioContext{TestTypes: []string{"unknown"}}.Normalize()
	assert.Equal(t, AllTestTypes, empty.TestTypes)
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("")
	require.NoError(t, err)
	assert.Equal(t, BackendClaude, b)

	b, err = ParseBackend("Gemini")
	require.NoError(t, err)
	assert.Equal(t, BackendGemini, b)

	_, err = ParseBackend("llama")
	assert.Equal(t, ErrCodeUnknownBackend, GetErrorCode(err))
}

func TestGenerationResult_Clone(t *testing.T) {
	orig := &GenerationResult{
		AllTestCases: []TestCase{{Title: "a"}},
		Functional:   []string{"a: ok"},
	}
	c := orig.Clone()
	c.AllTestCases[0].Title = "changed"
	c.Functional[0] = "changed"
	assert.Equal(t, "a", orig.AllTestCases[0].Title)
	assert.Equal(t, "a: ok", orig.Functional[0])
}
