package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testforge/casegen/internal/llm"
)

func TestLoadScreenshots(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"02_checkout.PNG": "b",
		"01_cart.jpg":     "a",
		"notes.txt":       "ignored",
		"03-confirm.webp": "c",
	}
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o755))

	shots, err := loadScreenshots(dir)
	require.NoError(t, err)
	require.Len(t, shots, 3)

	assert.Equal(t, "01_cart.jpg", shots[0].Name)
	assert.Equal(t, "image/jpeg", shots[0].MimeType)
	assert.Equal(t, []byte("a"), shots[0].Data)
	assert.Equal(t, "02_checkout.PNG", shots[1].Name)
	assert.Equal(t, "image/png", shots[1].MimeType)
	assert.Equal(t, "image/webp", shots[2].MimeType)
}

func TestLoadScreenshots_Bounds(t *testing.T) {
	empty := t.TempDir()
	_, err := loadScreenshots(empty)
	assert.ErrorContains(t, err, "no images found")

	many := t.TempDir()
	for i := 0; i < 26; i++ {
		name := filepath.Join(many, string(rune('a'+i))+".png")
		require.NoError(t, os.WriteFile(name, []byte{1}, 0o644))
	}
	_, err = loadScreenshots(many)
	assert.ErrorContains(t, err, "at most 25")

	_, err = loadScreenshots(filepath.Join(empty, "missing"))
	assert.Error(t, err)
}

func TestClaudeUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"m1","model":"claude","stop_reason":"end_turn",` +
			`"content":[{"type":"text","text":"{}"}],"usage":{"input_tokens":1000,"output_tokens":200}}`))
	}))
	defer server.Close()

	assert.Empty(t, claudeUsage(llm.NewRegistry()), "claude not configured")

	claude, err := llm.NewClaudeClient(llm.Config{APIKey: "k", BaseURL: server.URL}, nil)
	require.NoError(t, err)
	registry := llm.NewRegistry(claude)
	assert.Empty(t, claudeUsage(registry), "no requests yet")

	_, err = claude.Complete(context.Background(), llm.Prompt{User: "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Claude:   1 request(s), 1000 in / 200 out tokens, ~$0.0060", claudeUsage(registry))
}
