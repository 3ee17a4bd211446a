package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSDKGeneratorSendsPromptAndHeaders(t *testing.T) {
	t.Parallel()

	var (
		gotPath    string
		gotAuth    string
		gotReferer string
		gotBody    map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotReferer = r.Header.Get("HTTP-Referer")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "gen-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "test/model",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "  Olá!  "}}]
		}`))
	}))
	defer srv.Close()

	maxTokens := 120
	gen, err := NewSDKGenerator(Config{
		BaseURL:            srv.URL,
		APIKey:             "key",
		Model:              "test/model",
		MaxCompletionToken: &maxTokens,
		Temperature:        0.3,
		SiteURL:            "https://relay.example",
	})
	if err != nil {
		t.Fatalf("NewSDKGenerator() error = %v", err)
	}

	out, err := gen.Generate(context.Background(), "diga olá")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "Olá!" {
		t.Fatalf("Generate() = %q, want trimmed content", out)
	}
	if gotPath != "/chat/completions" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer key" || gotReferer != "https://relay.example" {
		t.Fatalf("headers auth=%q referer=%q", gotAuth, gotReferer)
	}
	if gotBody["model"] != "test/model" {
		t.Fatalf("model = %v", gotBody["model"])
	}
}

func TestSDKGeneratorRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewSDKGenerator(Config{Model: "m"}); err == nil {
		t.Fatal("NewSDKGenerator() error = nil, want missing key error")
	}
	if NewClient(Config{}) != nil {
		t.Fatal("NewClient() without key should be nil")
	}
}
