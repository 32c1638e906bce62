package nl2sql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewOpenAITranslatorRequiresKey(t *testing.T) {
	if _, err := NewOpenAITranslator(OpenAIConfig{BaseURL: "https://api.example.com"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestOpenAITranslatorSendsSchemaAndExtractsSQL(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]string{"content": "```sql\nSELECT id FROM users;\n```\nLists user ids."},
			}},
		})
	}))
	defer server.Close()

	translator, err := NewOpenAITranslator(OpenAIConfig{BaseURL: server.URL + "/", APIKey: "k", Model: "m1"})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}
	result, err := translator.Translate(context.Background(), Request{
		TenantID:        "tenant-1",
		NaturalLanguage: "all user ids",
		SchemaContext:   "TABLE users (PK: id)\n  id: INT PRIMARY KEY",
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT id FROM users;" || result.Explanation != "Lists user ids." {
		t.Fatalf("result = %#v", result)
	}
	if result.Model != "m1" || result.Provider != "openai-compatible" {
		t.Fatalf("result = %#v", result)
	}

	messages, _ := captured["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %#v", captured["messages"])
	}
	system, _ := messages[0].(map[string]any)
	if content, _ := system["content"].(string); !strings.Contains(content, "TABLE users (PK: id)") {
		t.Fatalf("system prompt missing schema: %q", content)
	}
}

func TestOpenAITranslatorReportsAPIFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	translator, err := NewOpenAITranslator(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAITranslator() error = %v", err)
	}
	_, err = translator.Translate(context.Background(), Request{NaturalLanguage: "x"})
	if err == nil || !strings.Contains(err.Error(), "status=429") {
		t.Fatalf("Translate() error = %v", err)
	}
}

func TestSystemPromptWithoutSchema(t *testing.T) {
	if !strings.Contains(SystemPrompt("  "), "no tables have been uploaded yet") {
		t.Fatal("expected placeholder for empty schema")
	}
}
