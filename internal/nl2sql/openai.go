package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type OpenAITranslator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewOpenAITranslator(cfg OpenAIConfig) (*OpenAITranslator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAITranslator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(buildOpenAIPayload(t.model, t.temperature, req))
	if err != nil {
		return Result{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("chat completion api failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("empty chat completion choices")
	}

	content := parsed.Choices[0].Message.Content
	sql, explanation := ExtractSQL(content)
	return Result{
		SQL:         sql,
		Explanation: explanation,
		Raw:         content,
		Provider:    "openai-compatible",
		Model:       t.model,
	}, nil
}

func buildOpenAIPayload(model string, temperature float64, req Request) map[string]any {
	return map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": SystemPrompt(req.SchemaContext)},
			{"role": "user", "content": UserPrompt(req.NaturalLanguage)},
		},
		"temperature": temperature,
	}
}

// SystemPrompt embeds the schema listing and the output rules.
func SystemPrompt(schemaContext string) string {
	schemaContext = strings.TrimSpace(schemaContext)
	if schemaContext == "" {
		schemaContext = "(no tables have been uploaded yet)"
	}
	return "You are a SQL generation assistant. Turn the user's request into one correct SQL statement.\n\n" +
		"## Database schema\n\n" + schemaContext + "\n\n" +
		"## Rules\n" +
		"1. Use only the tables and columns listed above.\n" +
		"2. The SQL must be syntactically valid and directly executable.\n" +
		"3. The SQL must fully answer the request.\n" +
		"4. Use explicit JOIN ... ON conditions, list columns instead of *, and add WHERE conditions where they belong.\n" +
		"5. Return the SQL in a ```sql block. You may add a short explanation after the block.\n"
}

func UserPrompt(naturalLanguage string) string {
	return "Request: " + strings.TrimSpace(naturalLanguage) + "\n\nGenerate the SQL statement."
}
