package nl2sql

import "context"

type Request struct {
	TenantID        string `json:"tenant_id"`
	NaturalLanguage string `json:"natural_language"`
	// SchemaContext is the rendered table listing given to the model.
	SchemaContext string `json:"schema_context"`
}

// Result is a model reply split into SQL and explanation. SQL is empty when
// nothing SQL-like could be extracted; Raw keeps the full reply.
type Result struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
	Raw         string `json:"raw"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
