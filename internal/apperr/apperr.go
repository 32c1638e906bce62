// Package apperr turns internal failures into user-facing messages with a
// remediation hint. The technical error stays in the logs.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/duckmesh/schemagate/internal/catalog"
	"github.com/duckmesh/schemagate/internal/ddl"
)

type Kind string

const (
	KindDDLParse         Kind = "ddl_parse_error"
	KindLLMAPI           Kind = "llm_api_error"
	KindNetwork          Kind = "network_error"
	KindValidation       Kind = "validation_error"
	KindResourceNotReady Kind = "resource_not_ready"
	KindTimeout          Kind = "timeout_error"
	KindUnknown          Kind = "unknown_error"
)

// Error tags an error with a Kind. Line is the 1-based DDL line of a parse
// failure when known.
type Error struct {
	Kind Kind
	Line int
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Friendly is what a client sees instead of the raw error.
type Friendly struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

var templates = map[Kind]Friendly{
	KindDDLParse: {
		Message:    "The DDL file could not be parsed; its format may be incorrect",
		Suggestion: "Check that the file is standard SQL DDL, that it contains CREATE TABLE statements, and that the syntax follows MySQL or PostgreSQL",
	},
	KindLLMAPI: {
		Message:    "The AI service is temporarily unavailable",
		Suggestion: "Retry in a minute or two. If it keeps failing, ask an administrator to check the AI provider configuration",
	},
	KindNetwork: {
		Message:    "A network connection failed",
		Suggestion: "Check network connectivity and firewall rules, then retry",
	},
	KindValidation: {
		Message:    "The generated SQL did not pass validation",
		Suggestion: "Describe the request more precisely, make sure the uploaded DDL contains the tables and columns you need, or simplify the query",
	},
	KindResourceNotReady: {
		Message:    "The schema is not ready yet",
		Suggestion: "Uploaded DDL is still being parsed; retry in a few seconds",
	},
	KindTimeout: {
		Message:    "The operation timed out",
		Suggestion: "Simplify the request or retry later",
	},
	KindUnknown: {
		Message:    "An unexpected error occurred",
		Suggestion: "Retry later. If the problem persists, contact support",
	},
}

// Describe returns the friendly message for err, classifying it first.
func Describe(err error) Friendly {
	kind := Classify(err)
	friendly := Template(kind)

	var tagged *Error
	if kind == KindDDLParse && errors.As(err, &tagged) && tagged.Line > 0 {
		friendly.Message = fmt.Sprintf("The DDL file could not be parsed: syntax error on line %d", tagged.Line)
	}
	return friendly
}

func Template(kind Kind) Friendly {
	friendly, ok := templates[kind]
	if !ok {
		friendly = templates[KindUnknown]
		kind = KindUnknown
	}
	friendly.Kind = kind
	return friendly
}

// Classify prefers an explicit Kind, then known sentinels, then keywords in
// the error text.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	switch {
	case errors.Is(err, ddl.ErrNoTables):
		return KindDDLParse
	case errors.Is(err, catalog.ErrSourceNotReady):
		return KindResourceNotReady
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	text := strings.ToLower(err.Error())
	switch {
	case containsAny(text, "parse", "syntax", "ddl"):
		return KindDDLParse
	case containsAny(text, "api", "openai", "rate limit"):
		return KindLLMAPI
	case containsAny(text, "network", "connection", "timeout"):
		return KindNetwork
	case containsAny(text, "validation", "invalid"):
		return KindValidation
	}
	return KindUnknown
}

func containsAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
