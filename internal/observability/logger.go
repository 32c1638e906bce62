package observability

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/duckmesh/schemagate/internal/config"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

const (
	redacted       = "***"
	maxLoggedQuery = 100
)

var (
	apiKeyAssignment = regexp.MustCompile(`(?i)(api[_-]?key["']?\s*[:=]\s*["']?)[^"'\s,;}&]+`)
	sensitiveKeys    = map[string]struct{}{
		"api_key":       {},
		"apikey":        {},
		"authorization": {},
		"secret":        {},
		"password":      {},
	}
	truncatedKeys = map[string]string{
		"sql": "... [SQL truncated]",
		"ddl": "... [DDL truncated]",
	}
)

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel, ReplaceAttr: RedactAttr}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

// RedactAttr masks credentials and shortens SQL and DDL text before a
// record is written. It is meant for slog.HandlerOptions.ReplaceAttr.
func RedactAttr(_ []string, attr slog.Attr) slog.Attr {
	key := strings.ToLower(attr.Key)
	if _, ok := sensitiveKeys[key]; ok {
		return slog.String(attr.Key, redacted)
	}
	if attr.Value.Kind() != slog.KindString {
		return attr
	}
	value := RedactString(attr.Value.String())
	if suffix, ok := truncatedKeys[key]; ok && len(value) > maxLoggedQuery {
		value = value[:maxLoggedQuery] + suffix
	}
	return slog.String(attr.Key, value)
}

// RedactString replaces the value of any api_key=... style assignment.
func RedactString(value string) string {
	if !strings.Contains(strings.ToLower(value), "key") {
		return value
	}
	return apiKeyAssignment.ReplaceAllString(value, "${1}"+redacted)
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}
