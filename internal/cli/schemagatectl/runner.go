package schemagatectl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	TenantID   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
	ReadFile   func(name string) ([]byte, error)
}

// request is one resolved API call.
type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

type command struct {
	name  string
	args  string
	help  string
	nargs int
	build func(args []string, o Options) (request, error)
}

var commands = []command{
	{name: "health", help: "GET /v1/health", build: fixed(http.MethodGet, "/v1/health")},
	{name: "ready", help: "GET /v1/ready", build: fixed(http.MethodGet, "/v1/ready")},
	{name: "sources", help: "GET /v1/sources", build: fixed(http.MethodGet, "/v1/sources")},
	{name: "source", args: "<id>", nargs: 1, help: "GET /v1/sources/{id}", build: func(args []string, _ Options) (request, error) {
		return request{method: http.MethodGet, path: "/v1/sources/" + url.PathEscape(args[0])}, nil
	}},
	{name: "source-tables", args: "<id>", nargs: 1, help: "GET /v1/sources/{id}/tables", build: func(args []string, _ Options) (request, error) {
		return request{method: http.MethodGet, path: "/v1/sources/" + url.PathEscape(args[0]) + "/tables"}, nil
	}},
	{name: "upload", args: "<file.sql>", nargs: 1, help: "POST /v1/sources", build: buildUpload},
	{name: "delete-source", args: "<id>", nargs: 1, help: "DELETE /v1/sources/{id}", build: func(args []string, _ Options) (request, error) {
		return request{method: http.MethodDelete, path: "/v1/sources/" + url.PathEscape(args[0])}, nil
	}},
	{name: "tables", help: "GET /v1/tables", build: fixed(http.MethodGet, "/v1/tables")},
	{name: "table", args: "<name>", nargs: 1, help: "GET /v1/tables/{table}", build: func(args []string, _ Options) (request, error) {
		return request{method: http.MethodGet, path: "/v1/tables/" + url.PathEscape(args[0])}, nil
	}},
	{name: "schema", args: "[text|markdown]", nargs: -1, help: "GET /v1/schema", build: func(args []string, _ Options) (request, error) {
		req := request{method: http.MethodGet, path: "/v1/schema"}
		if len(args) > 0 {
			req.query = url.Values{"format": {args[0]}}
		}
		return req, nil
	}},
	{name: "documents", args: "<terms...>", nargs: -1, help: "GET /v1/documents", build: func(args []string, _ Options) (request, error) {
		if len(args) == 0 {
			return request{}, fmt.Errorf("documents needs at least one search term")
		}
		return request{method: http.MethodGet, path: "/v1/documents", query: url.Values{"q": {strings.Join(args, " ")}}}, nil
	}},
	{name: "validate", args: "<sql|->", nargs: 1, help: "POST /v1/sql/validate", build: jsonText("/v1/sql/validate", "sql")},
	{name: "format", args: "<sql|->", nargs: 1, help: "POST /v1/sql/format", build: jsonText("/v1/sql/format", "sql")},
	{name: "extract", args: "<file.sql|->", nargs: 1, help: "POST /v1/ddl/extract", build: buildExtract},
	{name: "translate", args: "<prompt|->", nargs: 1, help: "POST /v1/query/translate", build: jsonText("/v1/query/translate", "prompt")},
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	if defaults.Stdin == nil {
		defaults.Stdin = strings.NewReader("")
	}
	if defaults.ReadFile == nil {
		defaults.ReadFile = os.ReadFile
	}

	fs := flag.NewFlagSet("schemagatectl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "schemagate API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	tenantID := fs.String("tenant-id", defaults.TenantID, "Tenant ID header (used when auth is disabled)")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	name := strings.TrimSpace(fs.Arg(0))
	cmd, ok := lookupCommand(name)
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		writeUsage(stderr)
		return 2
	}
	cmdArgs := fs.Args()[1:]
	if cmd.nargs >= 0 && len(cmdArgs) != cmd.nargs {
		_, _ = fmt.Fprintf(stderr, "usage: schemagatectl %s %s\n", cmd.name, cmd.args)
		return 2
	}

	req, err := cmd.build(cmdArgs, defaults)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", cmd.name, err)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}
	code, responseBody, err := doRequest(ctx, client, req, endpoint, *apiKey, *tenantID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func lookupCommand(name string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

func fixed(method, path string) func([]string, Options) (request, error) {
	return func([]string, Options) (request, error) {
		return request{method: method, path: path}, nil
	}
}

// jsonText posts {field: arg}; "-" reads the value from stdin.
func jsonText(path, field string) func([]string, Options) (request, error) {
	return func(args []string, o Options) (request, error) {
		text, err := argOrStdin(args[0], o.Stdin)
		if err != nil {
			return request{}, err
		}
		body, err := json.Marshal(map[string]string{field: text})
		if err != nil {
			return request{}, err
		}
		return request{method: http.MethodPost, path: path, body: body, contentType: "application/json"}, nil
	}
}

func buildUpload(args []string, o Options) (request, error) {
	body, err := o.ReadFile(args[0])
	if err != nil {
		return request{}, fmt.Errorf("read %s: %w", args[0], err)
	}
	return request{
		method:      http.MethodPost,
		path:        "/v1/sources",
		query:       url.Values{"filename": {filepath.Base(args[0])}},
		body:        body,
		contentType: "application/sql",
	}, nil
}

func buildExtract(args []string, o Options) (request, error) {
	var (
		body []byte
		err  error
	)
	if args[0] == "-" {
		body, err = io.ReadAll(o.Stdin)
	} else {
		body, err = o.ReadFile(args[0])
	}
	if err != nil {
		return request{}, fmt.Errorf("read %s: %w", args[0], err)
	}
	return request{method: http.MethodPost, path: "/v1/ddl/extract", body: body, contentType: "application/sql"}, nil
}

func argOrStdin(arg string, stdin io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func doRequest(ctx context.Context, client *http.Client, r request, url, apiKey, tenantID string) (int, []byte, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}
	if strings.TrimSpace(tenantID) != "" {
		req.Header.Set("X-Tenant-ID", strings.TrimSpace(tenantID))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: schemagatectl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	for _, cmd := range commands {
		_, _ = fmt.Fprintf(w, "  %-30s %s\n", strings.TrimSpace(cmd.name+" "+cmd.args), cmd.help)
	}
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
