package nl2sql

import "strings"

const fence = "```"

var sqlLineKeywords = []string{"SELECT", "INSERT", "UPDATE", "DELETE", "FROM", "WHERE"}

// ExtractSQL pulls SQL and an explanation out of a model reply. A ```sql
// block wins, then any fenced block; text after the closing fence is the
// explanation. Without fences, lines containing SQL keywords are the SQL and
// "--" lines, plus prose before the first SQL line, are the explanation.
func ExtractSQL(response string) (string, string) {
	if start := sqlFenceIndex(response); start >= 0 {
		if sql, rest, ok := fencedBody(response[start+len(fence)+3:]); ok {
			return sql, rest
		}
	}
	if start := strings.Index(response, fence); start >= 0 {
		if sql, rest, ok := fencedBody(response[start+len(fence):]); ok {
			return dropLanguageTag(sql), rest
		}
	}
	return extractLines(response)
}

func fencedBody(after string) (string, string, bool) {
	end := strings.Index(after, fence)
	if end < 0 {
		return "", "", false
	}
	return strings.TrimSpace(after[:end]), strings.TrimSpace(after[end+len(fence):]), true
}

// dropLanguageTag removes an info string such as "postgresql" left on the
// first line of a plain fenced block.
func dropLanguageTag(body string) string {
	first, rest, found := strings.Cut(body, "\n")
	if !found || strings.ContainsAny(first, " \t;(") || first == "" {
		return body
	}
	if containsSQLKeyword(first) {
		return body
	}
	return strings.TrimSpace(rest)
}

func extractLines(response string) (string, string) {
	var sqlLines, explanation []string
	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		stripped := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(stripped, "--"):
			explanation = append(explanation, strings.TrimSpace(stripped[2:]))
		case containsSQLKeyword(stripped):
			sqlLines = append(sqlLines, line)
		case stripped != "" && len(sqlLines) == 0:
			explanation = append(explanation, stripped)
		}
	}
	return strings.TrimSpace(strings.Join(sqlLines, "\n")), strings.TrimSpace(strings.Join(explanation, "\n"))
}

func containsSQLKeyword(line string) bool {
	upper := strings.ToUpper(line)
	for _, keyword := range sqlLineKeywords {
		if strings.Contains(upper, keyword) {
			return true
		}
	}
	return false
}

func sqlFenceIndex(s string) int {
	offset := 0
	for {
		i := strings.Index(s[offset:], fence)
		if i < 0 {
			return -1
		}
		pos := offset + i
		tag := s[pos+len(fence):]
		if len(tag) >= 3 && strings.EqualFold(tag[:3], "sql") {
			return pos
		}
		offset = pos + len(fence)
	}
}
