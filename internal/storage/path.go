package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var (
	pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
	unsafeFilenameChars  = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// BuildSourceObjectPath returns the key of an uploaded DDL file:
// <tenant>/sources/<source_id>/<filename>.
func BuildSourceObjectPath(tenantID, sourceID, filename string) (string, error) {
	if err := validatePathComponent(tenantID, "tenant id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(sourceID, "source id"); err != nil {
		return "", err
	}
	name := SanitizeFilename(filename)
	if err := validatePathComponent(name, "filename"); err != nil {
		return "", err
	}
	return path.Join(tenantID, "sources", sourceID, name), nil
}

// SanitizeFilename drops any directory part and replaces characters that
// are not safe in an object key with '_'.
func SanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	if base == "." || base == "/" {
		return ""
	}
	base = unsafeFilenameChars.ReplaceAllString(base, "_")
	return strings.TrimLeft(base, "._-")
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

// SourceObjectKey is the parsed form of a source object path.
type SourceObjectKey struct {
	TenantID string
	SourceID string
	Filename string
}

// ParseSourceObjectPath splits a key built by BuildSourceObjectPath. Keys of
// any other shape are rejected.
func ParseSourceObjectPath(key string) (SourceObjectKey, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[1] != "sources" {
		return SourceObjectKey{}, fmt.Errorf("invalid source object path: %q", key)
	}
	parsed := SourceObjectKey{TenantID: parts[0], SourceID: parts[2], Filename: parts[3]}
	for _, check := range []struct{ value, field string }{
		{parsed.TenantID, "tenant id"},
		{parsed.SourceID, "source id"},
		{parsed.Filename, "filename"},
	} {
		if err := validatePathComponent(check.value, check.field); err != nil {
			return SourceObjectKey{}, err
		}
	}
	return parsed, nil
}
