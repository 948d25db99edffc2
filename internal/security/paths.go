// Package security provides shared validation for user-supplied paths and
// origins.
package security

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ResolveInRoot joins rel onto root and rejects results outside root.
// Config files name templates relative to the served directory; absolute
// paths and ".." escapes are refused.
func ResolveInRoot(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path must not be empty")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %q must be relative to the served directory", rel)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root: %w", err)
	}

	joined := filepath.Join(absRoot, rel)
	relToRoot, err := filepath.Rel(absRoot, joined)
	if err != nil || relToRoot == ".." || strings.HasPrefix(relToRoot, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the served directory", rel)
	}
	return joined, nil
}

// ValidateOrigin checks a CORS origin: either "*" or a bare scheme://host[:port].
func ValidateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin: %w", err)
	}

	// Only allow http and https schemes
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("origin scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("origin must have a host")
	}
	if (parsed.Path != "" && parsed.Path != "/") || parsed.RawQuery != "" || parsed.Fragment != "" {
		return fmt.Errorf("origin %q must not have a path, query or fragment", origin)
	}
	return nil
}
