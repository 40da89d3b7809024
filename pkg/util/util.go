package util

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// MatchesIgnore reports whether relPath matches any doublestar pattern.
// Patterns without a '/' match the base name at any depth; a trailing '/'
// matches the directory and everything below it.
func MatchesIgnore(patterns []string, relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	if relPath == "" || relPath == "." {
		return false
	}
	base := relPath[strings.LastIndex(relPath, "/")+1:]
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(filepath.ToSlash(pattern))
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}
		if strings.HasSuffix(pattern, "/") {
			pattern += "**"
		}
		pattern = strings.TrimPrefix(pattern, "/")
		if !strings.Contains(pattern, "/") {
			if ok, _ := doublestar.Match(pattern, base); ok {
				return true
			}
			continue
		}
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
		// a directory pattern also excludes the directory entry itself
		if strings.HasSuffix(pattern, "/**") {
			if ok, _ := doublestar.Match(strings.TrimSuffix(pattern, "/**"), relPath); ok {
				return true
			}
		}
	}
	return false
}

// InvalidPatterns returns the patterns doublestar rejects as malformed.
func InvalidPatterns(patterns []string) (invalid []string) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(filepath.ToSlash(strings.TrimSpace(p))) {
			invalid = append(invalid, p)
		}
	}
	return invalid
}
