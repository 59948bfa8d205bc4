package excerpt

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"
)

// DenyFileName is an optional file in the source root listing extra deny patterns.
const DenyFileName = ".ctxpackdeny"

// denyPattern is a parsed deny pattern with its matching strategy.
type denyPattern struct {
	pattern   string
	matchPath bool // true = match against relative path prefixes; false = match against each segment
}

// DenyMatcher checks source paths against a set of deny patterns.
// Patterns without '/' match any single path segment, so "*.pem" denies "certs/a.pem".
// Patterns with '/' match the relative path or any of its leading directories, so
// ".git/*" denies ".git/objects/ab/cd".
type DenyMatcher struct {
	patterns []denyPattern
}

// NewDenyMatcher creates a DenyMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewDenyMatcher(rawPatterns []string) *DenyMatcher {
	var patterns []denyPattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		raw = strings.TrimPrefix(raw, "/")
		patterns = append(patterns, denyPattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &DenyMatcher{patterns: patterns}
}

// Match reports whether the slash-separated relative path is denied.
func (m *DenyMatcher) Match(relativePath string) bool {
	if len(m.patterns) == 0 {
		return false
	}
	segments := strings.Split(relativePath, "/")

	for _, p := range m.patterns {
		if p.matchPath {
			for i := 1; i <= len(segments); i++ {
				if ok, err := path.Match(p.pattern, strings.Join(segments[:i], "/")); err == nil && ok {
					return true
				}
			}
			continue
		}
		for _, segment := range segments {
			// A bad pattern never matches.
			if ok, err := path.Match(p.pattern, segment); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// ParseDenyFile reads a deny file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseDenyFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening deny file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading deny file: %w", err)
	}
	return patterns, nil
}
