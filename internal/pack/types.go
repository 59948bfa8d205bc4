package pack

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// CurrentSchemaVersion is the persisted record version this binary reads and writes.
const CurrentSchemaVersion = 2

const (
	// MaxRefLineSpan bounds the number of lines a single ref may cover.
	MaxRefLineSpan = 2000
	// MaxTTLMinutes is five years.
	MaxTTLMinutes = 5 * 365 * 24 * 60
	// MaxPathLength bounds ref paths.
	MaxPathLength = 1024
	// MaxTags bounds the tag list of a pack.
	MaxTags = 32

	minNameLength = 3
	maxNameLength = 120
)

var (
	keyPattern  = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,63}$`)
	namePattern = regexp.MustCompile(`^[A-Za-z0-9._ -]+$`)
)

// Status is the lifecycle state of a pack.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusFinalized Status = "finalized"
)

// ParseStatus parses a status value from a request.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.TrimSpace(raw)) {
	case StatusDraft:
		return StatusDraft, nil
	case StatusFinalized:
		return StatusFinalized, nil
	default:
		return "", Validation("'status' must be one of: draft, finalized (got %q)", raw)
	}
}

// Profile is a named rendering shape.
type Profile string

const (
	ProfileOrchestrator Profile = "orchestrator"
	ProfileReviewer     Profile = "reviewer"
	ProfileExecutor     Profile = "executor"
)

// ParseProfile parses a profile name. The empty string selects the orchestrator profile.
func ParseProfile(raw string) (Profile, error) {
	switch Profile(strings.TrimSpace(raw)) {
	case "", ProfileOrchestrator:
		return ProfileOrchestrator, nil
	case ProfileReviewer:
		return ProfileReviewer, nil
	case ProfileExecutor:
		return ProfileExecutor, nil
	default:
		return "", Validation("'profile' must be one of: orchestrator, reviewer, executor (got %q)", raw)
	}
}

// Compact reports whether the profile omits excerpt bodies and adds a handoff summary.
func (p Profile) Compact() bool {
	return p != ProfileReviewer
}

// DefaultLimit is the page size used when the caller does not supply one. Zero means unlimited.
func (p Profile) DefaultLimit() int {
	switch p {
	case ProfileOrchestrator:
		return 6
	case ProfileExecutor:
		return 12
	default:
		return 0
	}
}

// ValidateKey checks a section, ref or diagram key.
func ValidateKey(field, key string) error {
	if !keyPattern.MatchString(key) {
		return Validation("'%s' must match ^[a-z0-9][a-z0-9_-]{1,63}$ (got %q)", field, key)
	}
	return nil
}

// NormalizeName trims and validates a human pack name.
func NormalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	n := len([]rune(name))
	if n < minNameLength || n > maxNameLength {
		return "", Validation("'name' must be %d..%d characters (got %d)", minNameLength, maxNameLength, n)
	}
	if !namePattern.MatchString(name) {
		return "", Validation("'name' may only contain letters, digits, '.', '_', '-' and spaces")
	}
	if IsPackID(name) {
		return "", Validation("'name' must not look like a pack id: %s", name)
	}
	return name, nil
}

// NormalizePath cleans a ref path and rejects anything that could leave the source root.
func NormalizePath(raw string) (string, error) {
	p := strings.TrimSpace(strings.ReplaceAll(raw, `\`, "/"))
	if p == "" {
		return "", Validation("'path' is required")
	}
	if len(p) > MaxPathLength {
		return "", Validation("'path' is too long (max %d characters)", MaxPathLength)
	}
	if strings.HasPrefix(p, "/") || (len(p) > 1 && p[1] == ':') {
		return "", Validation("'path' must be relative to the source root: %s", raw)
	}
	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return "", Validation("'path' must not contain '..': %s", raw)
		}
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", Validation("'path' must name a file: %s", raw)
	}
	return cleaned, nil
}

// ValidateLines checks a 1-indexed inclusive line range.
func ValidateLines(start, end int) error {
	if start < 1 {
		return Validation("'line_start' must be >= 1 (got %d)", start)
	}
	if end < start {
		return Validation("'line_end' must be >= line_start (got %d < %d)", end, start)
	}
	if span := end - start + 1; span > MaxRefLineSpan {
		return Validation("line range spans %d lines (max %d)", span, MaxRefLineSpan)
	}
	return nil
}

// ValidateTTL checks a ttl or extension in minutes.
func ValidateTTL(field string, minutes int64) error {
	if minutes < 1 {
		return Validation("'%s' must be >= 1", field)
	}
	if minutes > MaxTTLMinutes {
		return Validation("'%s' is too large (max 5 years)", field)
	}
	return nil
}

// NormalizeTags trims tags, drops empty ones and removes duplicates while keeping order.
func NormalizeTags(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) > MaxTags {
		return nil, Validation("too many tags: %d (max %d)", len(out), MaxTags)
	}
	return out, nil
}

func describeRange(start, end int) string {
	return fmt.Sprintf("%d-%d", start, end)
}
