package pack

import (
	"fmt"
	"strings"
	"time"
)

// Freshness is the TTL-derived state of a pack at a point in time.
type Freshness string

const (
	FreshnessFresh        Freshness = "fresh"
	FreshnessExpiringSoon Freshness = "expiring_soon"
	FreshnessExpired      Freshness = "expired"
	// FreshnessUnavailable is never surfaced; the pack behaves as not found and is purged.
	FreshnessUnavailable Freshness = "unavailable"
)

const (
	// DefaultExpiringSoonWindow is the fixed lookahead before expires_at.
	DefaultExpiringSoonWindow = 15 * time.Minute
	// DefaultExpiredGrace is how long an expired pack stays readable.
	DefaultExpiredGrace = 900 * time.Second
)

// ParseFreshnessFilter parses a list filter. Only surfaced states are accepted.
func ParseFreshnessFilter(raw string) (Freshness, error) {
	switch Freshness(strings.TrimSpace(raw)) {
	case FreshnessFresh:
		return FreshnessFresh, nil
	case FreshnessExpiringSoon:
		return FreshnessExpiringSoon, nil
	case FreshnessExpired:
		return FreshnessExpired, nil
	default:
		return "", Validation("'freshness' must be one of: fresh, expiring_soon, expired (got %q)", raw)
	}
}

// Warning is the legend warning for the state, empty when fresh.
func (f Freshness) Warning() string {
	switch f {
	case FreshnessExpiringSoon:
		return "expiring soon - refresh or extend ttl"
	case FreshnessExpired:
		return "expired - treat as stale evidence"
	default:
		return ""
	}
}

// FreshnessPolicy computes freshness from expires_at and now.
type FreshnessPolicy struct {
	ExpiringSoon time.Duration
	Grace        time.Duration
}

// DefaultFreshnessPolicy uses a 15 minute lookahead and a 900 second grace window.
func DefaultFreshnessPolicy() FreshnessPolicy {
	return FreshnessPolicy{ExpiringSoon: DefaultExpiringSoonWindow, Grace: DefaultExpiredGrace}
}

// State returns the freshness of p at now.
func (f FreshnessPolicy) State(p *Pack, now time.Time) Freshness {
	remaining := p.ExpiresAt.Sub(now)
	switch {
	case remaining > f.ExpiringSoon:
		return FreshnessFresh
	case remaining > 0:
		return FreshnessExpiringSoon
	case now.Before(p.ExpiresAt.Add(f.Grace)):
		return FreshnessExpired
	default:
		return FreshnessUnavailable
	}
}

// Visible reports whether a pack in state s passes a list filter. The zero filter
// selects fresh and expiring_soon packs.
func (s Freshness) Visible(filter Freshness) bool {
	if s == FreshnessUnavailable {
		return false
	}
	if filter == "" {
		return s == FreshnessFresh || s == FreshnessExpiringSoon
	}
	return s == filter
}

// TTLRemaining is the time left before expiry, never negative.
func TTLRemaining(p *Pack, now time.Time) time.Duration {
	if d := p.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// HumanTTL formats a remaining duration as expired, <1m, Nm, Nh or Nd.
func HumanTTL(d time.Duration) string {
	seconds := int64(d / time.Second)
	switch {
	case seconds <= 0:
		return "expired"
	case seconds < 60:
		return "<1m"
	}
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dd", hours/24)
}
