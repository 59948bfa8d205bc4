package pack

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sections a pack must carry before it can be finalized.
const (
	SectionScope    = "scope"
	SectionFindings = "findings"
	SectionQA       = "qa"
)

// ValidateForFinalize checks that p is complete enough to finalize. Every violation is
// collected. Only excerpt failures other than stale refs abort the check early.
func ValidateForFinalize(ctx context.Context, p *Pack, excerpter Excerpter) error {
	details := FinalizeDetails{
		MissingSections: []string{},
		MissingFields:   []string{},
		InvalidRefs:     []RefIssue{},
	}

	for _, key := range []string{SectionScope, SectionFindings} {
		if s, ok := p.Section(key); !ok || !s.HasSubstance() {
			details.MissingSections = append(details.MissingSections, key)
		}
	}
	if qa, ok := p.Section(SectionQA); !ok {
		details.MissingSections = append(details.MissingSections, SectionQA)
	} else if strings.TrimSpace(qa.Verdict) == "" {
		details.MissingFields = append(details.MissingFields, SectionQA+".verdict")
	}

	for _, s := range p.Sections {
		for _, r := range s.Refs {
			_, err := excerpter.ReadLines(ctx, r.Path, r.LineStart, r.LineEnd)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrStaleRef) {
				return err
			}
			details.InvalidRefs = append(details.InvalidRefs, RefIssue{
				SectionKey: s.Key,
				RefKey:     r.Key,
				Path:       r.Path,
				LineStart:  r.LineStart,
				LineEnd:    r.LineEnd,
				Reason:     AsError(err).Message,
			})
		}
	}

	if len(details.MissingSections) == 0 && len(details.MissingFields) == 0 && len(details.InvalidRefs) == 0 {
		return nil
	}

	var parts []string
	if len(details.MissingSections) > 0 {
		parts = append(parts, "missing sections: "+strings.Join(details.MissingSections, ", "))
	}
	if len(details.MissingFields) > 0 {
		parts = append(parts, "missing fields: "+strings.Join(details.MissingFields, ", "))
	}
	if len(details.InvalidRefs) > 0 {
		parts = append(parts, fmt.Sprintf("%d stale ref(s)", len(details.InvalidRefs)))
	}

	kind := KindInvalidState
	if len(details.MissingSections) == 0 && len(details.MissingFields) == 0 {
		kind = KindStaleRef
	}
	return &Error{
		Kind:    kind,
		Code:    CodeFinalizeValidation,
		Message: "cannot finalize pack " + p.ID + ": " + strings.Join(parts, "; "),
		Details: details,
	}
}
