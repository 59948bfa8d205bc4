package pack

import (
	"fmt"
	"sort"
)

// Selection policy markers reported as selected_by.
const (
	SelectedByExactID         = "exact_id"
	SelectedByUniqueName      = "unique_name"
	SelectedByLatestFinalized = "latest_finalized"
	SelectedByLatestDraft     = "latest_draft"
	SelectedByHighestRevision = "highest_revision"
)

// Selection is a resolved pack and the rule that picked it.
type Selection struct {
	Pack       *Pack
	SelectedBy string
}

func statusTier(s Status) int {
	if s == StatusFinalized {
		return 1
	}
	return 0
}

// ResolveName picks exactly one pack among candidates sharing name. Candidates are ranked
// by status tier (finalized first), then updated_at, then revision. A full tie at the top
// fails with ambiguous and lists every tied id.
func ResolveName(name string, candidates []*Pack) (*Selection, error) {
	if len(candidates) == 0 {
		return nil, NotFound("pack '%s' not found", name)
	}
	if len(candidates) == 1 {
		return &Selection{Pack: candidates[0], SelectedBy: SelectedByUniqueName}, nil
	}

	ranked := append([]*Pack{}, candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if ta, tb := statusTier(a.Status), statusTier(b.Status); ta != tb {
			return ta > tb
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if a.Revision != b.Revision {
			return a.Revision > b.Revision
		}
		return a.ID < b.ID
	})

	top, next := ranked[0], ranked[1]
	switch {
	case statusTier(top.Status) != statusTier(next.Status), !top.UpdatedAt.Equal(next.UpdatedAt):
		by := SelectedByLatestDraft
		if top.Status == StatusFinalized {
			by = SelectedByLatestFinalized
		}
		return &Selection{Pack: top, SelectedBy: by}, nil
	case top.Revision != next.Revision:
		return &Selection{Pack: top, SelectedBy: SelectedByHighestRevision}, nil
	}

	var tied []string
	for _, p := range ranked {
		if statusTier(p.Status) == statusTier(top.Status) && p.UpdatedAt.Equal(top.UpdatedAt) && p.Revision == top.Revision {
			tied = append(tied, p.ID)
		}
	}
	return nil, &Error{
		Kind:    KindConflict,
		Code:    CodeAmbiguous,
		Message: fmt.Sprintf("name '%s' matches %d packs with identical rank; retry with an exact id", name, len(tied)),
		Details: AmbiguousDetails{Name: name, CandidateIDs: tied},
	}
}
