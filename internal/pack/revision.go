package pack

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ChangedKeysLimit bounds changed_section_keys in conflict details.
const ChangedKeysLimit = 12

// CheckRevision is the optimistic concurrency guard. It accepts the write when the stored
// revision equals expected. Otherwise it reports the section keys that differ between the
// stored pack and the attempted one.
func CheckRevision(current, attempted *Pack, expected int64) error {
	if current.Revision == expected {
		return nil
	}
	var changed []string
	if attempted != nil {
		changed = ChangedSectionKeys(current, attempted)
	}
	if changed == nil {
		changed = []string{}
	}
	details := ConflictDetails{
		ExpectedRevision:   expected,
		CurrentRevision:    current.Revision,
		LastUpdatedAt:      current.UpdatedAt.UTC().Format(time.RFC3339),
		ChangedSectionKeys: changed,
		Guidance:           conflictGuidance(current.Revision),
	}
	return &Error{
		Kind: KindConflict,
		Code: CodeRevisionConflict,
		Message: fmt.Sprintf("revision conflict: expected %d, current %d; %s",
			expected, current.Revision, details.Guidance),
		Details: details,
	}
}

func conflictGuidance(current int64) string {
	return fmt.Sprintf("re-read latest pack via get, merge intent, retry with expected_revision=%d", current)
}

// ChangedSectionKeys returns the sorted keys of sections that were added, removed or
// modified between a and b, at most ChangedKeysLimit of them.
func ChangedSectionKeys(a, b *Pack) []string {
	left := sectionFingerprints(a)
	right := sectionFingerprints(b)
	set := make(map[string]bool)
	for k, v := range left {
		if right[k] != v {
			set[k] = true
		}
	}
	for k, v := range right {
		if left[k] != v {
			set[k] = true
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > ChangedKeysLimit {
		keys = keys[:ChangedKeysLimit]
	}
	return keys
}

func sectionFingerprints(p *Pack) map[string]string {
	out := make(map[string]string, len(p.Sections))
	for _, s := range p.Sections {
		data, _ := json.Marshal(s)
		out[s.Key] = string(data)
	}
	return out
}
