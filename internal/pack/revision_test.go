package pack

import (
	"errors"
	"fmt"
	"testing"
)

func TestCheckRevision(t *testing.T) {
	t.Run("matching revision passes", func(t *testing.T) {
		p := newTestPack("pk_aaaaaaaa")
		if err := CheckRevision(p, nil, 1); err != nil {
			t.Fatalf("CheckRevision() error = %v", err)
		}
	})

	t.Run("stale revision reports changed sections", func(t *testing.T) {
		current := newTestPack("pk_aaaaaaaa")
		current.Revision = 3
		current.upsertSection("scope", "Scope", nil, nil, nil)
		current.upsertSection("findings", "Findings", nil, nil, nil)

		attempted := current.Clone()
		desc := "changed"
		attempted.upsertSection("findings", "Findings", &desc, nil, nil)
		attempted.upsertSection("qa", "QA", nil, nil, nil)

		err := CheckRevision(current, attempted, 2)
		if !errors.Is(err, ErrRevisionConflict) {
			t.Fatalf("CheckRevision() error = %v, want revision_conflict", err)
		}
		details := AsError(err).Details.(ConflictDetails)
		if details.ExpectedRevision != 2 || details.CurrentRevision != 3 {
			t.Errorf("details revisions = %d/%d", details.ExpectedRevision, details.CurrentRevision)
		}
		if fmt.Sprint(details.ChangedSectionKeys) != "[findings qa]" {
			t.Errorf("ChangedSectionKeys = %v", details.ChangedSectionKeys)
		}
		if details.Guidance != "re-read latest pack via get, merge intent, retry with expected_revision=3" {
			t.Errorf("Guidance = %q", details.Guidance)
		}
	})

	t.Run("without an attempted pack changed keys are empty", func(t *testing.T) {
		current := newTestPack("pk_aaaaaaaa")
		current.Revision = 5
		details := AsError(CheckRevision(current, nil, 1)).Details.(ConflictDetails)
		if details.ChangedSectionKeys == nil || len(details.ChangedSectionKeys) != 0 {
			t.Errorf("ChangedSectionKeys = %#v, want empty slice", details.ChangedSectionKeys)
		}
	})
}

func TestChangedSectionKeys_Bounded(t *testing.T) {
	a := newTestPack("pk_aaaaaaaa")
	b := a.Clone()
	for i := 0; i < 20; i++ {
		b.upsertSection(fmt.Sprintf("s%02d", i), "S", nil, nil, nil)
	}
	keys := ChangedSectionKeys(a, b)
	if len(keys) != ChangedKeysLimit {
		t.Fatalf("len(keys) = %d, want %d", len(keys), ChangedKeysLimit)
	}
	if keys[0] != "s00" {
		t.Errorf("keys[0] = %s, want s00", keys[0])
	}
}
