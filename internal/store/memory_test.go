package store

import (
	"context"
	"errors"
	"testing"

	"github.com/AmirTlinov/context-pack/internal/config"
	"github.com/AmirTlinov/context-pack/internal/pack"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	p := testPack("pk_aaaaaaaa", "demo pack")

	if err := s.Create(ctx, p, nil); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Create(ctx, testPack("pk_bbbbbbbb", "demo pack"), nil); !errors.Is(err, pack.ErrNameConflict) {
		t.Fatalf("Create() error = %v, want name_conflict", err)
	}

	loaded, err := s.Load(ctx, p.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	loaded.Title = "mutated copy"
	again, _ := s.Load(ctx, p.ID)
	if again.Title != "" {
		t.Error("Load() must return an independent copy")
	}

	next := loaded.Clone()
	next.Revision = 2
	if err := s.Save(ctx, next, 1); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, next, 1); !errors.Is(err, pack.ErrRevisionConflict) {
		t.Fatalf("Save() error = %v, want revision_conflict", err)
	}

	s.PutRaw("pk_cccccccc", []byte("broken"))
	s.PutRaw("pk_dddddddd", []byte(`{}`))
	s.PutRaw("pk_eeeeeeee", []byte(`{"schema_version":1,"id":"pk_eeeeeeee"}`))
	packs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(packs) != 1 {
		t.Fatalf("List() returned %d packs, want 1", len(packs))
	}
	for _, id := range []string{"pk_cccccccc", "pk_dddddddd"} {
		if _, err := s.Load(ctx, id); !errors.Is(err, pack.ErrNotFound) {
			t.Errorf("Load(%s) after List() error = %v, want not_found", id, err)
		}
	}
	if _, err := s.Load(ctx, "pk_eeeeeeee"); !errors.Is(err, pack.ErrMigrationRequired) {
		t.Errorf("schema-mismatched record should be kept: Load() error = %v", err)
	}

	if deleted, err := s.Delete(ctx, p.ID, func(current *pack.Pack) error {
		return pack.CheckRevision(current, nil, 1)
	}); !errors.Is(err, pack.ErrRevisionConflict) || deleted {
		t.Fatalf("Delete(stale revision) = %v, %v; want false, revision_conflict", deleted, err)
	}
	deleted, err := s.Delete(ctx, p.ID, nil)
	if err != nil || !deleted {
		t.Fatalf("Delete() = %v, %v", deleted, err)
	}
	if _, err := s.Load(ctx, p.ID); !errors.Is(err, pack.ErrNotFound) {
		t.Errorf("Load() after delete error = %v, want not_found", err)
	}
}

func TestNewStoreFromConfig(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		s, err := NewStoreFromConfig(config.StoreConfig{Type: "memory"}, nil, nil)
		if err != nil {
			t.Fatalf("NewStoreFromConfig() error = %v", err)
		}
		if _, ok := s.(*MemoryStore); !ok {
			t.Errorf("got %T, want *MemoryStore", s)
		}
	})

	t.Run("filesystem", func(t *testing.T) {
		s, err := NewStoreFromConfig(config.StoreConfig{Type: "filesystem", Root: t.TempDir(), LockTimeoutMS: 100}, nil, nil)
		if err != nil {
			t.Fatalf("NewStoreFromConfig() error = %v", err)
		}
		if _, ok := s.(*FileStore); !ok {
			t.Errorf("got %T, want *FileStore", s)
		}
	})

	t.Run("filesystem without root", func(t *testing.T) {
		if _, err := NewStoreFromConfig(config.StoreConfig{Type: "filesystem"}, nil, nil); err == nil {
			t.Fatal("NewStoreFromConfig() expected error")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := NewStoreFromConfig(config.StoreConfig{Type: "redis"}, nil, nil); err == nil {
			t.Fatal("NewStoreFromConfig() expected error")
		}
	})
}
