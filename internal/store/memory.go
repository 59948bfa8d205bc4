package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/AmirTlinov/context-pack/internal/pack"
)

// MemoryStore is an in-memory implementation of the pack.Store interface.
// Records are kept encoded so callers never share state with the store.
// This implementation is safe for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string][]byte
	maxBytes int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(maxBytes int64) *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte), maxBytes: maxBytes}
}

func (m *MemoryStore) Load(_ context.Context, id string) (*pack.Pack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(id)
}

func (m *MemoryStore) load(id string) (*pack.Pack, error) {
	data, ok := m.records[id]
	if !ok {
		return nil, pack.NotFound("pack '%s' not found", id)
	}
	return decodeRecord(id, data)
}

func (m *MemoryStore) Create(_ context.Context, p *pack.Pack, live func(*pack.Pack) bool) error {
	data, err := encodeRecord(p, m.maxBytes)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[p.ID]; ok {
		return pack.IDTaken(p.ID)
	}
	if p.Name != "" {
		for _, other := range m.list() {
			if other.Name == p.Name && (live == nil || live(other)) {
				return pack.NameConflict(p.Name, other.ID)
			}
		}
	}
	m.records[p.ID] = data
	return nil
}

func (m *MemoryStore) Save(_ context.Context, p *pack.Pack, expectedRevision int64) error {
	data, err := encodeRecord(p, m.maxBytes)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.load(p.ID)
	if err != nil {
		return err
	}
	if err := pack.CheckRevision(current, p, expectedRevision); err != nil {
		return err
	}
	m.records[p.ID] = data
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string, check func(*pack.Pack) error) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return false, nil
	}
	if check != nil {
		current, err := m.load(id)
		if err != nil {
			return false, err
		}
		if err := check(current); err != nil {
			return false, err
		}
	}
	delete(m.records, id)
	return true, nil
}

func (m *MemoryStore) List(_ context.Context) ([]*pack.Pack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(), nil
}

// list decodes every record. Corrupt records are dropped; records with another schema
// version are skipped but kept, as FileStore does. Caller must hold mu.
func (m *MemoryStore) list() []*pack.Pack {
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	packs := make([]*pack.Pack, 0, len(ids))
	for _, id := range ids {
		p, err := decodeRecord(id, m.records[id])
		if err != nil {
			if !errors.Is(err, pack.ErrMigrationRequired) {
				delete(m.records, id)
			}
			continue
		}
		packs = append(packs, p)
	}
	return packs
}

// PutRaw stores raw record bytes under id, bypassing validation. Use in tests.
func (m *MemoryStore) PutRaw(id string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = append([]byte{}, data...)
}

// Compile-time check that MemoryStore implements pack.Store interface
var _ pack.Store = (*MemoryStore)(nil)
