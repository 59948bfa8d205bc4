package pack

import (
	"context"
	"io"
	"time"
)

// Store persists one record per pack. Implementations serialize writers per pack id
// and guard name reservation with a single create lock.
type Store interface {
	// Load returns the pack stored under id. It fails closed: an unreadable, oversized or
	// unparsable record is an io_error and a schema mismatch is migration_required.
	Load(ctx context.Context, id string) (*Pack, error)

	// Create stores a new pack under the global create lock. live reports whether an
	// existing pack still holds its name; a live pack with the same name fails with
	// name_conflict and an existing id fails with id_taken.
	Create(ctx context.Context, p *Pack, live func(existing *Pack) bool) error

	// Save atomically replaces the stored pack under its per-pack lock after
	// CheckRevision accepts expectedRevision against the stored record.
	Save(ctx context.Context, p *Pack, expectedRevision int64) error

	// Delete removes the record for id under its per-pack lock. A non-nil check runs
	// first with the stored record, still under the lock; an error from check leaves the
	// record in place and is returned. Delete reports whether a record was removed.
	Delete(ctx context.Context, id string, check func(current *Pack) error) (bool, error)

	// List returns every healthy stored pack. Records that cannot be read are removed
	// and skipped.
	List(ctx context.Context) ([]*Pack, error)
}

// Snippet is an excerpt of a source file.
type Snippet struct {
	Path       string
	LineStart  int
	LineEnd    int
	Body       string // numbered lines, "%4d: <line>"
	TotalLines int
}

// Excerpter reads bounded line ranges from files under the source root.
// A missing file, a range past EOF or an oversized file is a stale_ref error.
type Excerpter interface {
	ReadLines(ctx context.Context, path string, lineStart, lineEnd int) (*Snippet, error)
}

// JournalEntry records one accepted mutation or purge.
type JournalEntry struct {
	ID        int64
	PackID    string
	Action    string
	Revision  int64
	RequestID string
	At        time.Time
}

// Journal is an append-only mutation history.
type Journal interface {
	Append(ctx context.Context, entry JournalEntry) error
	// List returns entries newest first. An empty packID lists all packs.
	List(ctx context.Context, packID string, limit int) ([]*JournalEntry, error)
}

// Archive keeps the final record of packs that were purged or deleted.
type Archive interface {
	// Put stores size bytes read from r under key. Putting the same key twice overwrites it.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get writes the object stored under key to w.
	Get(ctx context.Context, key string, w io.Writer) error

	// List returns the keys that start with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// ValidateSetup verifies that the archive is reachable and writable.
	ValidateSetup(ctx context.Context) error
}

// Encryptor seals archived records. Encryption needs only the public key; decryption
// requires unlocking the private key with a passphrase.
type Encryptor interface {
	// Setup generates a key pair and protects the private key with passphrase.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key and returns a context able to decrypt data.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}

// Recorder receives operational counters.
type Recorder interface {
	MutationAccepted(action string)
	Conflict(code string)
	Purged(n int)
	LenientDrop()
	ChunksRendered(n int)
}

// NopRecorder discards all measurements.
type NopRecorder struct{}

func (NopRecorder) MutationAccepted(string) {}
func (NopRecorder) Conflict(string)         {}
func (NopRecorder) Purged(int)              {}
func (NopRecorder) LenientDrop()            {}
func (NopRecorder) ChunksRendered(int)      {}
