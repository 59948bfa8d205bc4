package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/AmirTlinov/context-pack/internal/pack"
)

const (
	recordExt     = ".json"
	createLockKey = "<create>"
)

// FileStore keeps one JSON record per pack:
//
//	<root>/
//	  packs/
//	    <id>.json
//
// Writers to the same pack are serialized by an in-process lock table and every write
// is an atomic temp file + rename, so readers never observe a partial record.
type FileStore struct {
	dir         string
	maxBytes    int64
	lockTimeout time.Duration
	locks       *lockTable
	logger      pack.Logger
	recorder    pack.Recorder
}

// NewFileStore creates a filesystem store rooted at root.
func NewFileStore(root string, maxBytes int64, lockTimeout time.Duration, logger pack.Logger, recorder pack.Recorder) (*FileStore, error) {
	dir := filepath.Join(root, "packs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create packs directory: %w", err)
	}
	if logger == nil {
		logger = pack.NewNopLogger()
	}
	if recorder == nil {
		recorder = pack.NopRecorder{}
	}
	return &FileStore{
		dir:         dir,
		maxBytes:    maxBytes,
		lockTimeout: lockTimeout,
		locks:       newLockTable(),
		logger:      logger,
		recorder:    recorder,
	}, nil
}

// Dir returns the directory holding pack records.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) recordPath(id string) string {
	return filepath.Join(s.dir, id+recordExt)
}

// Load reads the pack stored under id, failing closed on any damage.
func (s *FileStore) Load(ctx context.Context, id string) (*pack.Pack, error) {
	if !pack.IsPackID(id) {
		return nil, pack.NotFound("pack '%s' not found", id)
	}
	data, err := s.readRecord(s.recordPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, pack.NotFound("pack '%s' not found", id)
		}
		return nil, err
	}
	return decodeRecord(id, data)
}

// Create stores a new pack under the global create lock.
func (s *FileStore) Create(ctx context.Context, p *pack.Pack, live func(*pack.Pack) bool) error {
	data, err := encodeRecord(p, s.maxBytes)
	if err != nil {
		return err
	}

	release, err := s.locks.acquire(ctx, createLockKey, s.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	if _, err := os.Stat(s.recordPath(p.ID)); err == nil {
		return pack.IDTaken(p.ID)
	}
	if p.Name != "" {
		existing, err := s.List(ctx)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if other.Name == p.Name && (live == nil || live(other)) {
				return pack.NameConflict(p.Name, other.ID)
			}
		}
	}

	if err := s.writeRecord(s.recordPath(p.ID), data); err != nil {
		return pack.IOError(err, "writing pack %s", p.ID)
	}
	return nil
}

// Save replaces the stored pack when the stored revision still equals expectedRevision.
func (s *FileStore) Save(ctx context.Context, p *pack.Pack, expectedRevision int64) error {
	data, err := encodeRecord(p, s.maxBytes)
	if err != nil {
		return err
	}

	release, err := s.locks.acquire(ctx, p.ID, s.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	current, err := s.Load(ctx, p.ID)
	if err != nil {
		return err
	}
	if err := pack.CheckRevision(current, p, expectedRevision); err != nil {
		return err
	}
	if err := s.writeRecord(s.recordPath(p.ID), data); err != nil {
		return pack.IOError(err, "writing pack %s", p.ID)
	}
	return nil
}

// Delete removes the record for id under its pack lock after check accepts it.
func (s *FileStore) Delete(ctx context.Context, id string, check func(*pack.Pack) error) (bool, error) {
	if !pack.IsPackID(id) {
		return false, nil
	}
	release, err := s.locks.acquire(ctx, id, s.lockTimeout)
	if err != nil {
		return false, err
	}
	defer release()

	if check != nil {
		current, err := s.Load(ctx, id)
		if err != nil {
			if errors.Is(err, pack.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		if err := check(current); err != nil {
			return false, err
		}
	}
	if err := os.Remove(s.recordPath(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, pack.IOError(err, "deleting pack %s", id)
	}
	return true, nil
}

// List returns every healthy pack. Corrupt, oversized or unreadable records are deleted
// and skipped. Records with another schema version are skipped but kept for migration.
func (s *FileStore) List(ctx context.Context) ([]*pack.Pack, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, pack.IOError(err, "reading packs directory")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var packs []*pack.Pack
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordExt) || strings.HasPrefix(name, ".tmp-") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := strings.TrimSuffix(name, recordExt)
		path := filepath.Join(s.dir, name)

		p, err := s.loadLenient(id, path)
		if err != nil {
			if errors.Is(err, pack.ErrMigrationRequired) {
				s.logger.Warn("skipping pack record with unsupported schema", "path", path, "error", err)
				continue
			}
			s.drop(path, err)
			continue
		}
		if p != nil {
			packs = append(packs, p)
		}
	}
	return packs, nil
}

func (s *FileStore) loadLenient(id, path string) (*pack.Pack, error) {
	if !pack.IsPackID(id) {
		return nil, pack.IOError(nil, "record file name %q is not a pack id", id)
	}
	data, err := s.readRecord(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// deleted between ReadDir and open
			return nil, nil
		}
		return nil, err
	}
	return decodeRecord(id, data)
}

func (s *FileStore) drop(path string, reason error) {
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("removing unreadable pack record", "path", path, "error", err)
		return
	}
	s.logger.Warn("dropped unreadable pack record", "path", path,
		"size", humanize.IBytes(uint64(size)), "reason", reason)
	s.recorder.LenientDrop()
}

// readRecord reads a record file, refusing files over the byte limit.
func (s *FileStore) readRecord(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, pack.IOError(err, "opening pack record %s", filepath.Base(path))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, pack.IOError(err, "reading pack record %s", filepath.Base(path))
	}
	if s.maxBytes > 0 && info.Size() > s.maxBytes {
		return nil, pack.IOError(nil, "pack record %s is %s, over the %s limit",
			filepath.Base(path), humanize.IBytes(uint64(info.Size())), humanize.IBytes(uint64(s.maxBytes)))
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, pack.IOError(err, "reading pack record %s", filepath.Base(path))
	}
	return data, nil
}

// writeRecord writes data to destPath using atomic write (temp file + rename).
func (s *FileStore) writeRecord(destPath string, data []byte) error {
	// Create temp file in the same directory to ensure atomic rename works
	tmpFile, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileStore implements pack.Store interface
var _ pack.Store = (*FileStore)(nil)
