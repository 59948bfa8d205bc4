package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/AmirTlinov/context-pack/internal/archive"
	"github.com/AmirTlinov/context-pack/internal/config"
	"github.com/AmirTlinov/context-pack/internal/encryption"
	"github.com/AmirTlinov/context-pack/internal/excerpt"
	"github.com/AmirTlinov/context-pack/internal/journal"
	"github.com/AmirTlinov/context-pack/internal/metrics"
	"github.com/AmirTlinov/context-pack/internal/pack"
	"github.com/AmirTlinov/context-pack/internal/store"
)

// ErrJournalDisabled is returned by History when journal.type is "none".
var ErrJournalDisabled = errors.New("journal is disabled (journal.type = none)")

// ErrArchiveDisabled is returned by archive operations when archive.type is "none".
var ErrArchiveDisabled = errors.New("archive is disabled (archive.type = none)")

// App is the application layer between the CLI and pack.Service.
// It constructs all dependencies from config, dispatches tool requests and
// releases the journal, source watcher and log file on Close.
type App struct {
	cfg       *config.Config
	op        *Operation
	store     pack.Store
	source    *excerpt.FSExcerpter
	cache     *excerpt.Cache
	journal   *journal.SQLiteJournal
	encryptor pack.Encryptor
	archive   pack.Archive
	recorder  *metrics.Recorder
	service   *pack.Service
	logger    *slogAdapter
	logFile   *os.File

	stopWatch context.CancelFunc
	watchDone chan struct{}
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "serve", "input").
// The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	op := NewOperation(operation, time.Now())
	l, logFile, err := newLogger(cfg.LogDir, op.ID, ParseLevel(cfg.LogLevel), op.MirrorsToStderr())
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: l}
	recorder := metrics.NewRecorder()

	a := &App{cfg: cfg, op: op, recorder: recorder, logger: logger, logFile: logFile}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	logger.Debug("app started", "operation", op.Name, "source_root", a.source.Root())
	return a, nil
}

func (a *App) wire() error {
	st, err := store.NewStoreFromConfig(a.cfg.Store, a.logger, a.recorder)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	a.store = st

	a.source, err = excerpt.NewFSExcerpter(a.cfg.Source.Root, a.cfg.Source.MaxSourceBytes, a.cfg.Source.Deny)
	if err != nil {
		return fmt.Errorf("creating source excerpter: %w", err)
	}
	var excerpter pack.Excerpter = a.source
	if a.cfg.Source.Cache {
		a.cache = excerpt.NewCache(a.source, a.source.Root(), a.logger)
		excerpter = a.cache
	}

	a.journal, err = journal.NewJournalFromConfig(a.cfg.Journal)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	// A nil *SQLiteJournal must not become a non-nil pack.Journal.
	var j pack.Journal
	if a.journal != nil {
		j = a.journal
	}

	a.encryptor, err = encryption.NewEncryptorFromConfig(a.cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}

	a.archive, err = archive.NewArchiveFromConfig(a.cfg.Archive, a.encryptor)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	if a.archive != nil {
		if err := a.archive.ValidateSetup(context.Background()); err != nil {
			// Archiving is best effort; removal still proceeds without it.
			a.logger.Warn("archive not ready", "type", a.cfg.Archive.Type, "error", err)
		}
	}

	policy := pack.DefaultFreshnessPolicy()
	policy.Grace = time.Duration(a.cfg.Freshness.ExpiredGraceSeconds) * time.Second

	a.service = pack.NewService(st, excerpter, j, a.archive, a.recorder, a.logger,
		pack.RealClock{}, pack.UUIDIDGenerator{}, policy)

	if a.cache != nil && a.cfg.Source.Watch {
		a.startWatch()
	}
	return nil
}

// startWatch runs the source cache watcher until Close.
func (a *App) startWatch() {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopWatch = cancel
	a.watchDone = make(chan struct{})
	go func() {
		defer close(a.watchDone)
		if err := a.cache.Watch(ctx); err != nil {
			a.logger.Warn("source watcher stopped", "error", err)
		}
	}()
}

// Service returns the wired pack service.
func (a *App) Service() *pack.Service { return a.service }

// Recorder returns the metrics recorder shared by every component.
func (a *App) Recorder() *metrics.Recorder { return a.recorder }

// Config returns the effective configuration.
func (a *App) Config() *config.Config { return a.cfg }

// History returns journal entries newest first. An empty packID lists every pack.
func (a *App) History(ctx context.Context, packID string, limit int) ([]*pack.JournalEntry, error) {
	if a.journal == nil {
		return nil, ErrJournalDisabled
	}
	if packID != "" && !pack.IsPackID(packID) {
		return nil, pack.Validation("'%s' is not a pack id", packID)
	}
	return a.journal.List(ctx, packID, limit)
}

// ArchiveList returns the archived record keys of one pack.
func (a *App) ArchiveList(ctx context.Context, packID string) ([]string, error) {
	if a.archive == nil {
		return nil, ErrArchiveDisabled
	}
	if !pack.IsPackID(packID) {
		return nil, pack.Validation("'%s' is not a pack id", packID)
	}
	return a.archive.List(ctx, packID+"/")
}

// ArchiveSealed reports whether archived records are encrypted.
func (a *App) ArchiveSealed() bool {
	_, ok := a.archive.(*archive.Sealed)
	return ok
}

// ArchiveShow writes the archived record of a pack at revision to w. passphrase is only
// called when the archive is sealed.
func (a *App) ArchiveShow(ctx context.Context, packID string, revision int64, passphrase func() (string, error), w io.Writer) error {
	if a.archive == nil {
		return ErrArchiveDisabled
	}
	if !pack.IsPackID(packID) {
		return pack.Validation("'%s' is not a pack id", packID)
	}
	key := pack.ArchiveKey(packID, revision)

	sealed, ok := a.archive.(*archive.Sealed)
	if !ok {
		return a.archive.Get(ctx, key, w)
	}
	pass, err := passphrase()
	if err != nil {
		return fmt.Errorf("reading passphrase: %w", err)
	}
	dc, err := a.encryptor.Unlock(pass)
	if err != nil {
		return fmt.Errorf("unlocking archive key: %w", err)
	}
	return sealed.Open(ctx, key, dc, w)
}

// KeysInit generates the archive key pair and returns the public recipient.
func KeysInit(cfg config.EncryptionConfig, passphrase string) (string, error) {
	enc, err := encryption.NewEncryptorFromConfig(cfg)
	if err != nil {
		return "", fmt.Errorf("creating encryptor: %w", err)
	}
	ageEnc, ok := enc.(*encryption.AgeEncryptor)
	if !ok {
		return "", fmt.Errorf("keys init requires encryption type age (got %q)", cfg.Type)
	}
	if err := ageEnc.Setup(passphrase); err != nil {
		return "", fmt.Errorf("generating keys: %w", err)
	}
	return ageEnc.Recipient()
}

// Close stops the source watcher and closes the journal and log file.
func (a *App) Close() error {
	var firstErr error

	if a.stopWatch != nil {
		a.stopWatch()
		<-a.watchDone
	}

	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			firstErr = fmt.Errorf("closing journal: %w", err)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
