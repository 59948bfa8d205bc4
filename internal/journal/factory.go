package journal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AmirTlinov/context-pack/internal/config"
)

// FileName is the journal database name inside the configured data dir.
const FileName = "journal.db"

// NewJournalFromConfig creates a journal based on the journal config type.
// It returns nil and no error for type "none". Existing sqlite files must already be at
// the latest schema; new files and in-memory journals are migrated on open.
func NewJournalFromConfig(cfg config.JournalConfig) (*SQLiteJournal, error) {
	switch cfg.Type {
	case "sqlite", "":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite journal")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
		path := filepath.Join(cfg.DataDir, FileName)
		if _, err := os.Stat(path); err == nil {
			return OpenSQLiteJournal(path)
		}
		return NewSQLiteJournal(path)
	case "memory":
		return NewSQLiteJournal(":memory:")
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown journal type: %s", cfg.Type)
	}
}
