package store

import (
	"fmt"
	"time"

	"github.com/AmirTlinov/context-pack/internal/config"
	"github.com/AmirTlinov/context-pack/internal/pack"
)

// NewStoreFromConfig creates a Store implementation based on the store config type.
func NewStoreFromConfig(cfg config.StoreConfig, logger pack.Logger, recorder pack.Recorder) (pack.Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.MaxPackBytes), nil
	case "filesystem", "":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem store requires root to be set")
		}
		timeout := time.Duration(cfg.LockTimeoutMS) * time.Millisecond
		return NewFileStore(cfg.Root, cfg.MaxPackBytes, timeout, logger, recorder)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
