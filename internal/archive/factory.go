package archive

import (
	"fmt"

	"github.com/AmirTlinov/context-pack/internal/config"
	"github.com/AmirTlinov/context-pack/internal/pack"
)

// NewArchiveFromConfig creates an Archive based on the archive config type.
// It returns nil and no error for type "none". When cfg.Encrypt is set the
// archive is wrapped in Sealed using encryptor.
func NewArchiveFromConfig(cfg config.ArchiveConfig, encryptor pack.Encryptor) (pack.Archive, error) {
	var (
		a   pack.Archive
		err error
	)
	switch cfg.Type {
	case "none":
		return nil, nil
	case "memory":
		a = NewMemoryArchive()
	case "filesystem", "":
		if cfg.FSArchiveRoot == "" {
			return nil, fmt.Errorf("filesystem archive requires fs_archive_root to be set")
		}
		a, err = NewFileSystemArchive(cfg.FSArchiveRoot)
	case "s3":
		a, err = NewS3Archive(cfg)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Encrypt {
		if encryptor == nil {
			return nil, fmt.Errorf("archive encryption requires an encryptor")
		}
		return NewSealed(a, encryptor), nil
	}
	return a, nil
}
