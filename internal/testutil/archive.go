package testutil

import (
	"github.com/AmirTlinov/context-pack/internal/archive"
)

// NewTestArchive creates a new in-memory archive for testing.
func NewTestArchive() *archive.MemoryArchive {
	return archive.NewMemoryArchive()
}
