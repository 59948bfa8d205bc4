package testutil

import (
	"github.com/AmirTlinov/context-pack/internal/encryption"
	"github.com/AmirTlinov/context-pack/internal/pack"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() pack.Encryptor {
	return encryption.NewTestEncryptor()
}
