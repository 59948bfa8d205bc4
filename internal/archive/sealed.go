package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/AmirTlinov/context-pack/internal/pack"
)

// SealedSuffix is appended to keys of encrypted objects.
const SealedSuffix = ".age"

// Sealed encrypts records before handing them to the wrapped archive. Writing
// only needs the public key; reading back goes through Open with an unlocked
// DecryptionContext.
type Sealed struct {
	inner     pack.Archive
	encryptor pack.Encryptor
}

// NewSealed wraps inner so every Put is encrypted with encryptor.
func NewSealed(inner pack.Archive, encryptor pack.Encryptor) *Sealed {
	return &Sealed{inner: inner, encryptor: encryptor}
}

// Put encrypts the object and stores it under key + SealedSuffix.
func (s *Sealed) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	var sealed bytes.Buffer
	counted := &countingReader{r: r}
	if err := s.encryptor.Encrypt(counted, &sealed); err != nil {
		return fmt.Errorf("sealing archive object %s: %w", key, err)
	}
	if counted.n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counted.n)
	}
	return s.inner.Put(ctx, key+SealedSuffix, &sealed, int64(sealed.Len()))
}

// Get writes the ciphertext stored for key to w.
func (s *Sealed) Get(ctx context.Context, key string, w io.Writer) error {
	return s.inner.Get(ctx, key+SealedSuffix, w)
}

// Open decrypts the object stored for key into w.
func (s *Sealed) Open(ctx context.Context, key string, dc pack.DecryptionContext, w io.Writer) error {
	var sealed bytes.Buffer
	if err := s.Get(ctx, key, &sealed); err != nil {
		return err
	}
	if err := dc.Decrypt(&sealed, w); err != nil {
		return fmt.Errorf("opening archive object %s: %w", key, err)
	}
	return nil
}

// List returns the logical keys, without SealedSuffix. Objects that were not sealed are skipped.
func (s *Sealed) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.inner.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasSuffix(k, SealedSuffix) {
			out = append(out, strings.TrimSuffix(k, SealedSuffix))
		}
	}
	return out, nil
}

// ValidateSetup checks the wrapped archive and that a recipient key is available.
func (s *Sealed) ValidateSetup(ctx context.Context) error {
	if !s.encryptor.IsConfigured() {
		return fmt.Errorf("archive encryption is enabled but keys are not set up (run `ctxpack keys init`)")
	}
	return s.inner.ValidateSetup(ctx)
}

// Compile-time check that Sealed implements pack.Archive interface
var _ pack.Archive = (*Sealed)(nil)
