package pack

import (
	"encoding/base32"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// IDPrefix starts every pack id.
	IDPrefix = "pk_"
	// IDAlphabet is the character set of the random part of a pack id.
	IDAlphabet = "abcdefghijklmnopqrstuvwxyz234567"
	// IDLength is the length of the random part of a pack id.
	IDLength = 8

	// maxIDAttempts bounds regeneration when a generated id is already taken.
	maxIDAttempts = 8
)

var idPattern = regexp.MustCompile(`^pk_[a-z2-7]{8}$`)

// IsPackID reports whether s is a well-formed pack id.
func IsPackID(s string) bool {
	return idPattern.MatchString(s)
}

// IDGenerator abstracts pack id generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDIDGenerator derives pack ids from random UUIDs. The first five bytes of a
// v4 UUID are random and encode to exactly eight base32 characters.
type UUIDIDGenerator struct{}

var idEncoding = base32.NewEncoding(strings.ToUpper(IDAlphabet)).WithPadding(base32.NoPadding)

func (UUIDIDGenerator) New() string {
	u := uuid.New()
	return IDPrefix + strings.ToLower(idEncoding.EncodeToString(u[:5]))
}
