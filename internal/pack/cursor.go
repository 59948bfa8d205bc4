package pack

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

const pageTokenPrefix = "v1:"

// pageToken is the self-describing continuation token handed out by Read.
type pageToken struct {
	V           int     `json:"v"`
	PackID      string  `json:"pack_id"`
	Revision    int64   `json:"revision"`
	NextOffset  int     `json:"next_offset"`
	Fingerprint string  `json:"fingerprint"`
	Profile     Profile `json:"profile"`
	Limit       int     `json:"limit"`
	Contains    string  `json:"contains,omitempty"`
	Status      Status  `json:"status,omitempty"`
}

func encodePageToken(t pageToken) string {
	data, _ := json.Marshal(t)
	return pageTokenPrefix + hex.EncodeToString(data)
}

func decodePageToken(raw string) (pageToken, error) {
	var t pageToken
	body, ok := strings.CutPrefix(strings.TrimSpace(raw), pageTokenPrefix)
	if !ok {
		return t, invalidCursor("unsupported version")
	}
	data, err := hex.DecodeString(body)
	if err != nil {
		return t, invalidCursor("malformed encoding")
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return t, invalidCursor("malformed payload")
	}
	if t.V != 1 {
		return t, invalidCursor("unsupported version")
	}
	if t.NextOffset < 0 || t.Limit < 0 {
		return t, invalidCursor("malformed payload")
	}
	return t, nil
}

// pageFingerprint binds a token to the request shape and to the pack content it paged.
func pageFingerprint(p *Pack, profile Profile, limit int, contains string, status Status) string {
	content, _ := json.Marshal(p.Sections)
	h := sha256.New()
	fmt.Fprintf(h, "id=%s|revision=%d|profile=%s|limit=%d|contains=%s|status=%s|",
		p.ID, p.Revision, profile, limit, contains, status)
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))[:32]
}
