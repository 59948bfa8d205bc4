package store

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/AmirTlinov/context-pack/internal/pack"
)

// encodeRecord serializes p and enforces the byte limit before anything is written.
func encodeRecord(p *pack.Pack, maxBytes int64) ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding pack %s: %w", p.ID, err)
	}
	data = append(data, '\n')
	if size := int64(len(data)); maxBytes > 0 && size > maxBytes {
		return nil, pack.Oversize(size, maxBytes, fmt.Sprintf(
			"pack %s would be %s, over the %s limit; split content or remove refs",
			p.ID, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(maxBytes))))
	}
	return data, nil
}

// decodeRecord parses a stored record for id. Unparsable data or a document without a
// schema version is an io_error; a schema version other than the current one is
// migration_required.
func decodeRecord(id string, data []byte) (*pack.Pack, error) {
	var header struct {
		SchemaVersion *int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, pack.IOError(err, "pack record %s is corrupt", id)
	}
	if header.SchemaVersion == nil {
		return nil, pack.IOError(nil, "pack record %s is corrupt: no schema_version", id)
	}
	if *header.SchemaVersion != pack.CurrentSchemaVersion {
		return nil, pack.MigrationRequired("pack %s has schema version %d; this build reads version %d",
			id, *header.SchemaVersion, pack.CurrentSchemaVersion)
	}
	var p pack.Pack
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, pack.IOError(err, "pack record %s is corrupt", id)
	}
	if p.ID != id {
		return nil, pack.IOError(nil, "pack record %s carries id %q", id, p.ID)
	}
	return &p, nil
}
