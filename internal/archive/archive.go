// Package archive keeps copies of pack records removed by delete_pack or the
// freshness purge. Keys look like "<pack id>/<revision>.json".
package archive

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when no object is stored under the key.
var ErrNotFound = errors.New("archive object not found")

// validateKey rejects keys that could escape the archive root.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("archive key must not be empty")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid archive key: %s", key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." || strings.HasPrefix(segment, ".tmp-") {
			return fmt.Errorf("invalid archive key: %s", key)
		}
	}
	return nil
}
