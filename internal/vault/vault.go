// Package vault stores archived store snapshots.
package vault

import (
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned by GetSnapshot for a key that was never written.
var ErrNotFound = errors.New("snapshot not found")

// objectKey joins prefix, store id and name into a slash-separated key.
func objectKey(prefix, storeID, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return path.Join(storeID, name)
	}
	return path.Join(prefix, storeID, name)
}
