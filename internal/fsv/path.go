package fsv

import (
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// CanonicalPath returns the cleaned absolute form of p, or "" if p is relative.
func CanonicalPath(p string) string {
	if p == "" || !filepath.IsAbs(p) {
		return ""
	}
	return filepath.Clean(p)
}

// PathHash is the lowercase hex xxh3-128 of a canonical path. Stores index
// paths by this value.
func PathHash(p string) string {
	b := xxh3.HashString128(p).Bytes()
	return hex.EncodeToString(b[:])
}

// CanonicalTime normalizes t to UTC at microsecond precision, which every
// supported store round-trips exactly.
func CanonicalTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// segments splits a canonical path into its separator-delimited components.
// The filesystem root has no segments.
func segments(p string) []string {
	sep := string(filepath.Separator)
	trimmed := strings.Trim(p, sep)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, sep)
}

// Depth is the number of separator boundaries below the filesystem root.
func Depth(p string) int {
	return len(segments(p))
}

// IsChildPath reports whether child sits exactly one level below parent.
// Paths are compared by segment, so "/a/b" is not the parent of "/a/bc".
func IsChildPath(parent, child string) bool {
	ps, cs := segments(parent), segments(child)
	if len(cs) != len(ps)+1 {
		return false
	}
	for i := range ps {
		if ps[i] != cs[i] {
			return false
		}
	}
	return true
}
