//go:build !linux

package fs

import (
	"io/fs"
	"path/filepath"
	"time"
)

func changeTime(info fs.FileInfo) time.Time {
	return info.ModTime()
}

func dirKey(path string, _ fs.FileInfo) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}
	return path
}
