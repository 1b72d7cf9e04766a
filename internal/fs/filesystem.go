package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"fsv-go/internal/fsv"
)

// IgnoreFileName is read from the root of every walked tree.
const IgnoreFileName = ".fsvignore"

// OSWalker is the real filesystem implementation of fsv.Walker.
//
// It walks depth first with an explicit stack, emitting each directory
// before its contents. Symlinks are never followed and non-regular entries
// (devices, pipes, sockets) are skipped.
type OSWalker struct {
	ignore []string
	idgen  fsv.IDGenerator
	logger fsv.Logger
}

// NewOSWalker creates a walker that skips entries matching ignore in
// addition to the default patterns and the tree's own .fsvignore.
func NewOSWalker(ignore []string, idgen fsv.IDGenerator, logger fsv.Logger) *OSWalker {
	return &OSWalker{ignore: ignore, idgen: idgen, logger: logger}
}

// Walk returns a snapshot of the tree under root. A root that does not exist
// or is not a directory yields an empty snapshot and no error.
func (w *OSWalker) Walk(ctx context.Context, root string) (fsv.Snapshot, error) {
	root = fsv.CanonicalPath(root)
	if root == "" {
		return nil, fmt.Errorf("walk root must be absolute")
	}

	snap := make(fsv.Snapshot)
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return snap, nil
		}
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return snap, nil
	}

	matcher, err := w.matcher(root)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{dirKey(root, info): true}
	snap[root] = w.record(root, info)

	stack := []string{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading directory %s: %w", dir, err)
		}

		var subdirs []string
		for _, entry := range entries {
			p := filepath.Join(dir, entry.Name())
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return nil, fmt.Errorf("relativizing %s: %w", p, err)
			}
			if matcher.Match(rel) {
				continue
			}

			mode := entry.Type()
			if mode&fs.ModeSymlink != 0 {
				w.logger.Debug("skipping symlink", "path", p)
				continue
			}
			if !mode.IsDir() && !mode.IsRegular() {
				w.logger.Debug("skipping special file", "path", p, "mode", mode.String())
				continue
			}

			info, err := entry.Info()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					// Removed between ReadDir and Info.
					continue
				}
				return nil, fmt.Errorf("stat %s: %w", p, err)
			}

			if info.IsDir() {
				key := dirKey(p, info)
				if visited[key] {
					w.logger.Warn("directory already visited, skipping cycle", "path", p)
					continue
				}
				visited[key] = true
				subdirs = append(subdirs, p)
			}
			snap[p] = w.record(p, info)
		}

		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	return snap, nil
}

func (w *OSWalker) matcher(root string) (*IgnoreMatcher, error) {
	return NewTreeMatcher(root, w.ignore)
}

func (w *OSWalker) record(p string, info fs.FileInfo) *fsv.Record {
	return &fsv.Record{
		ID:       w.idgen.New(),
		Path:     p,
		IsDir:    info.IsDir(),
		CreateTS: fsv.CanonicalTime(changeTime(info)),
		ModifyTS: fsv.CanonicalTime(info.ModTime()),
	}
}

// Compile-time check that OSWalker implements fsv.Walker interface
var _ fsv.Walker = (*OSWalker)(nil)
