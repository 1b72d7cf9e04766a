package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fsv-go/internal/fsv"
)

// FileSystemVault stores snapshots as files:
//
//	<root>/
//	  <storeID>/
//	    <name>           (snapshot bytes)
//	    <name>.version   (run id that produced it)
type FileSystemVault struct {
	name string
	root string
}

var _ fsv.Vault = (*FileSystemVault)(nil)

// NewFileSystemVault creates a vault rooted at root, creating it if needed.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vault root: %w", err)
	}
	return &FileSystemVault{name: name, root: root}, nil
}

func (v *FileSystemVault) objectPath(storeID, name string) string {
	return filepath.Join(v.root, filepath.FromSlash(objectKey("", storeID, name)))
}

// PutSnapshot writes the snapshot and then its version. A reader never sees
// a version newer than the bytes it describes.
func (v *FileSystemVault) PutSnapshot(ctx context.Context, storeID, name string, r io.Reader, size int64, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest := v.objectPath(storeID, name)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	if err := writeAtomic(dest, r, size); err != nil {
		return err
	}
	versionData := strconv.FormatInt(version, 10)
	if err := writeAtomic(dest+".version", strings.NewReader(versionData), int64(len(versionData))); err != nil {
		return fmt.Errorf("writing version: %w", err)
	}
	return nil
}

func (v *FileSystemVault) GetSnapshot(ctx context.Context, storeID, name string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(v.objectPath(storeID, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, storeID, name)
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return nil
}

// SnapshotVersion returns 0 if no version file exists.
func (v *FileSystemVault) SnapshotVersion(_ context.Context, storeID, name string) (int64, error) {
	data, err := os.ReadFile(v.objectPath(storeID, name) + ".version")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}
	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup verifies that the root is a writable directory.
func (v *FileSystemVault) ValidateSetup(context.Context) error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}
	tmp, err := os.CreateTemp(v.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("vault root not writable: %w", err)
	}
	tmp.Close()
	return os.Remove(tmp.Name())
}

// writeAtomic writes r to dest through a temp file in the same directory.
func writeAtomic(dest string, r io.Reader, expectedSize int64) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
