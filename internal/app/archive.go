package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fsv-go/internal/database"
	"fsv-go/internal/fsv"
)

// archive snapshots the store, encrypts it when configured and uploads it
// with version as its vault version. Only sqlite stores can be snapshotted.
func (a *FSVApp) archive(ctx context.Context, version int64) error {
	if a.store.Dialect() != database.SQLite {
		a.logger.Warn("archive skipped: only sqlite stores can be snapshotted", "dialect", string(a.store.Dialect()))
		return nil
	}

	dir, err := os.MkdirTemp("", "fsv-archive-*")
	if err != nil {
		return fmt.Errorf("creating temp dir for store snapshot: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "fsv.db")
	if err := a.store.BackupTo(ctx, path); err != nil {
		return fmt.Errorf("snapshotting store: %w", err)
	}

	if a.cfg.Archive.Encrypt {
		encPath := path + ".age"
		if err := a.encryptFile(path, encPath); err != nil {
			return err
		}
		path = encPath
	}

	if err := a.upload(ctx, path, version); err != nil {
		return err
	}
	a.logger.Info("store archived", "version", version, "encrypted", a.cfg.Archive.Encrypt)
	return nil
}

func (a *FSVApp) encryptFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening store snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating encrypted snapshot: %w", err)
	}
	if err := a.encryptor.Encrypt(in, out); err != nil {
		out.Close()
		return fmt.Errorf("encrypting store snapshot: %w", err)
	}
	return out.Close()
}

// upload opens the snapshot file and puts it in the vault.
func (a *FSVApp) upload(ctx context.Context, path string, version int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening store snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat store snapshot: %w", err)
	}

	if err := a.vault.PutSnapshot(ctx, a.cfg.StoreID, snapshotName, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading store snapshot: %w", err)
	}
	return nil
}

// PushArchive uploads the current store under the latest run id.
func (a *FSVApp) PushArchive(ctx context.Context) (int64, error) {
	if a.vault == nil {
		return 0, fmt.Errorf("no vault configured")
	}
	version, err := a.store.MaxRunID(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading latest run id: %w", err)
	}
	if err := a.archive(ctx, version); err != nil {
		return 0, err
	}
	return version, nil
}

// PullArchive downloads the archived store to out, decrypting it with
// passphrase when archives are encrypted. It returns the snapshot version.
func (a *FSVApp) PullArchive(ctx context.Context, out string, passphrase string) (int64, error) {
	if a.vault == nil {
		return 0, fmt.Errorf("no vault configured")
	}
	version, err := a.vault.SnapshotVersion(ctx, a.cfg.StoreID, snapshotName)
	if err != nil {
		return 0, fmt.Errorf("reading archived version: %w", err)
	}
	if version == 0 {
		return 0, fmt.Errorf("no archived snapshot for store %s", a.cfg.StoreID)
	}

	tmp, err := os.CreateTemp(filepath.Dir(out), ".fsv-pull-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := a.vault.GetSnapshot(ctx, a.cfg.StoreID, snapshotName, tmp); err != nil {
		return 0, fmt.Errorf("downloading snapshot: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewinding snapshot: %w", err)
	}

	var dec fsv.Decrypter
	if a.cfg.Archive.Encrypt {
		if dec, err = a.encryptor.Unlock(passphrase); err != nil {
			return 0, fmt.Errorf("unlocking private key: %w", err)
		}
	}

	dst, err := os.Create(out)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", out, err)
	}
	if dec != nil {
		if err := dec.Decrypt(tmp, dst); err != nil {
			dst.Close()
			return 0, fmt.Errorf("decrypting snapshot: %w", err)
		}
	} else if _, err := io.Copy(dst, tmp); err != nil {
		dst.Close()
		return 0, fmt.Errorf("writing %s: %w", out, err)
	}
	if err := dst.Close(); err != nil {
		return 0, err
	}
	a.logger.Info("store snapshot restored", "version", version, "out", out)
	return version, nil
}

// SetupKeys generates the archive key pair protected by passphrase.
func (a *FSVApp) SetupKeys(passphrase string) error {
	return a.encryptor.Setup(passphrase)
}

// KeysConfigured reports whether the archive key pair exists.
func (a *FSVApp) KeysConfigured() bool {
	return a.encryptor.IsConfigured()
}
