package fsv

import (
	"context"
	"io"
)

// Vault stores versioned snapshots of the store itself, keyed by store id
// and name. The version is the id of the run that produced the snapshot.
type Vault interface {
	// PutSnapshot stores size bytes read from r under storeID/name.
	PutSnapshot(ctx context.Context, storeID, name string, r io.Reader, size int64, version int64) error

	// GetSnapshot writes the stored bytes for storeID/name to w.
	GetSnapshot(ctx context.Context, storeID, name string, w io.Writer) error

	// SnapshotVersion returns the version stored with storeID/name, or 0 if
	// nothing has been stored.
	SnapshotVersion(ctx context.Context, storeID, name string) (int64, error)

	// ValidateSetup verifies that the vault is reachable.
	ValidateSetup(ctx context.Context) error
}

// Encryptor protects archived snapshots. Encryption needs only the public
// key; decryption needs the passphrase that unlocks the private key.
type Encryptor interface {
	// Setup generates a key pair and stores the private key encrypted with passphrase.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock returns a Decrypter for the session, or an error for a wrong passphrase.
	Unlock(passphrase string) (Decrypter, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// Decrypter holds an unlocked private key in memory.
type Decrypter interface {
	Decrypt(r io.Reader, w io.Writer) error
}
