package encryption

import (
	"bytes"
	"fmt"
	"io"

	"fsv-go/internal/fsv"
)

// plainMagic marks output of PlainEncryptor.
var plainMagic = []byte("FSVSNAP\x00")

// PlainEncryptor frames data with a fixed marker instead of encrypting it.
// It lets tests and the memory vault exercise the archive path without keys.
type PlainEncryptor struct {
	configured bool
}

var _ fsv.Encryptor = (*PlainEncryptor)(nil)

func NewPlainEncryptor() *PlainEncryptor {
	return &PlainEncryptor{configured: true}
}

func (e *PlainEncryptor) Setup(string) error {
	e.configured = true
	return nil
}

func (e *PlainEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(plainMagic); err != nil {
		return fmt.Errorf("writing snapshot marker: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *PlainEncryptor) Unlock(string) (fsv.Decrypter, error) {
	return plainDecrypter{}, nil
}

func (e *PlainEncryptor) IsConfigured() bool { return e.configured }

type plainDecrypter struct{}

func (plainDecrypter) Decrypt(r io.Reader, w io.Writer) error {
	marker := make([]byte, len(plainMagic))
	if _, err := io.ReadFull(r, marker); err != nil {
		return fmt.Errorf("reading snapshot marker: %w", err)
	}
	if !bytes.Equal(marker, plainMagic) {
		return fmt.Errorf("invalid snapshot marker")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
