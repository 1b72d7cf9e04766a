package testutil

import (
	"fsv-go/internal/encryption"
	"fsv-go/internal/fsv"
)

// NewTestEncryptor creates an encryptor that frames data without keys.
func NewTestEncryptor() fsv.Encryptor {
	return encryption.NewPlainEncryptor()
}
