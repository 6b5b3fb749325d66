package testutil

import (
	"github.com/bizzlechizzle/aupat-sub000/internal/encryption"
)

// NewTestEncryptor creates a header-only encryptor. When passphrase is not
// empty, Unlock rejects any other passphrase.
func NewTestEncryptor(passphrase string) *encryption.TestEncryptor {
	e := encryption.NewTestEncryptor()
	if passphrase != "" {
		e.Setup(passphrase)
	}
	return e
}
