package aupat

import "io"

// Encryptor protects catalog snapshots before they leave the host.
// Encryption only needs the public key; decryption needs the passphrase
// that unlocks the private key.
type Encryptor interface {
	// Setup generates a key pair and stores the private key encrypted with
	// passphrase. Called by `aupat keys init`.
	Setup(passphrase string) error

	Encrypt(r io.Reader, w io.Writer) error

	// Unlock returns a DecryptionContext or an error for a wrong passphrase.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key for one restore session.
// The key lives in memory only.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
