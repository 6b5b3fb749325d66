package app

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
	"github.com/bizzlechizzle/aupat-sub000/internal/config"
	"github.com/bizzlechizzle/aupat-sub000/internal/encryption"
	"github.com/bizzlechizzle/aupat-sub000/internal/vault"
)

// Vault item names.
const (
	snapshotCatalog   = "catalog"
	snapshotPublicKey = "public_key"
)

// settingHashAlgorithm pins the digest algorithm of an archive.
const settingHashAlgorithm = "hash_algorithm"

// pinHashAlgorithm records the configured algorithm on first use and
// refuses a catalog whose digests were computed with another one.
func pinHashAlgorithm(db aupat.Database, algorithm string) error {
	pinned, ok, err := db.GetSetting(settingHashAlgorithm)
	if err != nil {
		return fmt.Errorf("reading hash algorithm setting: %w", err)
	}
	if !ok {
		if err := db.PutSetting(settingHashAlgorithm, algorithm); err != nil {
			return fmt.Errorf("pinning hash algorithm: %w", err)
		}
		return nil
	}
	if pinned != algorithm {
		return fmt.Errorf("catalog digests use %s but pipeline.hash_algorithm is %s", pinned, algorithm)
	}
	return nil
}

// checkCatalogVersion refuses to run against a local catalog that is older
// than the snapshot in the vault.
func checkCatalogVersion(db aupat.Database, v aupat.Vault, archiveID string) error {
	remoteVersion, err := v.SnapshotVersion(archiveID, snapshotCatalog)
	if err != nil {
		return fmt.Errorf("checking remote catalog version: %w", err)
	}

	localMax, err := db.MaxOperationID()
	if err != nil {
		return fmt.Errorf("checking local catalog version: %w", err)
	}

	if remoteVersion > localMax {
		return fmt.Errorf("local catalog is behind vault (local=%d, remote=%d): run `aupat catalog restore`", localMax, remoteVersion)
	}
	return nil
}

// BackupCatalog snapshots the catalog and uploads it to the vault with
// version = latest operation id. It returns that version.
func (a *AupatApp) BackupCatalog() (int64, error) {
	if a.vault == nil {
		return 0, fmt.Errorf("no vaults configured")
	}
	if err := a.persistOperation(); err != nil {
		return 0, err
	}

	version, err := a.db.MaxOperationID()
	if err != nil {
		return 0, fmt.Errorf("reading catalog version: %w", err)
	}

	path, err := a.writeSnapshot()
	if err != nil {
		return 0, err
	}
	defer os.Remove(path)

	if err := a.uploadSnapshot(path, version); err != nil {
		return 0, err
	}
	a.logger.Info("catalog snapshot uploaded", "version", version, "encrypted", a.encryptor != nil)
	return version, nil
}

// writeSnapshot copies the catalog to a temp file, encrypted when
// catalog.encrypt is set. The caller removes the file.
func (a *AupatApp) writeSnapshot() (string, error) {
	tmpFile, err := os.CreateTemp("", "aupat-catalog-*.db")
	if err != nil {
		return "", fmt.Errorf("creating temp file for catalog snapshot: %w", err)
	}
	plainPath := tmpFile.Name()
	tmpFile.Close()

	if err := a.db.BackupTo(plainPath); err != nil {
		os.Remove(plainPath)
		return "", fmt.Errorf("backing up catalog: %w", err)
	}
	if a.encryptor == nil {
		return plainPath, nil
	}
	defer os.Remove(plainPath)

	in, err := os.Open(plainPath)
	if err != nil {
		return "", fmt.Errorf("opening catalog snapshot: %w", err)
	}
	defer in.Close()

	out, err := os.CreateTemp("", "aupat-catalog-*.age")
	if err != nil {
		return "", fmt.Errorf("creating temp file for encrypted snapshot: %w", err)
	}
	if err := a.encryptor.Encrypt(in, out); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", fmt.Errorf("encrypting catalog snapshot: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("closing encrypted snapshot: %w", err)
	}
	return out.Name(), nil
}

// uploadSnapshot opens the snapshot file and uploads it to the vault. When
// the snapshot is age-encrypted the recipient is published next to it.
func (a *AupatApp) uploadSnapshot(path string, version int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening catalog snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat catalog snapshot: %w", err)
	}

	if err := a.vault.PutSnapshot(a.cfg.ArchiveID, snapshotCatalog, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading catalog snapshot to vault: %w", err)
	}

	if pk, ok := a.encryptor.(interface{ PublicKey() (string, error) }); ok {
		key, err := pk.PublicKey()
		if err != nil {
			return err
		}
		if err := a.vault.PutSnapshot(a.cfg.ArchiveID, snapshotPublicKey, strings.NewReader(key), int64(len(key)), version); err != nil {
			return fmt.Errorf("uploading public key to vault: %w", err)
		}
	}
	return nil
}

// RestoreCatalog downloads the latest catalog snapshot from the first vault
// into dest, decrypting it with passphrase when catalog.encrypt is set.
// dest must not exist. It returns the restored version.
func RestoreCatalog(cfg *config.Config, dest, passphrase string) (int64, error) {
	if len(cfg.Vaults) == 0 {
		return 0, fmt.Errorf("no vaults configured")
	}
	if _, err := os.Stat(dest); err == nil {
		return 0, fmt.Errorf("destination already exists: %s", dest)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("checking destination: %w", err)
	}

	v, err := vault.NewVaultFromConfig(cfg.Vaults[0])
	if err != nil {
		return 0, fmt.Errorf("creating vault: %w", err)
	}
	version, err := v.SnapshotVersion(cfg.ArchiveID, snapshotCatalog)
	if err != nil {
		return 0, fmt.Errorf("checking remote catalog version: %w", err)
	}
	if version == 0 {
		return 0, fmt.Errorf("vault %s holds no catalog snapshot for %s", cfg.Vaults[0].Name, cfg.ArchiveID)
	}

	var dctx aupat.DecryptionContext
	if cfg.Catalog.Encrypt {
		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return 0, fmt.Errorf("creating encryptor: %w", err)
		}
		if dctx, err = enc.Unlock(passphrase); err != nil {
			return 0, err
		}
	}

	partial := dest + ".partial"
	out, err := os.OpenFile(partial, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", partial, err)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(v.GetSnapshot(cfg.ArchiveID, snapshotCatalog, pw))
	}()

	if dctx != nil {
		err = dctx.Decrypt(pr, out)
	} else {
		_, err = io.Copy(out, pr)
	}
	pr.CloseWithError(err)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(partial)
		return 0, fmt.Errorf("restoring catalog snapshot: %w", err)
	}

	if err := os.Rename(partial, dest); err != nil {
		os.Remove(partial)
		return 0, fmt.Errorf("moving restored catalog into place: %w", err)
	}
	return version, nil
}

// SetupKeys generates the key pair used to encrypt catalog snapshots.
func SetupKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	return enc.Setup(passphrase)
}
