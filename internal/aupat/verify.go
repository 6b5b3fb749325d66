package aupat

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bizzlechizzle/aupat-sub000/internal/model"
)

// Mismatch is a relocated asset whose archive file failed verification.
type Mismatch struct {
	Asset    *model.Asset
	Expected string
	Actual   string // empty when the file could not be hashed
	Err      error
}

func (m Mismatch) Reason() string {
	if m.Err != nil {
		return fmt.Sprintf("%v: %s: %v", ErrVerificationMismatch, m.Asset.ArchivePath, m.Err)
	}
	return fmt.Sprintf("%v: %s: expected %s, got %s", ErrVerificationMismatch, m.Asset.ArchivePath, m.Expected, m.Actual)
}

// VerificationReport is the outcome of verifying one batch.
type VerificationReport struct {
	Verified   []*model.Asset
	Mismatches []Mismatch
}

// OK reports whether every asset matched. Verification is all-or-nothing:
// a single mismatch fails the batch.
func (r *VerificationReport) OK() bool { return len(r.Mismatches) == 0 }

// Verifier re-hashes relocated files at their archive paths.
type Verifier struct {
	hasher ContentHasher
	root   string
	logger Logger
}

func NewVerifier(hasher ContentHasher, root string, logger Logger) *Verifier {
	return &Verifier{hasher: hasher, root: root, logger: logger}
}

// VerifyBatch compares each asset's archive file with the digest captured
// when it was staged. It checks every asset even after a mismatch so the
// report names all of them.
func (v *Verifier) VerifyBatch(ctx context.Context, assets []*model.Asset) (*VerificationReport, error) {
	report := &VerificationReport{}
	for _, a := range assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(v.root, a.ArchivePath)
		d, err := v.hasher.HashFile(ctx, path)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			report.Mismatches = append(report.Mismatches, Mismatch{Asset: a, Expected: a.SHA256, Err: err})
		case d.Full != a.SHA256:
			report.Mismatches = append(report.Mismatches, Mismatch{Asset: a, Expected: a.SHA256, Actual: d.Full})
		default:
			report.Verified = append(report.Verified, a)
			continue
		}
		v.logger.Error("verification mismatch", "asset", a.ID, "path", path, "expected", a.SHA256)
	}

	v.logger.Info("batch verified", "verified", len(report.Verified), "mismatched", len(report.Mismatches))
	return report, nil
}
