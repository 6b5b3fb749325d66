package aupat

import (
	"context"

	"github.com/bizzlechizzle/aupat-sub000/internal/model"
)

// DeviceMetadata is the capture-device information extracted from a file.
type DeviceMetadata struct {
	Make  string
	Model string // may be empty
	Raw   map[string]string
}

// MetadataExtractor reads device metadata from a file. Implementations
// return ErrMetadataToolUnavailable when the tool is absent, fails or
// times out. The returned map carries at least "make" and, when known,
// "model".
type MetadataExtractor interface {
	Extract(ctx context.Context, path string) (map[string]string, error)
}

// Classifier maps a file to a hardware category. It never fails: metadata
// problems degrade to model.CategoryUnknown with nil metadata.
type Classifier interface {
	Classify(ctx context.Context, path string, class model.AssetClass) (model.HardwareCategory, *DeviceMetadata)

	// Categories returns every category the classifier can produce,
	// including other and unknown, in rule table order.
	Categories() []model.HardwareCategory
}
