package hardware

import (
	"context"
	"strings"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
	"github.com/bizzlechizzle/aupat-sub000/internal/model"
)

// Classifier buckets files by capture hardware using a rule table and
// per-class metadata extractors.
type Classifier struct {
	rules  *RuleTable
	still  aupat.MetadataExtractor
	video  aupat.MetadataExtractor
	logger aupat.Logger
}

var _ aupat.Classifier = (*Classifier)(nil)

// NewClassifier creates a classifier. A nil extractor classifies every
// file of that class as unknown.
func NewClassifier(rules *RuleTable, still, video aupat.MetadataExtractor, logger aupat.Logger) *Classifier {
	return &Classifier{rules: rules, still: still, video: video, logger: logger}
}

func (c *Classifier) Categories() []model.HardwareCategory {
	return c.rules.Categories()
}

// Classify never fails. Documents, missing tools, extraction errors and
// metadata without a make all yield unknown; a make no rule matches
// yields other.
func (c *Classifier) Classify(ctx context.Context, path string, class model.AssetClass) (model.HardwareCategory, *aupat.DeviceMetadata) {
	var extractor aupat.MetadataExtractor
	switch class {
	case model.ClassImage:
		extractor = c.still
	case model.ClassVideo:
		extractor = c.video
	}
	if extractor == nil {
		return model.CategoryUnknown, nil
	}

	raw, err := extractor.Extract(ctx, path)
	if err != nil {
		c.logger.Warn("metadata extraction failed", "path", path, "error", err)
		return model.CategoryUnknown, nil
	}

	meta := &aupat.DeviceMetadata{
		Make:  strings.TrimSpace(raw["make"]),
		Model: strings.TrimSpace(raw["model"]),
		Raw:   raw,
	}
	if meta.Make == "" {
		c.logger.Debug("no device make in metadata", "path", path)
		return model.CategoryUnknown, nil
	}

	if cat, ok := c.rules.Match(meta.Make); ok {
		return cat, meta
	}
	return model.CategoryOther, meta
}
