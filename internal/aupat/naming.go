package aupat

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bizzlechizzle/aupat-sub000/internal/model"
)

// DeriveName builds the archive filename
// {location}[-{sub_location}]-{short_digest}.{ext} with a lowercase extension.
func DeriveName(locationID, subLocationID, shortDigest, ext string) string {
	var b strings.Builder
	b.WriteString(locationID)
	if subLocationID != "" {
		b.WriteByte('-')
		b.WriteString(subLocationID)
	}
	b.WriteByte('-')
	b.WriteString(shortDigest)
	b.WriteByte('.')
	b.WriteString(strings.ToLower(strings.TrimPrefix(ext, ".")))
	return b.String()
}

// LocationDir returns the location's archive prefix, relative to the archive root.
func LocationDir(loc *model.Location) string {
	return loc.ArchivePrefix()
}

// CategoryDir returns the directory holding originals of one class and
// hardware category, relative to the archive root.
func CategoryDir(loc *model.Location, class model.AssetClass, category model.HardwareCategory) string {
	return filepath.Join(LocationDir(loc), string(class), "original_"+string(category))
}

// DeriveArchivePath returns the relative archive path of filename.
func DeriveArchivePath(loc *model.Location, class model.AssetClass, category model.HardwareCategory, filename string) string {
	return filepath.Join(CategoryDir(loc, class, category), filename)
}

// ValidateLocation checks the fields that become path segments. Names are
// used verbatim, so anything that would escape or split a segment is
// rejected here, once, when the location is created.
func ValidateLocation(loc *model.Location) error {
	fields := []struct{ name, value string }{
		{"name", loc.Name},
		{"region", loc.Region},
		{"type", loc.Type},
	}
	for _, f := range fields {
		if err := validateSegment(f.value); err != nil {
			return fmt.Errorf("location %s: %w", f.name, err)
		}
	}
	return nil
}

// ValidateSubLocation checks a sub-location's name.
func ValidateSubLocation(sub *model.SubLocation) error {
	if err := validateSegment(sub.Name); err != nil {
		return fmt.Errorf("sub-location name: %w", err)
	}
	return nil
}

func validateSegment(s string) error {
	switch {
	case strings.TrimSpace(s) == "":
		return fmt.Errorf("must not be empty")
	case s == "." || s == "..":
		return fmt.Errorf("%q is not a valid path segment", s)
	case strings.ContainsAny(s, "/\\\x00"):
		return fmt.Errorf("%q contains a path separator or NUL", s)
	}
	return nil
}
