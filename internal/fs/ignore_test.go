package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		rel      string
		want     bool
	}{
		{"basename glob in root", []string{"*.part"}, "clip.mp4.part", true},
		{"basename glob in subdirectory", []string{"*.part"}, filepath.Join("card1", "clip.part"), true},
		{"basename glob other extension", []string{"*.part"}, "clip.mp4", false},
		{"exact sidecar name", []string{"Thumbs.db"}, filepath.Join("DCIM", "Thumbs.db"), true},
		{"anchored pattern", []string{"DCIM/MISC"}, filepath.Join("DCIM", "MISC"), true},
		{"anchored pattern elsewhere", []string{"DCIM/MISC"}, filepath.Join("other", "MISC"), false},
		{"anchored glob", []string{"exports/*.xmp"}, filepath.Join("exports", "IMG_1.xmp"), true},
		{"character class", []string{"*.[Tt][Hh][Mm]"}, "MVI_0001.THM", true},
		{"malformed pattern never matches", []string{"[*.jpg"}, "a.jpg", false},
		{"no patterns", nil, "IMG_0001.JPG", false},
		{"empty path", []string{"*"}, "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NewIgnoreMatcher(tt.patterns).Match(tt.rel); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.rel, got, tt.want)
			}
		})
	}
}

func TestIgnoreMatcher_With(t *testing.T) {
	base := NewIgnoreMatcher([]string{"*.part", "", "# comment"})
	if len(base.rules) != 1 {
		t.Fatalf("len(rules) = %d, want 1", len(base.rules))
	}

	extended := base.With([]string{"*.xmp"})
	if !extended.Match("a.xmp") || !extended.Match("a.part") {
		t.Error("extended matcher should match both pattern sets")
	}
	if base.Match("a.xmp") {
		t.Error("With must not modify the receiver")
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("reads raw lines", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), IgnoreFileName)
		if err := os.WriteFile(path, []byte("*.xmp\n# sidecars\n\n*.thm\n"), 0o644); err != nil {
			t.Fatalf("writing ignore file: %v", err)
		}

		lines, err := ParseIgnoreFile(path)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if len(lines) != 4 {
			t.Fatalf("len(lines) = %d, want 4", len(lines))
		}
		if got := len(NewIgnoreMatcher(lines).rules); got != 2 {
			t.Errorf("parsed rules = %d, want 2", got)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		lines, err := ParseIgnoreFile(filepath.Join(t.TempDir(), IgnoreFileName))
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if lines != nil {
			t.Errorf("lines = %v, want nil", lines)
		}
	})
}
