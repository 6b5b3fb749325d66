package hardware

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
	"github.com/bizzlechizzle/aupat-sub000/internal/model"
)

type fakeExtractor struct {
	meta  map[string]string
	err   error
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, path string) (map[string]string, error) {
	f.calls++
	return f.meta, f.err
}

func TestRuleTable_Match(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		make   string
		want   model.HardwareCategory
		wantOK bool
	}{
		{make: "Canon", want: "dslr", wantOK: true},
		{make: "NIKON CORPORATION", want: "dslr", wantOK: true},
		{make: "Apple", want: "phone", wantOK: true},
		{make: "samsung", want: "phone", wantOK: true},
		{make: "DJI", want: "drone", wantOK: true},
		{make: "GoPro", want: "action", wantOK: true},
		{make: "Zorki-4", wantOK: false},
		{make: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.make, func(t *testing.T) {
			got, ok := rules.Match(tt.make)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Match(%q) = %q, %v, want %q, %v", tt.make, got, ok, tt.want, tt.wantOK)
			}
		})
	}

	t.Run("first matching rule wins", func(t *testing.T) {
		rules, err := NewRuleTable([]Rule{
			{Name: "first", Makes: []string{"acme"}},
			{Name: "second", Makes: []string{"acme"}},
		})
		if err != nil {
			t.Fatalf("NewRuleTable() error = %v", err)
		}
		if got, _ := rules.Match("ACME Optics"); got != "first" {
			t.Errorf("Match() = %q, want first", got)
		}
	})
}

func TestNewRuleTable(t *testing.T) {
	tests := []struct {
		name    string
		rules   []Rule
		wantErr bool
	}{
		{name: "valid", rules: []Rule{{Name: "dslr", Makes: []string{"canon"}}}},
		{name: "empty table", rules: nil},
		{name: "reserved other", rules: []Rule{{Name: "other", Makes: []string{"x"}}}, wantErr: true},
		{name: "reserved unknown", rules: []Rule{{Name: "unknown", Makes: []string{"x"}}}, wantErr: true},
		{name: "uppercase name", rules: []Rule{{Name: "DSLR", Makes: []string{"canon"}}}, wantErr: true},
		{name: "path separator in name", rules: []Rule{{Name: "a/b", Makes: []string{"canon"}}}, wantErr: true},
		{name: "no makes", rules: []Rule{{Name: "dslr"}}, wantErr: true},
		{name: "blank make", rules: []Rule{{Name: "dslr", Makes: []string{"  "}}}, wantErr: true},
		{
			name:    "duplicate name",
			rules:   []Rule{{Name: "dslr", Makes: []string{"canon"}}, {Name: "dslr", Makes: []string{"nikon"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuleTable(tt.rules)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRuleTable() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("table is not affected by later changes to the input", func(t *testing.T) {
		in := []Rule{{Name: "dslr", Makes: []string{"canon"}}}
		rules, err := NewRuleTable(in)
		if err != nil {
			t.Fatalf("NewRuleTable() error = %v", err)
		}
		in[0].Makes[0] = "zorki"
		if _, ok := rules.Match("Canon"); !ok {
			t.Error("table changed after input was modified")
		}
	})
}

func TestRuleTable_Categories(t *testing.T) {
	got := DefaultRules().Categories()
	want := []model.HardwareCategory{"dslr", "phone", "drone", "action", model.CategoryOther, model.CategoryUnknown}
	if !slices.Equal(got, want) {
		t.Errorf("Categories() = %v, want %v", got, want)
	}
}

func TestLoadRules(t *testing.T) {
	t.Run("round trips through yaml", func(t *testing.T) {
		data, err := DefaultRules().Marshal()
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		path := filepath.Join(t.TempDir(), "rules.yaml")
		if err := os.WriteFile(path, data, 0644); err != nil {
			t.Fatal(err)
		}

		rules, err := LoadRules(path)
		if err != nil {
			t.Fatalf("LoadRules() error = %v", err)
		}
		if !slices.Equal(rules.Categories(), DefaultRules().Categories()) {
			t.Errorf("Categories() = %v", rules.Categories())
		}
	})

	t.Run("custom table", func(t *testing.T) {
		rules, err := ParseRules([]byte("categories:\n  - name: film\n    makes: [zorki, kiev]\n"))
		if err != nil {
			t.Fatalf("ParseRules() error = %v", err)
		}
		if got, ok := rules.Match("Zorki-4"); !ok || got != "film" {
			t.Errorf("Match() = %q, %v, want film", got, ok)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		if _, err := ParseRules([]byte("categories: [")); err == nil {
			t.Error("expected error for invalid yaml")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestClassifier_Classify(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		class    model.AssetClass
		meta     map[string]string
		err      error
		want     model.HardwareCategory
		wantMeta bool
	}{
		{name: "known make", class: model.ClassImage, meta: map[string]string{"make": "Canon", "model": "EOS 5D"}, want: "dslr", wantMeta: true},
		{name: "phone", class: model.ClassImage, meta: map[string]string{"make": "Apple", "model": "iPhone 13"}, want: "phone", wantMeta: true},
		{name: "unmatched make", class: model.ClassImage, meta: map[string]string{"make": "Zorki-4"}, want: model.CategoryOther, wantMeta: true},
		{name: "empty make", class: model.ClassImage, meta: map[string]string{"model": "X"}, want: model.CategoryUnknown},
		{name: "extractor failure", class: model.ClassImage, err: aupat.ErrMetadataToolUnavailable, want: model.CategoryUnknown},
		{name: "video uses the video extractor", class: model.ClassVideo, meta: map[string]string{"make": "DJI"}, want: "drone", wantMeta: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext := &fakeExtractor{meta: tt.meta, err: tt.err}
			c := NewClassifier(DefaultRules(), ext, ext, aupat.NewNopLogger())

			got, meta := c.Classify(ctx, "/staging/file", tt.class)
			if got != tt.want {
				t.Errorf("Classify() category = %q, want %q", got, tt.want)
			}
			if (meta != nil) != tt.wantMeta {
				t.Errorf("Classify() meta = %v, wantMeta %v", meta, tt.wantMeta)
			}
			if meta != nil && meta.Make != tt.meta["make"] {
				t.Errorf("Make = %q, want %q", meta.Make, tt.meta["make"])
			}
		})
	}

	t.Run("documents skip metadata extraction", func(t *testing.T) {
		ext := &fakeExtractor{meta: map[string]string{"make": "Canon"}}
		c := NewClassifier(DefaultRules(), ext, ext, aupat.NewNopLogger())

		got, meta := c.Classify(ctx, "/staging/report.pdf", model.ClassDocument)
		if got != model.CategoryUnknown || meta != nil {
			t.Errorf("Classify() = %q, %v, want unknown, nil", got, meta)
		}
		if ext.calls != 0 {
			t.Errorf("extractor called %d times, want 0", ext.calls)
		}
	})

	t.Run("nil extractor yields unknown", func(t *testing.T) {
		c := NewClassifier(DefaultRules(), nil, nil, aupat.NewNopLogger())
		if got, _ := c.Classify(ctx, "/staging/a.jpg", model.ClassImage); got != model.CategoryUnknown {
			t.Errorf("Classify() = %q, want unknown", got)
		}
	})
}

func TestNormalizeTags(t *testing.T) {
	got := normalizeTags(map[string]string{
		"com.apple.quicktime.make":  "Apple",
		"com.apple.quicktime.model": "iPhone 13",
		"Encoder":                   "Lavf",
	})
	if got["make"] != "Apple" || got["model"] != "iPhone 13" {
		t.Errorf("make/model = %q/%q, want Apple/iPhone 13", got["make"], got["model"])
	}
	if got["encoder"] != "Lavf" {
		t.Errorf("encoder = %q, want Lavf", got["encoder"])
	}
}

func TestExtractors_MissingTool(t *testing.T) {
	ctx := context.Background()
	missing := filepath.Join(t.TempDir(), "no-such-tool")

	for name, ext := range map[string]aupat.MetadataExtractor{
		"exiftool": NewExiftoolExtractor(missing, 0),
		"ffprobe":  NewFFProbeExtractor(missing, 0),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ext.Extract(ctx, "/staging/a.jpg")
			if !errors.Is(err, aupat.ErrMetadataToolUnavailable) {
				t.Errorf("Extract() error = %v, want ErrMetadataToolUnavailable", err)
			}
		})
	}
}

func TestGoexifExtractor(t *testing.T) {
	t.Run("file without exif has no make", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plain.jpg")
		if err := os.WriteFile(path, []byte("not really a jpeg"), 0644); err != nil {
			t.Fatal(err)
		}
		got, err := GoexifExtractor{}.Extract(context.Background(), path)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if got["make"] != "" {
			t.Errorf("make = %q, want empty", got["make"])
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := GoexifExtractor{}.Extract(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
		if !errors.Is(err, aupat.ErrFilesystem) {
			t.Errorf("Extract() error = %v, want ErrFilesystem", err)
		}
	})
}
