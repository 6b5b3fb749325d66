package output

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVisualTree(t *testing.T) {
	tree := NewVisualTree("root")
	tree.InsertFile("a/b/one.jpg")
	tree.InsertFile("a/two.jpg")
	tree.InsertDir("c", "c/ (custom)")

	got := tree.Render()
	for _, want := range []string{"root", "a/", "b/", "one.jpg", "two.jpg", "c/ (custom)"} {
		if !strings.Contains(got, want) {
			t.Errorf("Render() missing %q:\n%s", want, got)
		}
	}
	if strings.Count(got, "a/") != 1 {
		t.Errorf("directory a/ rendered more than once:\n%s", got)
	}
}

func TestRenderTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ny-Riverside Mill-loc0001")
	for _, dir := range []string{"photos/original_dslr", "photos/original_phone", "videos", ".hidden"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range []string{"photos/original_dslr/a.jpg", "photos/original_dslr/b.jpg", "photos/original_phone/c.heic", ".hidden/x", ".aupat.lock"} {
		if err := os.WriteFile(filepath.Join(root, f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := RenderTree(root)
	if err != nil {
		t.Fatalf("RenderTree() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if lines[0] != "ny-Riverside Mill-loc0001/" {
		t.Errorf("root line = %q", lines[0])
	}
	for _, want := range []string{"photos/", "original_dslr/ (2 files)", "original_phone/ (1 file)", "videos/"} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderTree() missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, ".hidden") {
		t.Errorf("hidden directory rendered:\n%s", got)
	}
	if len(lines) != 5 {
		t.Errorf("got %d lines, want 5:\n%s", len(lines), got)
	}
}

func TestRenderTree_Missing(t *testing.T) {
	if _, err := RenderTree(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("RenderTree() expected error for missing root")
	}
}
