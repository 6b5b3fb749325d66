package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestOSFilesystemManager_Resolve(t *testing.T) {
	m := NewOSFilesystemManager(nil)
	dir := t.TempDir()

	t.Run("regular file", func(t *testing.T) {
		file := filepath.Join(dir, "a.jpg")
		writeFile(t, file, "x")

		p, err := m.Resolve(file)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if p.IsDir() || p.String() != file || p.Ext() != "jpg" {
			t.Errorf("Resolve() = %v dir=%v ext=%q", p, p.IsDir(), p.Ext())
		}
	})

	t.Run("directory", func(t *testing.T) {
		p, err := m.Resolve(dir)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if !p.IsDir() {
			t.Error("IsDir() = false, want true")
		}
	})

	t.Run("symlink rejected", func(t *testing.T) {
		link := filepath.Join(dir, "link.jpg")
		if err := os.Symlink(filepath.Join(dir, "a.jpg"), link); err != nil {
			t.Fatalf("creating symlink: %v", err)
		}
		if _, err := m.Resolve(link); err == nil {
			t.Error("Resolve() accepted a symlink")
		}
	})

	t.Run("missing path is a filesystem error", func(t *testing.T) {
		_, err := m.Resolve(filepath.Join(dir, "missing"))
		if !errors.Is(err, aupat.ErrFilesystem) {
			t.Errorf("Resolve() error = %v, want ErrFilesystem", err)
		}
	})
}

func TestOSFilesystemManager_FindFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"IMG_10.jpg", "IMG_2.jpg", "IMG_1.jpg",
		".hidden.jpg",
		"clip.mp4.part",
		filepath.Join("card", "MVI_3.mov"),
		filepath.Join("card", "sidecar.xmp"),
		filepath.Join(".trash", "old.jpg"),
	} {
		writeFile(t, filepath.Join(dir, name), name)
	}
	writeFile(t, filepath.Join(dir, IgnoreFileName), "*.xmp\n")

	m := NewOSFilesystemManager([]string{"*.tmp"})
	root, err := m.Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	names := func(paths []*aupat.Path) []string {
		var out []string
		for _, p := range paths {
			rel, _ := filepath.Rel(dir, p.String())
			out = append(out, rel)
		}
		return out
	}

	t.Run("recursive natural order", func(t *testing.T) {
		paths, err := m.FindFiles(root, true)
		if err != nil {
			t.Fatalf("FindFiles() error = %v", err)
		}
		got := names(paths)
		want := []string{"IMG_1.jpg", "IMG_2.jpg", "IMG_10.jpg", filepath.Join("card", "MVI_3.mov")}
		if len(got) != len(want) {
			t.Fatalf("FindFiles() = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("FindFiles()[%d] = %s, want %s", i, got[i], want[i])
			}
		}
	})

	t.Run("top level only", func(t *testing.T) {
		paths, err := m.FindFiles(root, false)
		if err != nil {
			t.Fatalf("FindFiles() error = %v", err)
		}
		if got := names(paths); len(got) != 3 {
			t.Errorf("FindFiles() = %v, want the three top-level images", got)
		}
	})

	t.Run("file is not a directory", func(t *testing.T) {
		file, err := m.Resolve(filepath.Join(dir, "IMG_1.jpg"))
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if _, err := m.FindFiles(file, true); err == nil {
			t.Error("FindFiles() on a file should fail")
		}
	})
}

func TestOSFilesystemManager_LinkAndCopy(t *testing.T) {
	m := NewOSFilesystemManager(nil)
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	writeFile(t, src, "pixels")
	mtime := time.Date(2019, 5, 4, 3, 2, 1, 0, time.UTC)
	if err := os.Chtimes(src, mtime, mtime); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	t.Run("link shares the inode", func(t *testing.T) {
		dst := filepath.Join(dir, "linked.jpg")
		if err := m.Link(src, dst); err != nil {
			t.Fatalf("Link() error = %v", err)
		}
		a, _ := os.Stat(src)
		b, _ := os.Stat(dst)
		if !os.SameFile(a, b) {
			t.Error("Link() did not create a hard link")
		}
		if err := m.Link(src, dst); !errors.Is(err, aupat.ErrFilesystem) {
			t.Errorf("Link() onto existing dst error = %v, want ErrFilesystem", err)
		}
	})

	t.Run("copy preserves content and mtime", func(t *testing.T) {
		dst := filepath.Join(dir, "copied.jpg")
		if err := m.Copy(context.Background(), src, dst); err != nil {
			t.Fatalf("Copy() error = %v", err)
		}
		data, err := os.ReadFile(dst)
		if err != nil || string(data) != "pixels" {
			t.Fatalf("copied content = %q, %v", data, err)
		}
		info, _ := os.Stat(dst)
		if !info.ModTime().Equal(mtime) {
			t.Errorf("ModTime = %v, want %v", info.ModTime(), mtime)
		}
		if err := m.Copy(context.Background(), src, dst); err == nil {
			t.Error("Copy() onto existing dst should fail")
		}

		leftovers, _ := filepath.Glob(filepath.Join(dir, ".aupat-copy-*"))
		if len(leftovers) != 0 {
			t.Errorf("temporary files left behind: %v", leftovers)
		}
	})

	t.Run("cancelled copy leaves nothing behind", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		dst := filepath.Join(dir, "cancelled.jpg")
		if err := m.Copy(ctx, src, dst); !errors.Is(err, context.Canceled) {
			t.Fatalf("Copy() error = %v, want context.Canceled", err)
		}
		if _, err := os.Stat(dst); !os.IsNotExist(err) {
			t.Error("cancelled Copy() created dst")
		}
		leftovers, _ := filepath.Glob(filepath.Join(dir, ".aupat-copy-*"))
		if len(leftovers) != 0 {
			t.Errorf("temporary files left behind: %v", leftovers)
		}
	})

	t.Run("device id matches within a directory", func(t *testing.T) {
		a, err := m.DeviceID(src)
		if err != nil {
			t.Fatalf("DeviceID() error = %v", err)
		}
		b, err := m.DeviceID(dir)
		if err != nil {
			t.Fatalf("DeviceID() error = %v", err)
		}
		if a != b {
			t.Errorf("DeviceID() differs: %d vs %d", a, b)
		}
	})
}

func TestOSFilesystemManager_Directories(t *testing.T) {
	m := NewOSFilesystemManager(nil)
	dir := filepath.Join(t.TempDir(), "image")

	made, err := m.Mkdir(dir)
	if err != nil || !made {
		t.Fatalf("Mkdir() = %v, %v; want true, nil", made, err)
	}
	made, err = m.Mkdir(dir)
	if err != nil || made {
		t.Fatalf("second Mkdir() = %v, %v; want false, nil", made, err)
	}
	if err := m.CheckWritable(dir); err != nil {
		t.Errorf("CheckWritable() error = %v", err)
	}

	file := filepath.Join(dir, "a.jpg")
	writeFile(t, file, "x")
	if _, err := m.Mkdir(file); err == nil {
		t.Error("Mkdir() over a file should fail")
	}

	removed, err := m.RemoveDirIfEmpty(dir)
	if err != nil || removed {
		t.Fatalf("RemoveDirIfEmpty(non-empty) = %v, %v; want false, nil", removed, err)
	}
	if err := m.Remove(file); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	removed, err = m.RemoveDirIfEmpty(dir)
	if err != nil || !removed {
		t.Fatalf("RemoveDirIfEmpty(empty) = %v, %v; want true, nil", removed, err)
	}

	exists, err := m.Exists(dir)
	if err != nil || exists {
		t.Errorf("Exists() = %v, %v; want false, nil", exists, err)
	}
}
