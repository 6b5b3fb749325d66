package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IgnoreFileName is the per-directory file listing intake patterns to skip.
const IgnoreFileName = ".aupatignore"

// defaultIgnorePatterns cover files that cameras, card readers and
// browsers leave next to media and that are never worth importing.
var defaultIgnorePatterns = []string{
	IgnoreFileName,
	"Thumbs.db",
	"desktop.ini",
	"*.part",
	"*.crdownload",
}

// rule is one parsed pattern. Patterns containing '/' are matched against
// the slash-separated path relative to the scanned directory; others
// against the basename.
type rule struct {
	glob     string
	anchored bool
}

// IgnoreMatcher decides which discovered paths intake skips.
type IgnoreMatcher struct {
	rules []rule
}

// NewIgnoreMatcher parses raw pattern lines. Blank lines and lines starting
// with '#' are skipped.
func NewIgnoreMatcher(lines []string) *IgnoreMatcher {
	return (&IgnoreMatcher{}).With(lines)
}

// With returns a matcher holding m's rules plus lines.
func (m *IgnoreMatcher) With(lines []string) *IgnoreMatcher {
	out := &IgnoreMatcher{rules: append([]rule(nil), m.rules...)}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out.rules = append(out.rules, rule{glob: line, anchored: strings.Contains(line, "/")})
	}
	return out
}

// Match reports whether rel, a path relative to the scanned directory,
// is ignored. Malformed patterns never match.
func (m *IgnoreMatcher) Match(rel string) bool {
	if rel == "" {
		return false
	}
	slashed := filepath.ToSlash(rel)
	base := path.Base(slashed)

	for _, r := range m.rules {
		subject := base
		if r.anchored {
			subject = slashed
		}
		if ok, err := path.Match(r.glob, subject); err == nil && ok {
			return true
		}
	}
	return false
}

// ParseIgnoreFile returns the raw lines of an ignore file, or nil when the
// file does not exist.
func ParseIgnoreFile(name string) ([]string, error) {
	f, err := os.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file %s: %w", name, err)
	}
	return lines, nil
}
