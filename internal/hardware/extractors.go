package hardware

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
)

// DefaultToolTimeout bounds a single metadata tool invocation.
const DefaultToolTimeout = 10 * time.Second

// ExiftoolExtractor reads Make and Model with the exiftool binary.
type ExiftoolExtractor struct {
	binary  string
	timeout time.Duration
}

var _ aupat.MetadataExtractor = (*ExiftoolExtractor)(nil)

// NewExiftoolExtractor uses binary, or "exiftool" from PATH when empty.
func NewExiftoolExtractor(binary string, timeout time.Duration) *ExiftoolExtractor {
	if binary == "" {
		binary = "exiftool"
	}
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	return &ExiftoolExtractor{binary: binary, timeout: timeout}
}

func (e *ExiftoolExtractor) Extract(ctx context.Context, path string) (map[string]string, error) {
	out, err := runTool(ctx, e.timeout, e.binary, "-json", "-Make", "-Model", path)
	if err != nil {
		return nil, err
	}

	var records []map[string]any
	if err := json.Unmarshal(out, &records); err != nil {
		return nil, fmt.Errorf("%w: exiftool output: %v", aupat.ErrMetadataToolUnavailable, err)
	}
	if len(records) == 0 {
		return map[string]string{}, nil
	}

	result := make(map[string]string)
	for k, v := range records[0] {
		result[strings.ToLower(k)] = fmt.Sprint(v)
	}
	return result, nil
}

// FFProbeExtractor reads container tags with ffprobe.
type FFProbeExtractor struct {
	binary  string
	timeout time.Duration
}

var _ aupat.MetadataExtractor = (*FFProbeExtractor)(nil)

// NewFFProbeExtractor uses binary, or "ffprobe" from PATH when empty.
func NewFFProbeExtractor(binary string, timeout time.Duration) *FFProbeExtractor {
	if binary == "" {
		binary = "ffprobe"
	}
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	return &FFProbeExtractor{binary: binary, timeout: timeout}
}

// Tag keys that carry the device make and model, in order of preference.
var (
	ffprobeMakeKeys  = []string{"make", "com.apple.quicktime.make", "com.android.manufacturer"}
	ffprobeModelKeys = []string{"model", "com.apple.quicktime.model", "com.android.model"}
)

func (e *FFProbeExtractor) Extract(ctx context.Context, path string) (map[string]string, error) {
	out, err := runTool(ctx, e.timeout, e.binary, "-v", "quiet", "-print_format", "json", "-show_format", path)
	if err != nil {
		return nil, err
	}

	var probe struct {
		Format struct {
			Tags map[string]string `json:"tags"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("%w: ffprobe output: %v", aupat.ErrMetadataToolUnavailable, err)
	}
	return normalizeTags(probe.Format.Tags), nil
}

// normalizeTags lowercases tag keys and fills "make" and "model" from the
// first vendor key that carries them.
func normalizeTags(tags map[string]string) map[string]string {
	result := make(map[string]string, len(tags)+2)
	for k, v := range tags {
		result[strings.ToLower(k)] = v
	}
	pick := func(keys []string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(result[k]); v != "" {
				return v
			}
		}
		return ""
	}
	result["make"] = pick(ffprobeMakeKeys)
	result["model"] = pick(ffprobeModelKeys)
	return result
}

// GoexifExtractor decodes EXIF in process. It handles JPEG and TIFF-based
// files and needs no external tool.
type GoexifExtractor struct{}

var _ aupat.MetadataExtractor = GoexifExtractor{}

func (GoexifExtractor) Extract(ctx context.Context, path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, aupat.NewFilesystemError("open", path, err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		// No EXIF block: metadata is readable but carries no device.
		return map[string]string{}, nil
	}

	result := make(map[string]string)
	for key, field := range map[string]exif.FieldName{"make": exif.Make, "model": exif.Model} {
		tag, err := x.Get(field)
		if err != nil || tag == nil {
			continue
		}
		v, err := tag.StringVal()
		if err != nil {
			continue
		}
		result[key] = strings.TrimRight(v, "\x00")
	}
	return result, nil
}

// runTool runs an external metadata tool. A missing binary, non-zero exit
// or timeout is reported as ErrMetadataToolUnavailable.
func runTool(ctx context.Context, timeout time.Duration, binary string, args ...string) ([]byte, error) {
	bin, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", aupat.ErrMetadataToolUnavailable, binary, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, bin, args...).Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %s timed out after %s", aupat.ErrMetadataToolUnavailable, binary, timeout)
		}
		return nil, fmt.Errorf("%w: %s: %v", aupat.ErrMetadataToolUnavailable, binary, err)
	}
	return out, nil
}
