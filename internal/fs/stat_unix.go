//go:build unix

package fs

import (
	"golang.org/x/sys/unix"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
)

// DeviceID returns the st_dev of path. Two paths on the same device can be
// hardlinked.
func (m *OSFilesystemManager) DeviceID(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, aupat.NewFilesystemError("stat", path, err)
	}
	return uint64(st.Dev), nil
}
