//go:build !windows

package delivery

import (
	"os"
	"syscall"
)

// FreeSpace returns the bytes available to unprivileged users on the
// filesystem holding path, or 0 when it cannot be determined.
func FreeSpace(path string) int64 {
	stat, err := os.Stat(path)
	if err != nil || !stat.IsDir() {
		return 0
	}

	var fs syscall.Statfs_t
	if err := syscall.Statfs(path, &fs); err != nil {
		return 0
	}

	return int64(fs.Bavail) * int64(fs.Bsize)
}
