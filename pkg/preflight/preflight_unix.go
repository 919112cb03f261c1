//go:build !windows

package preflight

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// checkWritable asks the kernel whether the effective user may write into dir.
func checkWritable(dir string) error {
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("report directory %s is not writable: %w", dir, err)
	}
	return nil
}

func checkVolumeExists(string) error {
	return nil
}
