//go:build windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// checkWritable creates and removes a temporary file, since ACLs make a
// permission-bit check meaningless on Windows.
func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".pgl-deploy-writetest-*.tmp")
	if err != nil {
		return fmt.Errorf("report directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	_ = os.Remove(name)
	return nil
}

// checkVolumeExists verifies that the drive or network share root of path
// exists. For "Z:\reports" it checks "Z:\".
func checkVolumeExists(path string) error {
	volume := filepath.VolumeName(path)
	if volume == "" {
		return nil
	}

	checkVol := volume
	if !strings.HasSuffix(checkVol, string(filepath.Separator)) {
		checkVol += string(filepath.Separator)
	}
	checkVol = filepath.Clean(checkVol)

	if _, err := os.Stat(checkVol); os.IsNotExist(err) {
		return fmt.Errorf("volume root does not exist: %s. Ensure the drive is connected", checkVol)
	}
	return nil
}
