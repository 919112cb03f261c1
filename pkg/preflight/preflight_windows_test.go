//go:build windows

package preflight

import (
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/sys/windows"
)

func TestCheckReportDirWritable_Windows(t *testing.T) {
	t.Run("Windows - Error on Non-Existent Drive", func(t *testing.T) {
		// Helper to find a drive letter that is guaranteed not to exist on this system.
		findFirstNonExistentDrive := func() string {
			drives, err := windows.GetLogicalDrives()
			if err != nil {
				t.Fatalf("Failed to get logical drives: %v", err)
			}

			for letter := 'A'; letter <= 'Z'; letter++ {
				driveBit := uint32(1) << (letter - 'A')
				if (drives & driveBit) == 0 {
					return string(letter) + `:\`
				}
			}
			return ""
		}

		nonExistentDrive := findFirstNonExistentDrive()
		if nonExistentDrive == "" {
			t.Skip("could not find a non-existent drive letter; all letters A-Z are in use")
		}

		err := CheckReportDirWritable(filepath.Join(nonExistentDrive, "project", "buildReport"))
		if err == nil {
			t.Fatal("expected an error for a non-existent drive, but got nil")
		}
		if !strings.Contains(err.Error(), "volume root does not exist") {
			t.Errorf("expected error about missing volume, but got: %v", err)
		}
	})

	t.Run("Happy Path - Probe file is removed", func(t *testing.T) {
		dir := t.TempDir()
		if err := CheckReportDirWritable(dir); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		matches, _ := filepath.Glob(filepath.Join(dir, ".pgl-deploy-writetest-*"))
		if len(matches) != 0 {
			t.Errorf("expected temporary file to be removed, found %v", matches)
		}
	})
}
