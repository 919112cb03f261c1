// Package store persists the state an analyze run leaves for the next one:
// the full manifest and a minimal report.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-deploy/pkg/analysis"
	"github.com/paulschiretz/pgl-deploy/pkg/fingerprint"
	"github.com/paulschiretz/pgl-deploy/pkg/util"
)

const (
	// ManifestFileName holds every file record of the last build.
	ManifestFileName = "buildInfo.json"
	// ReportFileName holds the minimal report of the last build.
	ReportFileName = "report.json"
)

// BuildInfo is the content of the manifest file.
type BuildInfo struct {
	RunID        string                   `json:"runId"`
	TimestampUTC time.Time                `json:"timestampUTC"`
	Files        []fingerprint.FileRecord `json:"files"`
}

// Load reads the state of the previous run from dir. If either file is
// missing the run is treated as a first build and an empty state is returned
// without error. Unreadable or corrupt files are errors.
func Load(dir string) (analysis.Previous, error) {
	var info BuildInfo
	if err := readJSON(filepath.Join(dir, ManifestFileName), &info); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return analysis.Previous{}, nil
		}
		return analysis.Previous{}, err
	}

	var report analysis.Report
	if err := readJSON(filepath.Join(dir, ReportFileName), &report); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return analysis.Previous{}, nil
		}
		return analysis.Previous{}, err
	}

	return analysis.Previous{Manifest: info.Files, Report: &report}, nil
}

// Save writes the manifest and the minimal report of r into dir.
func Save(dir string, r analysis.Report) error {
	if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("could not create report directory %s: %w", dir, err)
	}

	files := r.Manifest
	if files == nil {
		files = []fingerprint.FileRecord{}
	}
	info := BuildInfo{RunID: r.RunID, TimestampUTC: r.TimestampUTC, Files: files}
	if err := writeJSONAtomic(filepath.Join(dir, ManifestFileName), info); err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(dir, ReportFileName), r.Minimal())
}

func readJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err // Callers check fs.ErrNotExist.
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("could not parse %s: %w. It may be corrupt", path, err)
	}
	return nil
}

// writeJSONAtomic writes to a temp file next to path and renames it, so a
// crash never leaves a half-written state file behind.
func writeJSONAtomic(path string, v any) (retErr error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temp file for %s: %w", path, err)
	}
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("could not write %s: %w", path, err)
	}
	if err := tmp.Chmod(util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("could not set permissions on %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not move %s into place: %w", path, err)
	}
	return nil
}
