// Package preflight provides validation that runs before an analyze or
// deploy begins. The checks are stateless and idempotent, with the exception
// of the report directory check, which creates the directory if needed.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Run performs the checks enabled in p and returns the first failure.
func Run(p *Plan, paths Paths) error {
	if p.BuildRootAccessible && paths.BuildDir != "" {
		if err := CheckBuildRootAccessible(paths.BuildDir); err != nil {
			return err
		}
	}
	if p.PathNesting && paths.BuildDir != "" && paths.ReportDir != "" {
		if err := CheckPathNesting(paths.BuildDir, paths.ReportDir); err != nil {
			return err
		}
	}
	if p.ReportDirWritable && paths.ReportDir != "" {
		if err := CheckReportDirWritable(paths.ReportDir); err != nil {
			return err
		}
	}
	if p.LocalPathAccessible && paths.LocalPath != "" {
		if err := CheckLocalPathAccessible(paths.LocalPath); err != nil {
			return err
		}
	}
	return nil
}

// CheckBuildRootAccessible validates that the build root exists and is a directory.
func CheckBuildRootAccessible(buildDir string) error {
	info, err := os.Stat(buildDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("build directory %s does not exist", buildDir)
		}
		return fmt.Errorf("cannot stat build directory %s: %w", buildDir, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("build path %s is not a directory", buildDir)
	}

	return nil
}

// CheckLocalPathAccessible validates that the deploy source exists. It may be
// a file, an archive or a directory.
func CheckLocalPathAccessible(localPath string) error {
	if _, err := os.Stat(localPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("local path %s does not exist", localPath)
		}
		return fmt.Errorf("cannot stat local path %s: %w", localPath, err)
	}
	return nil
}

// CheckReportDirWritable ensures the report directory exists, creating it if
// needed, and that the current user may write into it.
func CheckReportDirWritable(reportDir string) error {
	if err := checkVolumeExists(reportDir); err != nil {
		return err
	}

	info, err := os.Stat(reportDir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(reportDir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory %s: %w", reportDir, err)
		}
	case err != nil:
		return fmt.Errorf("cannot access report directory %s: %w", reportDir, err)
	case !info.IsDir():
		return fmt.Errorf("report path exists but is not a directory: %s", reportDir)
	}

	return checkWritable(reportDir)
}

// CheckPathNesting rejects a report directory inside the build directory,
// where its archive would become part of the next build.
func CheckPathNesting(buildDir, reportDir string) error {
	absBuild, err := filepath.Abs(buildDir)
	if err != nil {
		return fmt.Errorf("cannot resolve build directory %s: %w", buildDir, err)
	}
	absReport, err := filepath.Abs(reportDir)
	if err != nil {
		return fmt.Errorf("cannot resolve report directory %s: %w", reportDir, err)
	}

	rel, err := filepath.Rel(absBuild, absReport)
	if err != nil {
		return nil
	}
	if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return fmt.Errorf("report directory %s must not be inside the build directory %s", reportDir, buildDir)
	}
	return nil
}
