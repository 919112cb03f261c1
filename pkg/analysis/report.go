// Package analysis turns the manifests of two consecutive builds into a
// report: change statistics, the incremental deploy recommendation and the
// cache priority ranking.
package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paulschiretz/pgl-deploy/pkg/buildinfo"
	"github.com/paulschiretz/pgl-deploy/pkg/diff"
	"github.com/paulschiretz/pgl-deploy/pkg/fingerprint"
)

// DefaultDeployThreshold is the share of the total build size a net change
// may reach while an incremental deploy is still recommended.
const DefaultDeployThreshold = 0.5

// Statistic summarizes a build relative to the previous one.
type Statistic struct {
	// DeployCount is the number of distinct builds seen so far.
	DeployCount uint32 `json:"deployCount"`
	TotalSize   uint64 `json:"totalSize"`
	// DiffSize is the net size change against the previous build and may be negative.
	DiffSize  int64  `json:"diffSize"`
	FileCount uint32 `json:"fileCount"`
}

// Report is the outcome of one analyze run.
type Report struct {
	RunID                   string    `json:"runId"`
	TimestampUTC            time.Time `json:"timestampUTC"`
	Version                 string    `json:"version"`
	Statistic               Statistic `json:"statistic"`
	Hash                    string    `json:"hash"`
	SameBuild               bool      `json:"sameBuild"`
	FirstBuild              bool      `json:"firstBuild"`
	ShouldIncrementalDeploy bool      `json:"shouldIncrementalDeploy"`

	Diff     *diff.Result             `json:"diff,omitempty"`
	Manifest []fingerprint.FileRecord `json:"manifest,omitempty"`
}

// Previous is the persisted state of the last run. A nil Report means there
// was no last run.
type Previous struct {
	Manifest []fingerprint.FileRecord
	Report   *Report
}

// Minimal returns a copy without the diff lists and the manifest, the form
// stored as report.json.
func (r Report) Minimal() Report {
	r.Diff = nil
	r.Manifest = nil
	return r
}

// ManifestHash returns the sha256 hex digest of the JSON encoding of the
// path-sorted records.
func ManifestHash(records []fingerprint.FileRecord) (string, error) {
	sorted := make([]fingerprint.FileRecord, len(records))
	copy(sorted, records)
	fingerprint.SortByPath(sorted)

	data, err := json.Marshal(sorted)
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest for hashing: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ShouldIncrementalDeploy reports whether a net change of diffSize bytes is
// small enough, relative to totalSize, to ship only the changed files.
func ShouldIncrementalDeploy(diffSize int64, totalSize uint64, threshold float64) bool {
	return float64(diffSize) <= float64(totalSize)*threshold
}

// BuildReport compares the current manifest with the previous run. now is
// recorded as the report timestamp.
func BuildReport(current []fingerprint.FileRecord, prev Previous, threshold float64, now time.Time) (Report, error) {
	hash, err := ManifestHash(current)
	if err != nil {
		return Report{}, err
	}

	manifest := make([]fingerprint.FileRecord, len(current))
	copy(manifest, current)
	fingerprint.SortByPath(manifest)

	var prevStat Statistic
	firstBuild := prev.Report == nil
	if !firstBuild {
		prevStat = prev.Report.Statistic
	}

	// sameBuild follows the diff, not the stored hash: report.json and
	// buildInfo.json are written separately and can disagree.
	d := diff.Compute(manifest, prev.Manifest)
	total := fingerprint.TotalSize(manifest)
	sameBuild := !firstBuild && d.Empty()

	deployCount := prevStat.DeployCount
	if !sameBuild {
		deployCount++
	}
	r := Report{
		RunID:        uuid.NewString(),
		TimestampUTC: now.UTC(),
		Version:      buildinfo.Version,
		Statistic: Statistic{
			DeployCount: deployCount,
			TotalSize:   total,
			DiffSize:    int64(total) - int64(prevStat.TotalSize),
			FileCount:   uint32(len(manifest)),
		},
		Hash:       hash,
		SameBuild:  sameBuild,
		FirstBuild: firstBuild,
		Diff:       &d,
		Manifest:   manifest,
	}

	// A first build has no deployed baseline to patch and an unchanged build
	// has nothing to ship, so neither recommends an incremental deploy.
	if !firstBuild && !sameBuild {
		r.ShouldIncrementalDeploy = ShouldIncrementalDeploy(r.Statistic.DiffSize, total, threshold)
	}
	return r, nil
}
