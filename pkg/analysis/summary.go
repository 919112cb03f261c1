package analysis

import (
	"fmt"

	"github.com/paulschiretz/pgl-deploy/pkg/plog"
	"github.com/paulschiretz/pgl-deploy/pkg/sizespec"
)

// Policy holds the settings that shape the human-facing summary.
type Policy struct {
	Weights           Weights
	MaxCount          sizespec.Count
	MinCount          sizespec.Count
	OverSizeThreshold uint64
	// FileSizeSpec is "si" or "iec".
	FileSizeSpec string
}

// LogSummary logs the statistics, the deploy advice, oversized files and
// the cache priority list.
func LogSummary(r Report, p Policy) {
	st := r.Statistic
	plog.Info("Build analyzed",
		"files", st.FileCount,
		"totalSize", sizespec.FormatBytes(int64(st.TotalSize), p.FileSizeSpec),
		"diffSize", sizespec.FormatBytes(st.DiffSize, p.FileSizeSpec),
		"deployCount", st.DeployCount,
		"hash", r.Hash,
	)

	if r.Diff != nil {
		plog.Info("Changes since last build",
			"added", len(r.Diff.Added),
			"updated", len(r.Diff.Updated),
			"removed", len(r.Diff.Removed),
		)
		for _, f := range r.Diff.Removed {
			plog.Notice("Removed", "file", f.RelPath)
		}
	}

	switch {
	case r.SameBuild:
		plog.Info("Build is unchanged since the last run, nothing to deploy")
	case r.FirstBuild:
		plog.Info("First analyzed build, a full deploy is recommended")
	case r.ShouldIncrementalDeploy:
		plog.Info("Incremental deploy recommended")
	default:
		plog.Info("Full deploy recommended, the change is too large for an incremental deploy")
	}

	oversized := Oversized(r.Manifest, p.OverSizeThreshold)
	if len(oversized) > 0 {
		plog.Warn("Oversized files found",
			"count", len(oversized),
			"threshold", sizespec.FormatBytes(int64(p.OverSizeThreshold), p.FileSizeSpec))
		for _, f := range oversized {
			plog.Warn("Oversized file", "file", f.RelPath, "size", sizespec.FormatBytes(int64(f.Size), p.FileSizeSpec))
		}
	}

	scored := Score(r.Manifest, st.DeployCount, st.TotalSize, p.Weights)
	candidates := CacheCandidates(scored, p.MaxCount, p.MinCount)
	if len(candidates) == 0 {
		return
	}
	plog.Info("Cache priority", "files", len(candidates), "maxCount", p.MaxCount.String(), "minCount", p.MinCount.String())
	for i, c := range candidates {
		plog.Info(fmt.Sprintf("Cache candidate #%d", i+1),
			"file", c.RelPath,
			"score", fmt.Sprintf("%.3f", c.Score),
			"size", sizespec.FormatBytes(int64(c.Size), p.FileSizeSpec),
			"modifyCount", c.ModifyCount,
		)
	}
}
