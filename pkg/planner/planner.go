package planner

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-deploy/pkg/analysis"
	"github.com/paulschiretz/pgl-deploy/pkg/config"
	"github.com/paulschiretz/pgl-deploy/pkg/fingerprint"
	"github.com/paulschiretz/pgl-deploy/pkg/hook"
	"github.com/paulschiretz/pgl-deploy/pkg/packager"
	"github.com/paulschiretz/pgl-deploy/pkg/preflight"
	"github.com/paulschiretz/pgl-deploy/pkg/remote"
	"github.com/paulschiretz/pgl-deploy/pkg/retry"
	"github.com/paulschiretz/pgl-deploy/pkg/sizespec"
	"github.com/paulschiretz/pgl-deploy/pkg/transfer"
	"github.com/paulschiretz/pgl-deploy/pkg/walker"
)

type AnalyzePlan struct {
	DryRun   bool
	FailFast bool
	Metrics  bool

	Paths preflight.Paths

	Workers    int
	FileFilter walker.Predicate
	DirFilter  walker.Predicate
	Algorithm  fingerprint.Algorithm

	DeployThreshold float64
	Summary         analysis.Policy

	Archive ArchivePlan

	Preflight *preflight.Plan
	Hooks     *hook.Plan
}

type ArchivePlan struct {
	Format     packager.Format
	Level      packager.Level
	BufferSize int
}

type DeployPlan struct {
	DryRun   bool
	FailFast bool
	Metrics  bool

	// ReportDir receives the metrics textfile.
	ReportDir string

	Endpoint remote.Endpoint
	Transfer transfer.PlanOptions

	Preflight *preflight.Plan
	Hooks     *hook.Plan
}

// GenerateAnalyzePlan turns a validated configuration into an AnalyzePlan.
func GenerateAnalyzePlan(cfg config.Config) (*AnalyzePlan, error) {

	// Global Flags
	dryRun := cfg.Runtime.DryRun
	failFast := cfg.FailFast
	metrics := cfg.Metrics

	a := cfg.Analyze

	algo, err := fingerprint.ParseAlgorithm(a.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	maxCount, err := sizespec.ParseCount(a.MaxCount)
	if err != nil {
		return nil, fmt.Errorf("invalid max count: %w", err)
	}
	minCount, err := sizespec.ParseCount(a.MinCount)
	if err != nil {
		return nil, fmt.Errorf("invalid min count: %w", err)
	}
	overSize, err := sizespec.ParseBytes(a.OverSizeThreshold)
	if err != nil {
		return nil, fmt.Errorf("invalid oversize threshold: %w", err)
	}
	format, err := packager.ParseFormat(a.Archive.Format)
	if err != nil {
		return nil, err
	}
	level, err := packager.ParseLevel(a.Archive.Level)
	if err != nil {
		return nil, err
	}

	exclude, err := walker.ExcludeGlobs(a.ExcludeFiles())
	if err != nil {
		return nil, err
	}
	fileFilter, err := analyzeFileFilter(a, exclude)
	if err != nil {
		return nil, err
	}

	// finish the plan
	return &AnalyzePlan{
		DryRun:   dryRun,
		FailFast: failFast,
		Metrics:  metrics,

		Paths: preflight.Paths{
			BuildDir:  a.BuildDir,
			ReportDir: a.ReportDir,
		},

		Workers:    a.Workers,
		FileFilter: fileFilter,
		DirFilter:  exclude,
		Algorithm:  algo,

		DeployThreshold: a.DeployThreshold,
		Summary: analysis.Policy{
			Weights:           a.CacheWeights,
			MaxCount:          maxCount,
			MinCount:          minCount,
			OverSizeThreshold: overSize,
			FileSizeSpec:      a.FileSizeSpec,
		},

		Archive: ArchivePlan{
			Format:     format,
			Level:      level,
			BufferSize: a.BufferSizeKB * 1024,
		},

		Preflight: &preflight.Plan{
			BuildRootAccessible: true,
			ReportDirWritable:   true,
			PathNesting:         true,
		},
		Hooks: &hook.Plan{
			Enabled:          true,
			PreHookCommands:  cfg.Hooks.PreAnalyze,
			PostHookCommands: cfg.Hooks.PostAnalyze,
			// Global Flags
			DryRun:   dryRun,
			FailFast: failFast,
		},
	}, nil
}

// analyzeFileFilter chains the file selection settings. Size and date
// predicates are only added when configured since they need file info.
func analyzeFileFilter(a config.AnalyzeConfig, exclude walker.Predicate) (walker.Predicate, error) {
	res, err := a.IncludeRegexps()
	if err != nil {
		return nil, err
	}
	include := make([]walker.Predicate, len(res))
	for i, re := range res {
		include[i] = walker.Regexp(re)
	}
	excludeNames := make([]walker.Predicate, 0, len(a.ExcludeNameContains))
	for _, sub := range a.ExcludeNameContains {
		if sub != "" {
			excludeNames = append(excludeNames, walker.Contains(sub))
		}
	}

	preds := []walker.Predicate{
		exclude,
		walker.WithExtensions(a.IncludeExtensions...),
		walker.WithPatterns(include...),
		walker.WithExcludes(excludeNames...),
	}

	minSize, maxSize, err := a.SizeLimits()
	if err != nil {
		return nil, err
	}
	if minSize > 0 || maxSize > 0 {
		preds = append(preds, walker.WithSizeLimit(minSize, maxSize))
	}

	after, before, err := a.ModifiedRange()
	if err != nil {
		return nil, err
	}
	if !after.IsZero() || !before.IsZero() {
		preds = append(preds, walker.WithDateRange(after, before))
	}
	return walker.All(preds...), nil
}

// GenerateDeployPlan turns a validated configuration into a DeployPlan.
func GenerateDeployPlan(cfg config.Config) (*DeployPlan, error) {

	// Global Flags
	dryRun := cfg.Runtime.DryRun
	failFast := cfg.FailFast
	metrics := cfg.Metrics

	d := cfg.Deploy

	format, err := packager.ParseFormat(cfg.Analyze.Archive.Format)
	if err != nil {
		return nil, err
	}
	level, err := packager.ParseLevel(cfg.Analyze.Archive.Level)
	if err != nil {
		return nil, err
	}
	backoff, err := retry.ParseBackoff(d.RetryBackoff)
	if err != nil {
		return nil, err
	}

	var diffArchive, diffPrefix string
	if d.DiffUpload {
		diffArchive = packager.ArchivePath(cfg.Analyze.ReportDir, cfg.Analyze.BuildDir, format)
		diffPrefix = filepath.Base(cfg.Analyze.BuildDir)
	}

	// finish the plan
	return &DeployPlan{
		DryRun:   dryRun,
		FailFast: failFast,
		Metrics:  metrics,

		ReportDir: cfg.Analyze.ReportDir,

		Endpoint: remote.Endpoint{
			Host:                  d.Host,
			Port:                  d.Port,
			Username:              d.Username,
			Password:              d.Password,
			PrivateKeyPath:        d.PrivateKeyPath,
			Passphrase:            d.Passphrase,
			KnownHostsPath:        d.KnownHostsPath,
			InsecureIgnoreHostKey: d.InsecureIgnoreHostKey,
			Timeout:               time.Duration(d.ConnectTimeoutSeconds) * time.Second,
		},

		Transfer: transfer.PlanOptions{
			LocalPath:   d.LocalPath,
			RemotePath:  d.RemotePath,
			Exclude:     d.Exclude,
			Compress:    d.Compress,
			Format:      format,
			Level:       level,
			DiffArchive: diffArchive,
			DiffPrefix:  diffPrefix,
			PreScript:   d.PreScript,
			PostScript:  d.PostScript,
			AutoBackup:  d.AutoBackup,
			Retry: retry.Policy{
				Attempts: d.RetryTimes,
				Delay:    time.Duration(d.RetryDelayMillis) * time.Millisecond,
				Backoff:  backoff,
			},
			Workers: d.UploadWorkers,
			DryRun:  dryRun,
		},

		Preflight: &preflight.Plan{
			// The local path may be missing when a diff archive replaces it;
			// transfer.ResolvePlan reports that case.
			LocalPathAccessible: diffArchive == "",
		},
		Hooks: &hook.Plan{
			Enabled:          true,
			PreHookCommands:  cfg.Hooks.PreDeploy,
			PostHookCommands: cfg.Hooks.PostDeploy,
			// Global Flags
			DryRun:   dryRun,
			FailFast: failFast,
		},
	}, nil
}
