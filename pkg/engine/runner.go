package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-deploy/pkg/analysis"
	"github.com/paulschiretz/pgl-deploy/pkg/buildinfo"
	"github.com/paulschiretz/pgl-deploy/pkg/fingerprint"
	"github.com/paulschiretz/pgl-deploy/pkg/hints"
	"github.com/paulschiretz/pgl-deploy/pkg/hook"
	"github.com/paulschiretz/pgl-deploy/pkg/lockfile"
	"github.com/paulschiretz/pgl-deploy/pkg/metrics"
	"github.com/paulschiretz/pgl-deploy/pkg/packager"
	"github.com/paulschiretz/pgl-deploy/pkg/planner"
	"github.com/paulschiretz/pgl-deploy/pkg/plog"
	"github.com/paulschiretz/pgl-deploy/pkg/preflight"
	"github.com/paulschiretz/pgl-deploy/pkg/remote"
	"github.com/paulschiretz/pgl-deploy/pkg/store"
	"github.com/paulschiretz/pgl-deploy/pkg/transfer"
	"github.com/paulschiretz/pgl-deploy/pkg/walker"
)

// --- ARCHITECTURAL OVERVIEW ---
//
// Analyze and deploy are separate runs that only share the report directory.
//
// 1. Analyze - "Describe the build, ship nothing"
//    - Fingerprints every file of the build root, compares the manifest with
//      the one left by the last run and writes the new state back.
//    - Packages the added and updated files into "<report>/<build><ext>" so
//      a later deploy can patch the remote tree instead of replacing it. An
//      unchanged build removes the archive of an earlier run.
//
// 2. Deploy - "Ship whatever the plan resolved to"
//    - The transfer package decides the upload shape: the analyzer's diff
//      archive, a single file, a mirrored directory or a compressed one.
//    - Connection failures are fatal; the upload itself is retried.

// MetricsFileNameAnalyze and MetricsFileNameDeploy are written into the report
// directory when metrics are enabled.
const (
	MetricsFileNameAnalyze = "analyze.prom"
	MetricsFileNameDeploy  = "deploy.prom"
)

type HookRunner interface {
	RunPreHook(ctx context.Context, stage string, p *hook.Plan) error
	RunPostHook(ctx context.Context, stage string, p *hook.Plan) error
}

type Runner struct {
	hooks  HookRunner
	dialer remote.Dialer

	// Now supplies the run timestamp.
	Now func() time.Time
}

// NewRunner creates a Runner. dialer is only used by ExecuteDeploy.
func NewRunner(hooks HookRunner, dialer remote.Dialer) *Runner {
	return &Runner{
		hooks:  hooks,
		dialer: dialer,
		Now:    time.Now,
	}
}

// ExecuteAnalyze fingerprints the build, writes the report and packages the
// changed files.
func (r *Runner) ExecuteAnalyze(ctx context.Context, p *planner.AnalyzePlan) (retErr error) {
	// Check for cancellation at the very beginning.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// save the execution timestamp
	timestampUTC := r.Now().UTC()

	if err := preflight.Run(p.Preflight, p.Paths); err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}

	// The report dir holds the state of the last run, so it is the one to lock.
	releaseLock, err := r.acquireLock(ctx, p.Paths.ReportDir, "analyze")
	if err != nil {
		return err
	}
	if releaseLock == nil {
		return nil // Lock was already held, exit gracefully.
	}
	defer releaseLock()

	if err := r.runPreHooks(ctx, "analyze", p.Hooks); err != nil {
		return err
	}
	defer r.runPostHooks(ctx, "analyze", p.Hooks)

	plog.Info("Starting analyze", "build", p.Paths.BuildDir, "report", p.Paths.ReportDir)

	prev, err := store.Load(p.Paths.ReportDir)
	if err != nil {
		return fmt.Errorf("failed to load previous build state: %w", err)
	}
	if prev.Report == nil {
		plog.Info("No previous build found, treating this as the first build")
	}

	var m metrics.Analyze = &metrics.NoopAnalyze{}
	var counters *metrics.AnalyzeMetrics
	if p.Metrics {
		counters = &metrics.AnalyzeMetrics{}
		m = counters
	}

	fp := fingerprint.New(prev.Manifest, p.Algorithm, m)
	visit := func(ctx context.Context, e walker.Entry) error {
		_, err := fp.Fingerprint(ctx, e.AbsPath, e.RelPath)
		return err
	}
	opts := walker.Options{FileFilter: p.FileFilter, DirFilter: p.DirFilter, Workers: p.Workers}
	if err := walker.Walk(ctx, p.Paths.BuildDir, visit, nil, opts); err != nil {
		return fmt.Errorf("error during fingerprinting: %w", err)
	}

	report, err := analysis.BuildReport(fp.Manifest().Records(), prev, p.DeployThreshold, timestampUTC)
	if err != nil {
		return err
	}

	if err := r.packageChanges(ctx, p, report); err != nil {
		return err
	}

	if p.DryRun {
		plog.Info("[DRY RUN] Would save build state", "path", p.Paths.ReportDir)
	} else if err := store.Save(p.Paths.ReportDir, report); err != nil {
		return fmt.Errorf("failed to save build state: %w", err)
	}

	analysis.LogSummary(report, p.Summary)

	m.Log()
	if counters != nil && !p.DryRun {
		r.writeMetrics(counters, filepath.Join(p.Paths.ReportDir, MetricsFileNameAnalyze))
	}

	plog.Info("Analyze completed")
	return nil
}

// packageChanges writes the diff archive, or removes a stale one when there
// is nothing to ship.
func (r *Runner) packageChanges(ctx context.Context, p *planner.AnalyzePlan, report analysis.Report) error {
	archivePath := packager.ArchivePath(p.Paths.ReportDir, p.Paths.BuildDir, p.Archive.Format)

	var changed []string
	if report.Diff != nil && !report.SameBuild {
		changed = report.Diff.ChangedPaths()
	}

	if p.DryRun {
		if len(changed) == 0 {
			plog.Info("[DRY RUN] Would remove stale archive", "path", archivePath)
		} else {
			plog.Info("[DRY RUN] Would package changed files", "path", archivePath, "files", len(changed))
		}
		return nil
	}

	if len(changed) > 0 {
		pkg := packager.New(p.Archive.Format, p.Archive.Level, p.Archive.BufferSize)
		err := pkg.PackageFiles(ctx, p.Paths.BuildDir, changed, archivePath)
		if err == nil {
			return nil
		}
		if !hints.IsHint(err) {
			return fmt.Errorf("error during packaging: %w", err)
		}
	}

	plog.Info("No changed files to package", "sameBuild", report.SameBuild)
	return packager.RemoveStale(archivePath)
}

// ExecuteDeploy resolves the upload shape and runs the deployment.
func (r *Runner) ExecuteDeploy(ctx context.Context, p *planner.DeployPlan) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := preflight.Run(p.Preflight, preflight.Paths{LocalPath: p.Transfer.LocalPath}); err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}

	if err := r.runPreHooks(ctx, "deploy", p.Hooks); err != nil {
		return err
	}
	defer r.runPostHooks(ctx, "deploy", p.Hooks)

	plan, err := transfer.ResolvePlan(p.Transfer)
	if err != nil {
		return err
	}

	var m metrics.Transfer = &metrics.NoopTransfer{}
	var counters *metrics.TransferMetrics
	if p.Metrics {
		counters = &metrics.TransferMetrics{}
		m = counters
	}

	deployer := transfer.NewDeployer(r.dialer, p.Endpoint, m)
	deployer.Now = r.Now
	runErr := deployer.Run(ctx, plan)

	// Counters are exported even for a failed run; they show how far it got.
	m.Log()
	if counters != nil && !p.DryRun && p.ReportDir != "" {
		r.writeMetrics(counters, filepath.Join(p.ReportDir, MetricsFileNameDeploy))
	}
	return runErr
}

type textfileWriter interface {
	WriteTextfile(path string) error
}

func (r *Runner) writeMetrics(w textfileWriter, path string) {
	if err := preflight.CheckReportDirWritable(filepath.Dir(path)); err != nil {
		plog.Warn("Skipping metrics export", "reason", err)
		return
	}
	if err := w.WriteTextfile(path); err != nil {
		plog.Warn("Failed to export metrics", "error", err)
		return
	}
	plog.Debug("Metrics exported", "path", path)
}

// acquireLock acquires the lock file in dir. A nil release function with a
// nil error means another run holds the lock.
func (r *Runner) acquireLock(ctx context.Context, dir, command string) (func(), error) {
	appID := fmt.Sprintf("%s-%s:%s", buildinfo.Name, command, dir)

	plog.Debug("Attempting to acquire lock", "path", dir)
	lock, err := lockfile.Acquire(ctx, dir, appID)
	if err != nil {
		var lockErr *lockfile.ErrLockActive
		if errors.As(err, &lockErr) {
			plog.Warn("Operation is already running for this report directory, skipping run.", "details", lockErr.Error())
			return nil, nil
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	plog.Debug("Lock acquired successfully.")

	return lock.Release, nil
}

func (r *Runner) runPreHooks(ctx context.Context, stage string, p *hook.Plan) error {
	err := r.hooks.RunPreHook(ctx, stage, p)
	if err == nil || hints.IsHint(err) {
		return nil
	}
	// All pre hook errors are fatal.
	errMsg := fmt.Sprintf("pre-%s hook failed", stage)
	if errors.Is(err, context.Canceled) {
		errMsg = fmt.Sprintf("pre-%s hook canceled", stage)
	}
	return fmt.Errorf("%s: %w", errMsg, err)
}

// runPostHooks runs even when the stage failed; its errors are only logged.
func (r *Runner) runPostHooks(ctx context.Context, stage string, p *hook.Plan) {
	err := r.hooks.RunPostHook(ctx, stage, p)
	switch {
	case err == nil || hints.IsHint(err):
	case errors.Is(err, context.Canceled):
		plog.Info(fmt.Sprintf("post-%s hooks skipped due to cancellation.", stage))
	default:
		plog.Warn(fmt.Sprintf("post-%s hook failed", stage), "error", err)
	}
}
