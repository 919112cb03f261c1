package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-deploy/pkg/hints"
	"github.com/paulschiretz/pgl-deploy/pkg/metrics"
	"github.com/paulschiretz/pgl-deploy/pkg/packager"
	"github.com/paulschiretz/pgl-deploy/pkg/plog"
	"github.com/paulschiretz/pgl-deploy/pkg/remote"
	"github.com/paulschiretz/pgl-deploy/pkg/retry"
	"github.com/paulschiretz/pgl-deploy/pkg/walker"
)

// Shape is how the local artifact travels to the remote host.
type Shape int

const (
	// ShapeFile uploads a single file.
	ShapeFile Shape = iota
	// ShapeDir mirrors a directory tree file by file.
	ShapeDir
	// ShapeArchive uploads an existing archive and unpacks it remotely.
	ShapeArchive
	// ShapeCompressedDir packages a directory locally, then proceeds as
	// ShapeArchive.
	ShapeCompressedDir
)

func (s Shape) String() string {
	switch s {
	case ShapeFile:
		return "file"
	case ShapeDir:
		return "directory"
	case ShapeArchive:
		return "archive"
	case ShapeCompressedDir:
		return "compressed directory"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// PlanOptions are the inputs from which a Plan is resolved.
type PlanOptions struct {
	LocalPath  string
	RemotePath string
	Exclude    []string

	// Compress packages a local directory before uploading it.
	Compress bool
	Format   packager.Format
	Level    packager.Level

	// DiffArchive is the incremental archive written by the analyzer. When
	// it exists it replaces LocalPath, and DiffPrefix is stripped on unpack.
	DiffArchive string
	DiffPrefix  string

	PreScript  string
	PostScript string
	AutoBackup bool

	Retry   retry.Policy
	Workers int
	DryRun  bool
}

// Plan is a resolved deployment.
type Plan struct {
	Shape       Shape
	LocalPath   string
	RemotePath  string
	Format      packager.Format
	Level       packager.Level
	StripPrefix string
	Filter      walker.Predicate

	PreScript  string
	PostScript string
	AutoBackup bool

	Retry   retry.Policy
	Workers int
	DryRun  bool
}

// ResolvePlan inspects the local artifact and picks the upload shape.
func ResolvePlan(opts PlanOptions) (Plan, error) {
	p := Plan{
		LocalPath:  opts.LocalPath,
		RemotePath: path.Clean(opts.RemotePath),
		Format:     opts.Format,
		Level:      opts.Level,
		PreScript:  opts.PreScript,
		PostScript: opts.PostScript,
		AutoBackup: opts.AutoBackup,
		Retry:      opts.Retry,
		Workers:    opts.Workers,
		DryRun:     opts.DryRun,
	}
	if p.Format == "" {
		p.Format = packager.Zip
	}
	if p.RemotePath == "." || p.RemotePath == "" {
		return Plan{}, errors.New("remote path must not be empty")
	}

	if opts.DiffArchive != "" {
		if _, err := os.Stat(opts.DiffArchive); err == nil {
			p.Shape = ShapeArchive
			p.LocalPath = opts.DiffArchive
			p.StripPrefix = opts.DiffPrefix
			if f, ok := formatOf(opts.DiffArchive); ok {
				p.Format = f
			}
			return p, nil
		}
		plog.Warn("Incremental archive not found, deploying the local path instead", "archive", opts.DiffArchive)
	}

	info, err := os.Stat(opts.LocalPath)
	if err != nil {
		return Plan{}, fmt.Errorf("local path %s is not accessible: %w", opts.LocalPath, err)
	}

	if !info.IsDir() {
		if f, ok := formatOf(opts.LocalPath); ok {
			p.Shape = ShapeArchive
			p.Format = f
			return p, nil
		}
		p.Shape = ShapeFile
		if base := filepath.Base(opts.LocalPath); base != path.Base(p.RemotePath) {
			p.RemotePath = path.Join(p.RemotePath, base)
		}
		return p, nil
	}

	filter, err := walker.ExcludeGlobs(opts.Exclude)
	if err != nil {
		return Plan{}, err
	}
	p.Filter = filter
	if opts.Compress {
		p.Shape = ShapeCompressedDir
	} else {
		p.Shape = ShapeDir
	}
	return p, nil
}

// formatOf recognises an archive by file extension.
func formatOf(name string) (packager.Format, bool) {
	lower := strings.ToLower(name)
	for _, f := range []packager.Format{packager.TarGz, packager.TarZst, packager.Zip} {
		if strings.HasSuffix(lower, f.Extension()) {
			return f, true
		}
	}
	return "", false
}

// Deployer runs plans against a remote endpoint.
type Deployer struct {
	dialer   remote.Dialer
	endpoint remote.Endpoint
	metrics  metrics.Transfer

	// Now is used for backup names.
	Now func() time.Time
}

// NewDeployer returns a Deployer connecting to endpoint through dialer.
func NewDeployer(dialer remote.Dialer, endpoint remote.Endpoint, m metrics.Transfer) *Deployer {
	if m == nil {
		m = &metrics.NoopTransfer{}
	}
	return &Deployer{dialer: dialer, endpoint: endpoint, metrics: m, Now: time.Now}
}

// Run executes plan: connect, pre-script, optional backup, upload (retried
// as a whole), post-script. The session is closed on every path once it
// was opened.
func (d *Deployer) Run(ctx context.Context, plan Plan) (retErr error) {
	if plan.DryRun {
		d.logPlan(plan)
		return nil
	}

	localPath := plan.LocalPath
	format := plan.Format
	if plan.Shape == ShapeCompressedDir {
		archive, err := d.compress(ctx, plan)
		if err != nil {
			return err
		}
		defer func() {
			if err := os.Remove(archive); err != nil && !os.IsNotExist(err) {
				plog.Warn("Failed to remove temporary archive", "path", archive, "error", err)
			}
		}()
		localPath = archive
	}

	plog.Info("Connecting", "host", d.endpoint.Address(), "user", d.endpoint.Username)
	session, err := d.dialer.Dial(ctx, d.endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", d.endpoint.Address(), err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			plog.Warn("Failed to close connection", "error", err)
		}
		plog.Info("Disconnected", "host", d.endpoint.Address())
	}()

	client, err := NewClient(session, plan.Workers, d.metrics)
	if err != nil {
		return err
	}

	if _, err := client.RunScript(ctx, "pre", plan.PreScript); err != nil {
		return err
	}

	if plan.AutoBackup {
		if err := d.backup(ctx, client, plan); err != nil {
			return err
		}
	}

	policy := plan.Retry
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, err error) {
		d.metrics.AddRetries(1)
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	err = retry.Do(ctx, policy, "upload", func(ctx context.Context) error {
		return d.upload(ctx, client, plan, localPath, format)
	})
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	if _, err := client.RunScript(ctx, "post", plan.PostScript); err != nil {
		return err
	}

	plog.Info("Deploy completed", "remote", plan.RemotePath)
	return nil
}

func (d *Deployer) backup(ctx context.Context, client *Client, plan Plan) error {
	var err error
	if plan.Shape == ShapeArchive && plan.StripPrefix != "" {
		// Incremental archives patch the live tree, so it has to stay.
		_, err = client.BackupCopy(ctx, plan.RemotePath, d.Now())
	} else {
		_, err = client.Backup(ctx, plan.RemotePath, d.Now())
	}
	if hints.IsHint(err) {
		plog.Info("Skipping backup", "reason", err)
		return nil
	}
	return err
}

func (d *Deployer) upload(ctx context.Context, client *Client, plan Plan, localPath string, format packager.Format) error {
	switch plan.Shape {
	case ShapeFile:
		return client.UploadFile(ctx, localPath, plan.RemotePath)
	case ShapeDir:
		return client.UploadDir(ctx, localPath, plan.RemotePath, plan.Filter)
	case ShapeArchive, ShapeCompressedDir:
		return client.UploadArchive(ctx, localPath, plan.RemotePath, format, plan.StripPrefix)
	default:
		return fmt.Errorf("unknown upload shape %v", plan.Shape)
	}
}

// compress packages plan.LocalPath into a temporary archive and returns its
// path. The caller removes it.
func (d *Deployer) compress(ctx context.Context, plan Plan) (string, error) {
	dir, err := os.MkdirTemp("", "pgl-deploy-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	archive := packager.ArchivePath(dir, plan.LocalPath, plan.Format)

	n, err := packager.New(plan.Format, plan.Level, 0).PackageDir(ctx, plan.LocalPath, archive, plan.Filter)
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("failed to compress %s: %w", plan.LocalPath, err)
	}
	plog.Info("Compressed local directory", "path", plan.LocalPath, "files", n, "archive", archive)
	return archive, nil
}

func (d *Deployer) logPlan(plan Plan) {
	plog.Info("[DRY RUN] Deploy plan",
		"host", d.endpoint.Address(),
		"shape", plan.Shape.String(),
		"local", plan.LocalPath,
		"remote", plan.RemotePath)
	if plan.PreScript != "" {
		plog.Info("[DRY RUN] Would run pre script", "command", plan.PreScript)
	}
	if plan.AutoBackup {
		plog.Info("[DRY RUN] Would back up remote path", "path", plan.RemotePath)
	}
	if plan.PostScript != "" {
		plog.Info("[DRY RUN] Would run post script", "command", plan.PostScript)
	}
}
