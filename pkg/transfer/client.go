// Package transfer moves build artifacts to a remote host over a
// remote.Session: remote directory preparation, backups, the three upload
// shapes (single file, directory tree, archive with remote unpack) and the
// pre/post deploy scripts.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/paulschiretz/pgl-deploy/pkg/hints"
	"github.com/paulschiretz/pgl-deploy/pkg/metrics"
	"github.com/paulschiretz/pgl-deploy/pkg/packager"
	"github.com/paulschiretz/pgl-deploy/pkg/plog"
	"github.com/paulschiretz/pgl-deploy/pkg/pool"
	"github.com/paulschiretz/pgl-deploy/pkg/remote"
	"github.com/paulschiretz/pgl-deploy/pkg/sharded"
	"github.com/paulschiretz/pgl-deploy/pkg/util"
	"github.com/paulschiretz/pgl-deploy/pkg/walker"
)

// ErrNothingToBackup is returned when the remote path does not exist yet.
var ErrNothingToBackup = hints.New("nothing to back up")

// DefaultWorkers is the number of concurrent file uploads of a directory.
const DefaultWorkers = 5

// backupTimeFormat is appended to backup names: "<path>_bak20240601-101500".
const backupTimeFormat = "20060102-150405"

// Client performs transfer operations on an open session.
type Client struct {
	session remote.Session
	workers int
	metrics metrics.Transfer

	// dirCache remembers remote directories known to exist. dirGroup
	// collapses concurrent creation of the same directory into one call.
	dirCache *sharded.Set
	dirGroup singleflight.Group
}

// NewClient wraps session. workers bounds concurrent uploads; zero selects
// DefaultWorkers.
func NewClient(session remote.Session, workers int, m metrics.Transfer) (*Client, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if m == nil {
		m = &metrics.NoopTransfer{}
	}
	dirCache, err := sharded.NewSet(sharded.DefaultShards)
	if err != nil {
		return nil, err
	}
	return &Client{
		session:  session,
		workers:  workers,
		metrics:  m,
		dirCache: dirCache,
	}, nil
}

// EnsureDir makes sure dir exists remotely. Missing components are created
// one at a time with UserWritableDirPerms. A failure on an intermediate
// component is logged and skipped, since the path may still be usable; a
// failure on the final component is returned.
func (c *Client) EnsureDir(ctx context.Context, dir string) error {
	dir = path.Clean(dir)
	if dir == "/" || dir == "." || c.dirCache.Has(dir) {
		return nil
	}
	_, err, _ := c.dirGroup.Do(dir, func() (any, error) {
		return nil, c.ensureDir(ctx, dir)
	})
	return err
}

func (c *Client) ensureDir(ctx context.Context, dir string) error {
	if info, err := c.session.Stat(dir); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("remote path %s exists and is not a directory", dir)
		}
		c.dirCache.Store(dir)
		return nil
	}

	segments := strings.Split(strings.Trim(dir, "/"), "/")
	current := ""
	if strings.HasPrefix(dir, "/") {
		current = "/"
	}

	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return err
		}
		current = path.Join(current, seg)
		if c.dirCache.Has(current) {
			continue
		}
		final := i == len(segments)-1

		if info, err := c.session.Stat(current); err == nil && info.IsDir() {
			c.dirCache.Store(current)
			continue
		}

		if err := c.session.Mkdir(current, util.UserWritableDirPerms); err != nil {
			// Someone else may have created it in the meantime.
			if info, statErr := c.session.Stat(current); statErr == nil && info.IsDir() {
				c.dirCache.Store(current)
				continue
			}
			if final {
				return fmt.Errorf("failed to create remote directory %s: %w", current, err)
			}
			plog.Warn("Could not create remote directory, continuing", "path", current, "error", err)
			c.metrics.AddDirWarnings(1)
			continue
		}

		plog.Notice("MKDIR", "path", current)
		c.metrics.AddDirsCreated(1)
		c.dirCache.Store(current)
	}
	return nil
}

// Backup moves remotePath aside to "<remotePath>_bak<timestamp>" and returns
// the new name. It returns ErrNothingToBackup if remotePath does not exist.
func (c *Client) Backup(ctx context.Context, remotePath string, now time.Time) (string, error) {
	target, err := c.backupTarget(remotePath, now)
	if err != nil {
		return "", err
	}
	if err := c.session.Rename(remotePath, target); err != nil {
		return "", fmt.Errorf("failed to back up %s to %s: %w", remotePath, target, err)
	}
	c.forgetDirs(remotePath)
	plog.Info("Remote backup created", "from", remotePath, "to", target)
	return target, nil
}

// BackupCopy copies remotePath to "<remotePath>_bak<timestamp>" and leaves
// the original in place, for deploys that patch the existing tree.
func (c *Client) BackupCopy(ctx context.Context, remotePath string, now time.Time) (string, error) {
	target, err := c.backupTarget(remotePath, now)
	if err != nil {
		return "", err
	}
	cmd := fmt.Sprintf("cp -a %s %s", util.ShellQuote(remotePath), util.ShellQuote(target))
	if _, err := c.exec(ctx, "backup", cmd); err != nil {
		return "", fmt.Errorf("failed to back up %s to %s: %w", remotePath, target, err)
	}
	plog.Info("Remote backup copied", "from", remotePath, "to", target)
	return target, nil
}

func (c *Client) backupTarget(remotePath string, now time.Time) (string, error) {
	remotePath = path.Clean(remotePath)
	if _, err := c.session.Stat(remotePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNothingToBackup
		}
		return "", fmt.Errorf("failed to inspect %s before backup: %w", remotePath, err)
	}
	return remotePath + "_bak" + now.Format(backupTimeFormat), nil
}

// forgetDirs drops cached directories at or below p after it was moved.
func (c *Client) forgetDirs(p string) {
	for _, k := range c.dirCache.Keys() {
		if k == p || strings.HasPrefix(k, p+"/") {
			c.dirCache.Delete(k)
		}
	}
}

// UploadFile streams a local file to remotePath, creating its parent
// directory and overwriting an existing file.
func (c *Client) UploadFile(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.EnsureDir(ctx, path.Dir(remotePath)); err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	w, err := c.session.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", remotePath, err)
	}

	n, err := pool.Copy.CopyBuffer(w, f)
	if err != nil {
		w.Close()
		return fmt.Errorf("failed to upload %s to %s: %w", localPath, remotePath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish upload of %s: %w", remotePath, err)
	}

	plog.Notice("UPLOAD", "file", localPath, "remote", remotePath)
	c.metrics.AddFilesUploaded(1)
	c.metrics.AddBytesUploaded(n)
	return nil
}

// UploadDir mirrors the local directory tree into remoteDir. Directories are
// created parents first, then files are uploaded by up to workers goroutines.
// The first failure cancels the remaining uploads.
func (c *Client) UploadDir(ctx context.Context, localDir, remoteDir string, filter walker.Predicate) error {
	var mu sync.Mutex
	var files []walker.Entry
	var dirs []string

	collectFile := func(_ context.Context, e walker.Entry) error {
		mu.Lock()
		files = append(files, e)
		mu.Unlock()
		return nil
	}
	collectDir := func(_ context.Context, e walker.Entry) error {
		if e.RelPath != "." {
			mu.Lock()
			dirs = append(dirs, e.RelPath)
			mu.Unlock()
		}
		return nil
	}
	opts := walker.Options{FileFilter: filter, DirFilter: filter}
	if err := walker.Walk(ctx, localDir, collectFile, collectDir, opts); err != nil {
		return fmt.Errorf("failed to scan %s: %w", localDir, err)
	}

	if err := c.EnsureDir(ctx, remoteDir); err != nil {
		return err
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		if err := c.EnsureDir(ctx, path.Join(remoteDir, d)); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, f := range files {
		g.Go(func() error {
			return c.UploadFile(gctx, f.AbsPath, path.Join(remoteDir, f.RelPath))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	plog.Info("Directory uploaded", "local", localDir, "remote", remoteDir, "files", len(files))
	return nil
}

// UploadArchive uploads a local archive next to remoteDir as
// "<remoteDir><ext>", keeping a previous remote archive as "<...>.bak", and
// unpacks it into remoteDir. When stripPrefix is set, archive entries are
// expected under that top-level directory, which is removed on unpack.
func (c *Client) UploadArchive(ctx context.Context, archivePath, remoteDir string, format packager.Format, stripPrefix string) error {
	remoteDir = path.Clean(remoteDir)
	remoteArchive := remoteDir + format.Extension()

	if _, err := c.session.Stat(remoteArchive); err == nil {
		if err := c.session.Rename(remoteArchive, remoteArchive+".bak"); err != nil {
			return fmt.Errorf("failed to back up remote archive %s: %w", remoteArchive, err)
		}
		plog.Info("Previous remote archive kept", "path", remoteArchive+".bak")
	}

	if err := c.UploadFile(ctx, archivePath, remoteArchive); err != nil {
		return err
	}

	cmd := unpackCommand(format, remoteArchive, remoteDir, stripPrefix)
	if _, err := c.exec(ctx, "unpack", cmd); err != nil {
		return fmt.Errorf("failed to unpack %s: %w", remoteArchive, err)
	}
	c.forgetDirs(remoteDir)
	plog.Info("Archive unpacked", "archive", remoteArchive, "into", remoteDir)
	return nil
}

func unpackCommand(format packager.Format, remoteArchive, remoteDir, stripPrefix string) string {
	if stripPrefix == "" {
		return format.UnpackCommand(remoteArchive, remoteDir)
	}
	staging := remoteDir + ".pgl-staging"
	qs := util.ShellQuote(staging)
	return strings.Join([]string{
		"rm -rf " + qs,
		format.UnpackCommand(remoteArchive, staging),
		"mkdir -p " + util.ShellQuote(remoteDir),
		"cp -a " + util.ShellQuote(staging+"/"+stripPrefix) + "/. " + util.ShellQuote(remoteDir) + "/",
		"rm -rf " + qs,
	}, " && ")
}

// RunScript executes a deploy script remotely. stdout is returned and
// logged, stderr lines are logged as warnings. An empty script is a no-op.
func (c *Client) RunScript(ctx context.Context, stage, script string) (string, error) {
	if strings.TrimSpace(script) == "" {
		return "", nil
	}
	plog.Info("Running remote script", "stage", stage, "command", script)

	out, err := c.exec(ctx, stage, script)
	if trimmed := strings.TrimSpace(out); trimmed != "" {
		plog.Info("Remote script output", "stage", stage, "stdout", trimmed)
	}
	if err != nil {
		return out, fmt.Errorf("%s script failed: %w", stage, err)
	}
	return out, nil
}

// exec runs cmd remotely with stderr logged line by line, including a final
// line without a trailing newline.
func (c *Client) exec(ctx context.Context, stage, cmd string) (string, error) {
	stderr := newLineLogger(stage)
	out, err := c.session.Exec(ctx, cmd, stderr)
	stderr.Flush()
	return out, err
}

// lineLogger turns a remote stderr stream into warning log lines.
type lineLogger struct {
	mu    sync.Mutex
	stage string
	buf   []byte
}

func newLineLogger(stage string) *lineLogger {
	return &lineLogger{stage: stage}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, p...)
	for {
		i := strings.IndexByte(string(l.buf), '\n')
		if i < 0 {
			break
		}
		l.emit(string(l.buf[:i]))
		l.buf = l.buf[i+1:]
	}
	return len(p), nil
}

// Flush logs a trailing line without newline.
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf) > 0 {
		l.emit(string(l.buf))
		l.buf = nil
	}
}

func (l *lineLogger) emit(line string) {
	if line = strings.TrimRight(line, "\r"); line != "" {
		plog.Warn("Remote stderr", "stage", l.stage, "line", line)
	}
}
