// Package packager writes build files into a single compressed archive.
//
// Archives are written to a temp file in the destination directory and
// renamed into place once complete, so a failed or cancelled run never
// leaves a truncated archive where a deploy could pick it up.
package packager

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/paulschiretz/pgl-deploy/pkg/hints"
	"github.com/paulschiretz/pgl-deploy/pkg/plog"
	"github.com/paulschiretz/pgl-deploy/pkg/pool"
	"github.com/paulschiretz/pgl-deploy/pkg/util"
	"github.com/paulschiretz/pgl-deploy/pkg/walker"
)

// ErrNothingToPackage is returned when there are no files to archive.
var ErrNothingToPackage = hints.New("nothing to package")

const defaultBufferSize = 256 * 1024

// Packager creates archives of one format and level.
type Packager struct {
	format     Format
	level      Level
	bufferSize int
}

// New returns a Packager. bufferSize is the write buffer in bytes; zero
// selects a default.
func New(format Format, level Level, bufferSize int) *Packager {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Packager{format: format, level: level, bufferSize: bufferSize}
}

// Format returns the archive format.
func (p *Packager) Format() Format {
	return p.format
}

type entry struct {
	absPath string
	name    string
}

// PackageFiles archives the given files of root. Entries are named
// "<basename(root)>/<relPath>" with forward slashes. An empty relPaths
// returns ErrNothingToPackage and writes nothing.
func (p *Packager) PackageFiles(ctx context.Context, root string, relPaths []string, archivePath string) error {
	if len(relPaths) == 0 {
		return ErrNothingToPackage
	}

	prefix := filepath.Base(filepath.Clean(root))
	entries := make([]entry, len(relPaths))
	for i, rel := range relPaths {
		entries[i] = entry{
			absPath: filepath.Join(root, filepath.FromSlash(rel)),
			name:    path.Join(prefix, rel),
		}
	}
	return p.write(ctx, entries, archivePath)
}

// PackageDir archives every file under root that passes filter. Entries are
// named relative to root. It returns the number of archived files.
func (p *Packager) PackageDir(ctx context.Context, root, archivePath string, filter walker.Predicate) (int, error) {
	var mu sync.Mutex
	var entries []entry
	collect := func(_ context.Context, e walker.Entry) error {
		mu.Lock()
		entries = append(entries, entry{absPath: e.AbsPath, name: e.RelPath})
		mu.Unlock()
		return nil
	}

	opts := walker.Options{FileFilter: filter, DirFilter: filter}
	if err := walker.Walk(ctx, root, collect, nil, opts); err != nil {
		return 0, fmt.Errorf("failed to collect files of %s: %w", root, err)
	}
	if len(entries) == 0 {
		return 0, ErrNothingToPackage
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	if err := p.write(ctx, entries, archivePath); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (p *Packager) write(ctx context.Context, entries []entry, archivePath string) (retErr error) {
	if err := os.MkdirAll(filepath.Dir(archivePath), util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(archivePath), "pgl-deploy-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	bufWriter := bufio.NewWriterSize(tmp, p.bufferSize)
	aw, err := newArchiveWriter(bufWriter, p.format, p.level)
	if err != nil {
		return err
	}

	bufPtr := pool.Copy.Get()
	defer pool.Copy.Put(bufPtr)
	copyBuf := *bufPtr
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			aw.Close()
			return err
		}
		if err := p.addFile(aw, e, copyBuf); err != nil {
			aw.Close()
			return err
		}
	}

	if err := aw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := bufWriter.Flush(); err != nil {
		return fmt.Errorf("buffer flush failed: %w", err)
	}
	if err := tmp.Chmod(util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to set archive permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, archivePath); err != nil {
		return fmt.Errorf("failed to rename temp archive to final path: %w", err)
	}

	plog.Info("Archive written", "path", archivePath, "entries", len(entries), "format", p.format)
	return nil
}

func (p *Packager) addFile(aw archiveWriter, e entry, buf []byte) error {
	f, err := os.Open(e.absPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", e.absPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", e.absPath, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("cannot archive %s: not a regular file", e.absPath)
	}

	plog.Notice("ADD", "file", e.name)
	return aw.add(e.name, info, f, buf)
}

// RemoveStale deletes an archive left by an earlier run. A missing archive
// is not an error.
func RemoveStale(archivePath string) error {
	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale archive %s: %w", archivePath, err)
	}
	return nil
}
