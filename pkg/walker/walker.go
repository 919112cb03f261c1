// Package walker traverses a directory tree concurrently.
//
// All children of a directory are visited in parallel and a directory's own
// callback runs only after every descendant has finished, so a directory
// callback always observes the complete results of its subtree. File visits
// share a weighted semaphore that bounds the number of files open at once.
package walker

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/paulschiretz/pgl-deploy/pkg/plog"
)

// Entry describes a visited file or directory.
type Entry struct {
	// AbsPath is the native path on disk.
	AbsPath string
	// RelPath is relative to the walk root, forward-slash separated. The root itself is ".".
	RelPath string
	Info    fs.FileInfo
}

// VisitFunc is called for each file or directory. Returning an error cancels
// the walk.
type VisitFunc func(ctx context.Context, e Entry) error

// Options controls filtering and concurrency.
type Options struct {
	// FileFilter decides which regular files are visited. Nil visits all.
	FileFilter Predicate
	// DirFilter decides which directories are descended into. Nil descends into all.
	DirFilter Predicate
	// Workers bounds concurrent file visits. Zero uses twice the CPU count.
	Workers int
}

type walker struct {
	visitFile VisitFunc
	visitDir  VisitFunc
	fileOK    Predicate
	dirOK     Predicate
	sem       *semaphore.Weighted
}

// Walk visits every file under root that passes the filters. visitDir may be
// nil. The first error returned by a callback or by the file system cancels
// all in-flight work and is returned.
func Walk(ctx context.Context, root string, visitFile, visitDir VisitFunc, opts Options) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("cannot access walk root %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("walk root %s is not a directory", root)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}

	w := &walker{
		visitFile: visitFile,
		visitDir:  visitDir,
		fileOK:    All(opts.FileFilter),
		dirOK:     All(opts.DirFilter),
		sem:       semaphore.NewWeighted(int64(workers)),
	}
	return w.walkDir(ctx, Entry{AbsPath: root, RelPath: ".", Info: info})
}

func (w *walker) walkDir(ctx context.Context, dir Entry) error {
	entries, err := os.ReadDir(dir.AbsPath)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir.AbsPath, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for _, de := range entries {
		if gctx.Err() != nil {
			break
		}

		child, err := w.resolve(dir, de)
		if err != nil {
			// Stop the siblings already started and wait for them before
			// returning, so no visit outlives the walk.
			cancel()
			_ = g.Wait()
			return err
		}
		if child.Info == nil {
			continue
		}

		if child.Info.IsDir() {
			if !w.dirOK(child.RelPath, child.Info) {
				plog.Debug("Skipping excluded directory", "path", child.RelPath)
				continue
			}
			g.Go(func() error { return w.walkDir(gctx, child) })
			continue
		}

		if !child.Info.Mode().IsRegular() || !w.fileOK(child.RelPath, child.Info) {
			continue
		}
		g.Go(func() error {
			if err := w.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer w.sem.Release(1)
			return w.visitFile(gctx, child)
		})
	}

	// Barrier: the directory callback runs after every child has finished.
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.visitDir != nil {
		return w.visitDir(ctx, dir)
	}
	return nil
}

// resolve builds the child entry. Symlinks are followed to files; symlinked
// directories are skipped to avoid cycles and leave Info nil.
func (w *walker) resolve(parent Entry, de fs.DirEntry) (Entry, error) {
	abs := filepath.Join(parent.AbsPath, de.Name())
	rel := de.Name()
	if parent.RelPath != "." {
		rel = path.Join(parent.RelPath, de.Name())
	}

	var info fs.FileInfo
	var err error
	if de.Type()&fs.ModeSymlink != 0 {
		info, err = os.Stat(abs)
		if err == nil && info.IsDir() {
			plog.Debug("Skipping symlinked directory", "path", rel)
			return Entry{AbsPath: abs, RelPath: rel}, nil
		}
	} else {
		info, err = de.Info()
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	return Entry{AbsPath: abs, RelPath: rel, Info: info}, nil
}
