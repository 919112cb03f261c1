// Package fingerprint computes content hashes for the files of a build and
// tracks how often each file has changed across builds.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/paulschiretz/pgl-deploy/pkg/metrics"
	"github.com/paulschiretz/pgl-deploy/pkg/plog"
	"github.com/paulschiretz/pgl-deploy/pkg/pool"
)

// Algorithm selects the content hash.
type Algorithm string

const (
	SHA256   Algorithm = "sha256"
	SHA3_256 Algorithm = "sha3-256"
)

// ParseAlgorithm validates a configured algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case SHA256, SHA3_256:
		return a, nil
	case "":
		return SHA256, nil
	default:
		return "", fmt.Errorf("invalid hash algorithm %q: must be 'sha256' or 'sha3-256'", s)
	}
}

func (a Algorithm) newHash() hash.Hash {
	if a == SHA3_256 {
		return sha3.New256()
	}
	return sha256.New()
}

// FileError reports a local file that could not be read. It is fatal for the
// run because a manifest with holes would corrupt the next diff.
type FileError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s failed for path %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Fingerprinter hashes files and appends their records to a shared manifest.
type Fingerprinter struct {
	algo     Algorithm
	previous map[string]FileRecord
	manifest *Manifest
	metrics  metrics.Analyze
}

// New creates a Fingerprinter that carries modify counts forward from the
// previous manifest. previous may be empty on a first build.
func New(previous []FileRecord, algo Algorithm, m metrics.Analyze) *Fingerprinter {
	if m == nil {
		m = &metrics.NoopAnalyze{}
	}
	return &Fingerprinter{
		algo:     algo,
		previous: Index(previous),
		manifest: NewManifest(len(previous)),
		metrics:  m,
	}
}

// Manifest returns the manifest being filled.
func (f *Fingerprinter) Manifest() *Manifest {
	return f.manifest
}

// Fingerprint hashes the file at absPath, records it under relPath and
// returns the record.
func (f *Fingerprinter) Fingerprint(ctx context.Context, absPath, relPath string) (FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return FileRecord{}, err
	}

	sum, size, err := f.hashFile(absPath)
	if err != nil {
		return FileRecord{}, &FileError{Op: "read", Path: absPath, Err: err}
	}

	rec := FileRecord{RelPath: relPath, Hash: sum, Size: size, ModifyCount: 1}
	if prev, ok := f.previous[relPath]; ok {
		rec.ModifyCount = prev.ModifyCount
		if rec.ModifyCount == 0 {
			rec.ModifyCount = 1
		}
		if prev.Hash != sum {
			rec.ModifyCount++
			plog.Notice("Content changed", "file", relPath, "modifyCount", rec.ModifyCount)
		}
	}

	f.manifest.Append(rec)
	f.metrics.AddFilesHashed(1)
	f.metrics.AddBytesHashed(int64(size))
	return rec, nil
}

func (f *Fingerprinter) hashFile(absPath string) (string, uint64, error) {
	file, err := os.Open(absPath)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	h := f.algo.newHash()
	n, err := pool.Copy.CopyBuffer(h, file)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), uint64(n), nil
}

// HashBytes returns the hex digest of b with the given algorithm.
func HashBytes(algo Algorithm, b []byte) string {
	h := algo.newHash()
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}
