// Package diff compares two build manifests.
package diff

import (
	"github.com/paulschiretz/pgl-deploy/pkg/fingerprint"
)

// Result holds the change set between two manifests. Added and Updated carry
// the current records, Removed carries the previous ones. Each slice is
// sorted by path.
type Result struct {
	Added   []fingerprint.FileRecord `json:"add"`
	Updated []fingerprint.FileRecord `json:"update"`
	Removed []fingerprint.FileRecord `json:"remove"`
}

// Compute classifies every path of current and previous into exactly one of
// added, updated, removed or unchanged. A file is updated when its hash
// differs from the previous build, regardless of earlier history.
func Compute(current, previous []fingerprint.FileRecord) Result {
	prevIdx := fingerprint.Index(previous)
	currIdx := fingerprint.Index(current)

	var res Result
	for _, cur := range current {
		prev, ok := prevIdx[cur.RelPath]
		switch {
		case !ok:
			res.Added = append(res.Added, cur)
		case prev.Hash != cur.Hash:
			res.Updated = append(res.Updated, cur)
		}
	}
	for _, prev := range previous {
		if _, ok := currIdx[prev.RelPath]; !ok {
			res.Removed = append(res.Removed, prev)
		}
	}

	fingerprint.SortByPath(res.Added)
	fingerprint.SortByPath(res.Updated)
	fingerprint.SortByPath(res.Removed)
	return res
}

// Empty reports whether nothing changed.
func (r Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Updated) == 0 && len(r.Removed) == 0
}

// Changed returns added and updated records, the files a deployment must
// ship, sorted by path.
func (r Result) Changed() []fingerprint.FileRecord {
	out := make([]fingerprint.FileRecord, 0, len(r.Added)+len(r.Updated))
	out = append(out, r.Added...)
	out = append(out, r.Updated...)
	fingerprint.SortByPath(out)
	return out
}

// ChangedPaths returns the relative paths of Changed.
func (r Result) ChangedPaths() []string {
	changed := r.Changed()
	paths := make([]string, len(changed))
	for i, c := range changed {
		paths[i] = c.RelPath
	}
	return paths
}
