package walker

import (
	"io/fs"
	"path"
	"regexp"
	"strings"
	"time"
)

// Predicate decides whether an entry passes a filter. relPath is relative to
// the walk root and forward-slash separated.
type Predicate func(relPath string, info fs.FileInfo) bool

// All combines predicates with AND semantics. Nil predicates are ignored and
// an empty chain matches everything.
func All(preds ...Predicate) Predicate {
	chain := compact(preds)
	return func(relPath string, info fs.FileInfo) bool {
		for _, p := range chain {
			if !p(relPath, info) {
				return false
			}
		}
		return true
	}
}

// Any combines predicates with OR semantics. An empty chain matches nothing.
func Any(preds ...Predicate) Predicate {
	chain := compact(preds)
	return func(relPath string, info fs.FileInfo) bool {
		for _, p := range chain {
			if p(relPath, info) {
				return true
			}
		}
		return false
	}
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	return func(relPath string, info fs.FileInfo) bool { return !p(relPath, info) }
}

func compact(preds []Predicate) []Predicate {
	out := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Contains matches entries whose base name contains sub.
func Contains(sub string) Predicate {
	return func(relPath string, _ fs.FileInfo) bool {
		return strings.Contains(path.Base(relPath), sub)
	}
}

// Regexp matches entries whose base name matches re.
func Regexp(re *regexp.Regexp) Predicate {
	return func(relPath string, _ fs.FileInfo) bool {
		return re.MatchString(path.Base(relPath))
	}
}

// WithExtensions matches files with one of the given extensions, compared
// case-insensitively. The leading dot is optional. No extensions matches all.
func WithExtensions(exts ...string) Predicate {
	if len(exts) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return func(relPath string, _ fs.FileInfo) bool {
		_, ok := set[strings.ToLower(path.Ext(relPath))]
		return ok
	}
}

// WithPatterns matches entries accepted by at least one of the patterns.
func WithPatterns(patterns ...Predicate) Predicate {
	if len(compact(patterns)) == 0 {
		return nil
	}
	return Any(patterns...)
}

// WithExcludes rejects entries matched by any of the patterns.
func WithExcludes(patterns ...Predicate) Predicate {
	if len(compact(patterns)) == 0 {
		return nil
	}
	return Not(Any(patterns...))
}

// WithSizeLimit matches files whose size is within [minSize, maxSize]. A zero maxSize
// means no upper bound.
func WithSizeLimit(minSize, maxSize uint64) Predicate {
	return func(_ string, info fs.FileInfo) bool {
		size := uint64(info.Size())
		if size < minSize {
			return false
		}
		return maxSize == 0 || size <= maxSize
	}
}

// WithDateRange matches entries modified within [after, before]. Zero times
// leave that side open.
func WithDateRange(after, before time.Time) Predicate {
	return func(_ string, info fs.FileInfo) bool {
		mt := info.ModTime()
		if !after.IsZero() && mt.Before(after) {
			return false
		}
		if !before.IsZero() && mt.After(before) {
			return false
		}
		return true
	}
}
