package walker

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/paulschiretz/pgl-deploy/pkg/plog"
)

type globKind int

const (
	prefixGlob globKind = iota
	suffixGlob
	fullGlob
)

// globSet holds exclusion patterns sorted by how cheaply they can be checked.
// Patterns without a slash match the base name anywhere in the tree, the way
// .gitignore entries do. Matching is case-insensitive.
type globSet struct {
	literals         map[string]struct{}
	basenameLiterals map[string]struct{}
	globs            []glob
}

type glob struct {
	pattern  string
	clean    string
	kind     globKind
	basename bool
	dirOnly  bool
}

func newGlobSet(patterns []string) (*globSet, error) {
	set := &globSet{
		literals:         make(map[string]struct{}),
		basenameLiterals: make(map[string]struct{}),
	}

	for _, raw := range patterns {
		p := normalizePattern(raw)
		if p == "" {
			continue
		}
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", raw, err)
		}
		basename := !strings.Contains(strings.TrimSuffix(p, "/"), "/")

		switch {
		case strings.HasSuffix(p, "/*") && !strings.ContainsAny(p[:len(p)-2], "*?["):
			// "assets/*" excludes everything below assets.
			set.globs = append(set.globs, glob{pattern: p, clean: strings.TrimSuffix(p, "*"), kind: prefixGlob})
		case strings.HasSuffix(p, "*") && !strings.ContainsAny(p[:len(p)-1], "*?["):
			set.globs = append(set.globs, glob{pattern: p, clean: strings.TrimSuffix(p, "*"), kind: prefixGlob, basename: basename})
		case strings.HasPrefix(p, "*") && !strings.ContainsAny(p[1:], "*?["):
			set.globs = append(set.globs, glob{pattern: p, clean: p[1:], kind: suffixGlob, basename: basename})
		case strings.ContainsAny(p, "*?["):
			set.globs = append(set.globs, glob{pattern: p, clean: p, kind: fullGlob, basename: basename})
		case strings.HasSuffix(p, "/"):
			// "buildReport/" names a directory, at the root when it contains
			// a slash, anywhere otherwise.
			name := strings.TrimSuffix(p, "/")
			set.globs = append(set.globs, glob{pattern: p, clean: name, kind: fullGlob, basename: basename, dirOnly: true})
		case basename:
			set.basenameLiterals[p] = struct{}{}
		default:
			set.literals[p] = struct{}{}
		}
	}
	return set, nil
}

func (s *globSet) empty() bool {
	return len(s.literals) == 0 && len(s.basenameLiterals) == 0 && len(s.globs) == 0
}

func (s *globSet) matches(relPath string, isDir bool) bool {
	full := normalizePattern(relPath)
	base := path.Base(full)

	if _, ok := s.literals[full]; ok {
		return true
	}
	if _, ok := s.basenameLiterals[base]; ok {
		return true
	}

	for _, g := range s.globs {
		if g.dirOnly && !isDir {
			continue
		}
		target := full
		if g.basename {
			target = base
		}

		switch g.kind {
		case prefixGlob:
			if strings.HasPrefix(target, g.clean) {
				return true
			}
		case suffixGlob:
			if strings.HasSuffix(target, g.clean) {
				return true
			}
		case fullGlob:
			ok, err := path.Match(g.clean, target)
			if err != nil {
				plog.Warn("Invalid exclusion pattern", "pattern", g.pattern, "error", err)
				continue
			}
			if ok {
				return true
			}
		}
	}
	return false
}

// normalizePattern lowercases and converts backslashes so patterns written
// on Windows match the forward-slash relative paths produced by the walker.
func normalizePattern(p string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(p), `\`, "/"))
}

// ExcludeGlobs returns a predicate rejecting entries matched by any of the
// patterns. Supported forms are literal names ("node_modules"), literal
// paths ("static/config.json"), directories ("buildReport/"), prefixes
// ("tmp_*", "assets/*"), suffixes ("*.gz") and general globs. A nil
// predicate is returned when there are no patterns.
func ExcludeGlobs(patterns []string) (Predicate, error) {
	set, err := newGlobSet(patterns)
	if err != nil {
		return nil, err
	}
	if set.empty() {
		return nil, nil
	}
	return func(relPath string, info fs.FileInfo) bool {
		return !set.matches(relPath, info != nil && info.IsDir())
	}, nil
}
