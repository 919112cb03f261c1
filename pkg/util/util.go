package util

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Permission constants for file and directory modes.
const (
	// UserWritableDirPerms is used for every directory we create, locally and remotely (rwxr-xr-x).
	UserWritableDirPerms os.FileMode = 0755
	// UserWritableFilePerms is used for reports, manifests and archives (rw-r--r--).
	UserWritableFilePerms os.FileMode = 0644
)

// ExpandPath expands the tilde (~) prefix in a path to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// ShellQuote wraps s in single quotes for a POSIX shell, escaping embedded
// single quotes.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// InvertMap takes a map[K]V and returns a map[V]K.
// It's a generic helper for creating reverse lookup maps for enums.
func InvertMap[K comparable, V comparable](m map[K]V) map[V]K {
	inv := make(map[V]K, len(m))
	for k, v := range m {
		inv[v] = k
	}
	return inv
}

// MergeAndDeduplicate combines string slices, dropping duplicates and
// empty entries. The result is sorted so it can be compared and logged.
func MergeAndDeduplicate(slices ...[]string) []string {
	combined := make(map[string]struct{})
	for _, s := range slices {
		for _, item := range s {
			if item == "" {
				continue
			}
			combined[item] = struct{}{}
		}
	}

	result := make([]string, 0, len(combined))
	for item := range combined {
		result = append(result, item)
	}
	sort.Strings(result)
	return result
}
