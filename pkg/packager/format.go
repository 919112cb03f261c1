package packager

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-deploy/pkg/util"
)

// Format is the archive container.
type Format string

const (
	Zip    Format = "zip"
	TarGz  Format = "tar.gz"
	TarZst Format = "tar.zst"
)

var formatToString = map[Format]string{
	Zip:    "zip",
	TarGz:  "tar.gz",
	TarZst: "tar.zst",
}

var stringToFormat = util.InvertMap(formatToString)

func (f Format) String() string {
	if str, ok := formatToString[f]; ok {
		return str
	}
	return fmt.Sprintf("unknown_archive_format(%s)", string(f))
}

// ParseFormat parses a configured format. Empty selects zip.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return Zip, nil
	}
	if f, ok := stringToFormat[strings.ToLower(s)]; ok {
		return f, nil
	}
	return "", fmt.Errorf("invalid archive format: %q. Must be 'zip', 'tar.gz', or 'tar.zst'", s)
}

// Extension returns the file extension including the leading dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// ArchivePath returns where the archive of root is written inside dir:
// "<dir>/<basename(root)><ext>".
func ArchivePath(dir, root string, f Format) string {
	return filepath.Join(dir, filepath.Base(filepath.Clean(root))+f.Extension())
}

// UnpackCommand returns a POSIX shell command that extracts the remote
// archive into dest, overwriting existing files.
func (f Format) UnpackCommand(archive, dest string) string {
	a, d := util.ShellQuote(path.Clean(archive)), util.ShellQuote(path.Clean(dest))
	switch f {
	case TarGz:
		return fmt.Sprintf("mkdir -p %s && tar -xzf %s -C %s", d, a, d)
	case TarZst:
		return fmt.Sprintf("mkdir -p %s && tar --zstd -xf %s -C %s", d, a, d)
	default:
		return fmt.Sprintf("unzip -o -q %s -d %s", a, d)
	}
}

// Level trades speed for archive size.
type Level string

const (
	Default Level = "default"
	Fastest Level = "fastest"
	Better  Level = "better"
	Best    Level = "best"
)

// ParseLevel parses a configured level. Empty selects the default level.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(s)); l {
	case "":
		return Default, nil
	case Default, Fastest, Better, Best:
		return l, nil
	default:
		return "", fmt.Errorf("invalid compression level: %q. Must be 'default', 'fastest', 'better', or 'best'", s)
	}
}
