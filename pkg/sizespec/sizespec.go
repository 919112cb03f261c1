// Package sizespec parses the human-friendly size and count settings used in
// the analyze configuration, such as "300kb" or "20%".
package sizespec

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Unit systems accepted by FormatBytes.
const (
	SI  = "si"
	IEC = "iec"
)

// ParseBytes converts a size string to bytes. Plain numbers are bytes,
// "kb"/"mb"/"gb" are powers of 1000 and "kib"/"mib"/"gib" are powers of 1024.
func ParseBytes(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("size cannot be empty")
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n, nil
}

// FormatBytes renders a possibly negative byte count in the given unit system.
func FormatBytes(n int64, unit string) string {
	sign := ""
	abs := uint64(n)
	if n < 0 {
		sign = "-"
		abs = uint64(-n)
	}
	if strings.EqualFold(unit, IEC) {
		return sign + humanize.IBytes(abs)
	}
	return sign + humanize.Bytes(abs)
}

// Count is either an absolute number or a percentage of some total.
type Count struct {
	Value   float64
	Percent bool
}

// ParseCount accepts "10" or "20%".
func ParseCount(s string) (Count, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Count{}, fmt.Errorf("count cannot be empty")
	}

	percent := strings.HasSuffix(s, "%")
	num := strings.TrimSpace(strings.TrimSuffix(s, "%"))
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Count{}, fmt.Errorf("invalid count %q: %w", s, err)
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return Count{}, fmt.Errorf("invalid count %q: must be a non-negative number", s)
	}
	return Count{Value: v, Percent: percent}, nil
}

// Resolve returns the count for a population of total items, rounded up.
func (c Count) Resolve(total int) int {
	v := c.Value
	if c.Percent {
		v = float64(total) * c.Value / 100
	}
	return int(math.Ceil(v))
}

func (c Count) String() string {
	s := strconv.FormatFloat(c.Value, 'f', -1, 64)
	if c.Percent {
		return s + "%"
	}
	return s
}
