package analysis

import (
	"sort"

	"github.com/paulschiretz/pgl-deploy/pkg/fingerprint"
	"github.com/paulschiretz/pgl-deploy/pkg/sizespec"
)

// Weights are the factors of the cache score.
type Weights struct {
	Size   float64 `json:"size" yaml:"size"`
	Modify float64 `json:"modify" yaml:"modify"`
}

// DefaultWeights favour stable files over large ones.
var DefaultWeights = Weights{Size: 4, Modify: 6}

// ScoredFile is a record with its cache priority.
type ScoredFile struct {
	fingerprint.FileRecord
	WeightSize   float64 `json:"weightSize"`
	WeightModify float64 `json:"weightModify"`
	Score        float64 `json:"score"`
}

// Score ranks records for caching, highest score first. Large files and
// files that rarely change score high.
func Score(records []fingerprint.FileRecord, deployCount uint32, totalSize uint64, w Weights) []ScoredFile {
	deploys := float64(max(deployCount, 1))

	scored := make([]ScoredFile, len(records))
	for i, r := range records {
		var wSize float64
		if totalSize > 0 {
			wSize = float64(r.Size) / float64(totalSize)
		}
		wModify := deploys / float64(max(r.ModifyCount, 1))
		scored[i] = ScoredFile{
			FileRecord:   r,
			WeightSize:   wSize,
			WeightModify: wModify,
			Score:        w.Size*wSize + w.Modify*wModify,
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].RelPath < scored[j].RelPath
	})
	return scored
}

// CacheListLength returns how many files to recommend for caching out of
// total. The larger of the two resolved bounds wins, so minCount is a floor
// even when a percentage maxCount resolves below it.
func CacheListLength(total int, maxCount, minCount sizespec.Count) int {
	n := max(maxCount.Resolve(total), minCount.Resolve(total))
	return min(n, total)
}

// CacheCandidates returns the head of an already scored list.
func CacheCandidates(scored []ScoredFile, maxCount, minCount sizespec.Count) []ScoredFile {
	return scored[:CacheListLength(len(scored), maxCount, minCount)]
}

// Oversized returns records strictly larger than threshold bytes, largest first.
func Oversized(records []fingerprint.FileRecord, threshold uint64) []fingerprint.FileRecord {
	var out []fingerprint.FileRecord
	for _, r := range records {
		if r.Size > threshold {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Size != out[j].Size {
			return out[i].Size > out[j].Size
		}
		return out[i].RelPath < out[j].RelPath
	})
	return out
}
