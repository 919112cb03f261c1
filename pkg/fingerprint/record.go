package fingerprint

import (
	"sort"
	"sync"
)

// FileRecord is the fingerprint of one file in a build.
type FileRecord struct {
	// RelPath is relative to the build root with forward slashes.
	RelPath string `json:"filepath"`
	// Hash is the lowercase hex content digest.
	Hash string `json:"hash"`
	Size uint64 `json:"size"`
	// ModifyCount starts at 1 and grows by one each build the content changes.
	ModifyCount uint32 `json:"modifyCount"`
}

// Manifest collects the records of one walk. It is safe for concurrent
// appends while the walk is running.
type Manifest struct {
	mu      sync.Mutex
	records []FileRecord
	total   uint64
}

// NewManifest returns an empty manifest with room for sizeHint records.
func NewManifest(sizeHint int) *Manifest {
	return &Manifest{records: make([]FileRecord, 0, sizeHint)}
}

// Append adds a record.
func (m *Manifest) Append(r FileRecord) {
	m.mu.Lock()
	m.records = append(m.records, r)
	m.total += r.Size
	m.mu.Unlock()
}

// Len returns the number of records.
func (m *Manifest) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// TotalSize returns the sum of all record sizes.
func (m *Manifest) TotalSize() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Records returns a copy of the records sorted by path.
func (m *Manifest) Records() []FileRecord {
	m.mu.Lock()
	out := make([]FileRecord, len(m.records))
	copy(out, m.records)
	m.mu.Unlock()

	SortByPath(out)
	return out
}

// SortByPath sorts records by relative path in place.
func SortByPath(records []FileRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].RelPath < records[j].RelPath })
}

// TotalSize sums the sizes of records.
func TotalSize(records []FileRecord) uint64 {
	var total uint64
	for _, r := range records {
		total += r.Size
	}
	return total
}

// Index maps records by relative path.
func Index(records []FileRecord) map[string]FileRecord {
	idx := make(map[string]FileRecord, len(records))
	for _, r := range records {
		idx[r.RelPath] = r
	}
	return idx
}
