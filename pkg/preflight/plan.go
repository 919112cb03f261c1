package preflight

// Plan selects which checks Run performs.
type Plan struct {
	BuildRootAccessible bool
	ReportDirWritable   bool
	PathNesting         bool
	LocalPathAccessible bool
}

// Paths are the locations checked by Run. Empty paths skip their checks.
type Paths struct {
	BuildDir  string
	ReportDir string
	LocalPath string
}
