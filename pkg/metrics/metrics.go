package metrics

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/paulschiretz/pgl-deploy/pkg/plog"
)

// Namespace prefixes every exported metric name.
const Namespace = "pgl_deploy"

// Analyze collects fingerprinting statistics.
type Analyze interface {
	AddFilesHashed(n int64)
	AddBytesHashed(n int64)
	Log()
}

// Transfer collects upload statistics.
type Transfer interface {
	AddFilesUploaded(n int64)
	AddBytesUploaded(n int64)
	AddDirsCreated(n int64)
	AddDirWarnings(n int64)
	AddRetries(n int64)
	Log()
}

// AnalyzeMetrics is the counting implementation of Analyze.
type AnalyzeMetrics struct {
	FilesHashed atomic.Int64
	BytesHashed atomic.Int64
}

func (m *AnalyzeMetrics) AddFilesHashed(n int64) { m.FilesHashed.Add(n) }
func (m *AnalyzeMetrics) AddBytesHashed(n int64) { m.BytesHashed.Add(n) }

// Log prints a summary of the fingerprinting pass.
func (m *AnalyzeMetrics) Log() {
	plog.Info("SUM",
		"filesHashed", m.FilesHashed.Load(),
		"bytesHashed", m.BytesHashed.Load(),
	)
}

// WriteTextfile exports the counters in the Prometheus text format, for
// pickup by a node exporter textfile collector.
func (m *AnalyzeMetrics) WriteTextfile(path string) error {
	return writeTextfile(path, "analyze", map[string]*atomic.Int64{
		"files_hashed": &m.FilesHashed,
		"bytes_hashed": &m.BytesHashed,
	})
}

// TransferMetrics is the counting implementation of Transfer.
type TransferMetrics struct {
	FilesUploaded atomic.Int64
	BytesUploaded atomic.Int64
	DirsCreated   atomic.Int64
	DirWarnings   atomic.Int64
	Retries       atomic.Int64
}

func (m *TransferMetrics) AddFilesUploaded(n int64) { m.FilesUploaded.Add(n) }
func (m *TransferMetrics) AddBytesUploaded(n int64) { m.BytesUploaded.Add(n) }
func (m *TransferMetrics) AddDirsCreated(n int64)   { m.DirsCreated.Add(n) }
func (m *TransferMetrics) AddDirWarnings(n int64)   { m.DirWarnings.Add(n) }
func (m *TransferMetrics) AddRetries(n int64)       { m.Retries.Add(n) }

// Log prints a summary of the transfer.
func (m *TransferMetrics) Log() {
	plog.Info("SUM",
		"filesUploaded", m.FilesUploaded.Load(),
		"bytesUploaded", m.BytesUploaded.Load(),
		"dirsCreated", m.DirsCreated.Load(),
		"dirWarnings", m.DirWarnings.Load(),
		"retries", m.Retries.Load(),
	)
}

// WriteTextfile exports the counters in the Prometheus text format.
func (m *TransferMetrics) WriteTextfile(path string) error {
	return writeTextfile(path, "deploy", map[string]*atomic.Int64{
		"files_uploaded": &m.FilesUploaded,
		"bytes_uploaded": &m.BytesUploaded,
		"dirs_created":   &m.DirsCreated,
		"dir_warnings":   &m.DirWarnings,
		"retries":        &m.Retries,
	})
}

func writeTextfile(path, subsystem string, counters map[string]*atomic.Int64) error {
	reg := prometheus.NewRegistry()
	for name, c := range counters {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      fmt.Sprintf("Value of %s for the last %s run.", name, subsystem),
		}, func() float64 { return float64(c.Load()) }))
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}

// NoopAnalyze discards all analyze metrics.
type NoopAnalyze struct{}

func (m *NoopAnalyze) AddFilesHashed(n int64) {}
func (m *NoopAnalyze) AddBytesHashed(n int64) {}
func (m *NoopAnalyze) Log()                   {}

// NoopTransfer discards all transfer metrics.
type NoopTransfer struct{}

func (m *NoopTransfer) AddFilesUploaded(n int64) {}
func (m *NoopTransfer) AddBytesUploaded(n int64) {}
func (m *NoopTransfer) AddDirsCreated(n int64)   {}
func (m *NoopTransfer) AddDirWarnings(n int64)   {}
func (m *NoopTransfer) AddRetries(n int64)       {}
func (m *NoopTransfer) Log()                     {}

// Statically assert that our types implement the interfaces.
var _ Analyze = (*AnalyzeMetrics)(nil)
var _ Analyze = (*NoopAnalyze)(nil)
var _ Transfer = (*TransferMetrics)(nil)
var _ Transfer = (*NoopTransfer)(nil)
