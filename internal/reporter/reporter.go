// Package reporter persists run snapshots as JSON artifacts.
//
// Writes are all-or-nothing: the snapshot is encoded into a temporary file
// next to the target, synced, and renamed over the previous artifact. A
// reader never observes a partially written report.
package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"scout/internal/collector"
	"scout/internal/logging"
	"scout/internal/metrics"

	"github.com/sirupsen/logrus"
)

// Default artifact location, relative to the working directory.
const (
	DefaultDir  = "reports/ai-insights"
	DefaultFile = "latest-report.json"
)

// Archiver receives every successfully persisted snapshot.
type Archiver interface {
	Record(ctx context.Context, snap collector.Snapshot) error
}

// Result is the outcome of a Persist call.
type Result struct {
	Path string
	Err  error
}

// OK reports whether the artifact was written.
func (r Result) OK() bool { return r.Err == nil }

type Option func(*Reporter)

func WithArchive(a Archiver) Option {
	return func(r *Reporter) { r.archive = a }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Reporter) { r.log = logging.OrDiscard(l) }
}

// Reporter writes snapshots to a fixed path.
type Reporter struct {
	dir     string
	path    string
	archive Archiver
	log     logrus.FieldLogger
}

// New returns a Reporter writing dir/file. Empty arguments fall back to the
// defaults.
func New(dir, file string, opts ...Option) *Reporter {
	if dir == "" {
		dir = DefaultDir
	}
	if file == "" {
		file = DefaultFile
	}
	r := &Reporter{
		dir:  dir,
		path: filepath.Join(dir, file),
		log:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the artifact path.
func (r *Reporter) Path() string {
	return r.path
}

// Persist writes snap to the artifact path. Failures are returned in the
// Result, never panicked.
func (r *Reporter) Persist(ctx context.Context, snap collector.Snapshot) Result {
	if err := r.write(snap); err != nil {
		metrics.ReportSaves.WithLabelValues(metrics.OutcomeError).Inc()
		r.log.WithError(err).WithField("path", r.path).Warn("report persist failed")
		return Result{Err: err}
	}
	metrics.ReportSaves.WithLabelValues(metrics.OutcomeOK).Inc()
	r.log.WithFields(logrus.Fields{"path": r.path, "events": snap.Len()}).Debug("report saved")

	if r.archive != nil {
		if err := r.archive.Record(ctx, snap); err != nil {
			r.log.WithError(err).WithField("run", snap.RunID).Warn("archiving snapshot failed")
		}
	}
	return Result{Path: r.path}
}

func (r *Reporter) write(snap collector.Snapshot) (err error) {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp report: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing report: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing report: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("setting report mode: %w", err)
	}
	if err = os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replacing report: %w", err)
	}
	return nil
}

// Encode renders snap the way Persist writes it.
func Encode(snap collector.Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// Load reads a persisted artifact back into a Snapshot.
func Load(path string) (*collector.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	var snap collector.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing report %s: %w", path, err)
	}
	return &snap, nil
}
