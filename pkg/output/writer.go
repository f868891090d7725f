// Package output writes normalized records as newline-delimited JSON: one
// append-only file per partition and one combined file per run.
package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Sternrassler/jira-scraper/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// CombinedTimeFormat is the timestamp layout in combined file names.
const CombinedTimeFormat = "20060102_150405"

var (
	bytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jira_output_bytes_written_total",
			Help: "Total number of JSONL bytes appended, by target file kind",
		},
		[]string{"target"},
	)

	writeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jira_output_write_errors_total",
			Help: "Total number of failed page writes, by target file kind",
		},
		[]string{"target"},
	)
)

// Writer appends pages of records to JSONL files. Pages are written whole:
// if any part of a page cannot be written, every file is truncated back to
// its size before the page. Writer is safe for concurrent use.
type Writer struct {
	prefix       string
	combinedPath string
	logger       zerolog.Logger

	mu         sync.Mutex
	combined   *os.File
	partitions map[string]*os.File
	closed     bool
}

// NewWriter creates a writer for files named "{prefix}_{KEY}.jsonl" and
// "{prefix}_combined_{YYYYMMDD_HHMMSS}.jsonl", the latter stamped with
// startedAt. Files are created on first write.
func NewWriter(prefix string, startedAt time.Time, logger zerolog.Logger) (*Writer, error) {
	if prefix == "" {
		return nil, fmt.Errorf("output prefix is required")
	}
	if dir := filepath.Dir(prefix); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	return &Writer{
		prefix:       prefix,
		combinedPath: fmt.Sprintf("%s_combined_%s.jsonl", prefix, startedAt.Format(CombinedTimeFormat)),
		logger:       logger,
		partitions:   make(map[string]*os.File),
	}, nil
}

// PartitionPath returns the output file of a partition.
func (w *Writer) PartitionPath(partition string) string {
	return fmt.Sprintf("%s_%s.jsonl", w.prefix, partition)
}

// CombinedPath returns the combined output file of this run.
func (w *Writer) CombinedPath() string {
	return w.combinedPath
}

// WritePage appends records to the partition file and the combined file and
// syncs both before returning.
func (w *Writer) WritePage(ctx context.Context, partition string, records []record.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	data, err := encode(records)
	if err != nil {
		return fmt.Errorf("encode page for %s: %w", partition, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.New("output writer closed")
	}

	partFile, err := w.partitionFile(partition)
	if err != nil {
		writeErrors.WithLabelValues("partition").Inc()
		return err
	}
	combined, err := w.combinedFile()
	if err != nil {
		writeErrors.WithLabelValues("combined").Inc()
		return err
	}

	partSize, err := appendPage(partFile, data)
	if err != nil {
		writeErrors.WithLabelValues("partition").Inc()
		return fmt.Errorf("write %s: %w", partFile.Name(), err)
	}

	if _, err := appendPage(combined, data); err != nil {
		writeErrors.WithLabelValues("combined").Inc()
		if terr := rollback(partFile, partSize); terr != nil {
			w.logger.Error().Err(terr).Str("file", partFile.Name()).Msg("Rolling back partial page failed")
		}
		return fmt.Errorf("write %s: %w", combined.Name(), err)
	}

	bytesWritten.WithLabelValues("partition").Add(float64(len(data)))
	bytesWritten.WithLabelValues("combined").Add(float64(len(data)))

	w.logger.Debug().
		Str("partition", partition).
		Int("records", len(records)).
		Int("bytes", len(data)).
		Msg("Page written")

	return nil
}

// Close closes all open files.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	for _, f := range w.partitions {
		errs = append(errs, f.Close())
	}
	if w.combined != nil {
		errs = append(errs, w.combined.Close())
	}
	return errors.Join(errs...)
}

// partitionFile must be called with w.mu held.
func (w *Writer) partitionFile(partition string) (*os.File, error) {
	if f, ok := w.partitions[partition]; ok {
		return f, nil
	}
	f, err := openAppend(w.PartitionPath(partition))
	if err != nil {
		return nil, err
	}
	w.partitions[partition] = f
	return f, nil
}

// combinedFile must be called with w.mu held.
func (w *Writer) combinedFile() (*os.File, error) {
	if w.combined != nil {
		return w.combined, nil
	}
	f, err := openAppend(w.combinedPath)
	if err != nil {
		return nil, err
	}
	w.combined = f
	w.logger.Info().Str("file", w.combinedPath).Msg("Combined output opened")
	return f, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// encode renders records as JSON lines without HTML escaping.
func encode(records []record.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// appendPage writes data in one call and syncs. On failure the file is
// truncated back to its previous size. It returns the size before writing.
func appendPage(f *os.File, data []byte) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()

	if _, err := f.Write(data); err != nil {
		return size, errors.Join(err, rollback(f, size))
	}
	if err := f.Sync(); err != nil {
		return size, errors.Join(err, rollback(f, size))
	}
	return size, nil
}

func rollback(f *os.File, size int64) error {
	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("truncate %s: %w", f.Name(), err)
	}
	return f.Sync()
}
