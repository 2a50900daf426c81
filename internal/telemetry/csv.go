package telemetry

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/face-gate/internal/facematch"
)

// Header is the fixed column order of the decision log.
var Header = []string{
	"timestamp", "query_id", "best_uid", "best_d", "runner_up_d", "margin",
	"per_face_min", "per_face_top3", "accepted", "reason", "latency",
	"snapshot_version", "true_label",
}

// Sink persists decision records.
type Sink interface {
	Append(rec facematch.DecisionRecord) error
}

// CSVSink appends records to a CSV file. The header is written when the file
// is new or empty. Safe for concurrent use.
type CSVSink struct {
	path string

	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// NewCSVSink creates a sink for path. The file is opened on first Append.
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

// Path returns the log file path.
func (s *CSVSink) Path() string {
	return s.path
}

func (s *CSVSink) open() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			_ = f.Close()
			return fmt.Errorf("write header: %w", err)
		}
	}
	s.file = f
	s.w = w
	return nil
}

// Append writes one record and flushes it to the file.
func (s *CSVSink) Append(rec facematch.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		if err := s.open(); err != nil {
			return err
		}
	}
	if err := s.w.Write(Row(rec)); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush record: %w", err)
	}
	return nil
}

// Close closes the underlying file if it was opened.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	s.w.Flush()
	err := s.file.Close()
	s.file = nil
	s.w = nil
	return err
}

// Row renders a record in Header order.
func Row(rec facematch.DecisionRecord) []string {
	top3 := make([]string, len(rec.PerFaceTop3))
	for i, d := range rec.PerFaceTop3 {
		top3[i] = FormatFloat(d)
	}
	return []string{
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.QueryID,
		rec.BestUserID,
		FormatFloat(rec.BestDistance),
		FormatFloat(rec.RunnerUpDistance),
		FormatFloat(rec.Margin),
		FormatFloat(rec.PerFaceMin),
		strings.Join(top3, ";"),
		strconv.FormatBool(rec.Accepted),
		string(rec.Reason),
		strconv.FormatFloat(rec.Latency.Seconds(), 'f', 6, 64),
		strconv.FormatUint(rec.SnapshotVersion, 10),
		rec.TrueLabel,
	}
}

// FormatFloat formats a distance with six decimals; infinities and NaN use
// the spellings strconv.ParseFloat accepts.
func FormatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case math.IsNaN(v):
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}
