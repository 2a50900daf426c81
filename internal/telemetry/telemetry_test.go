package telemetry

import (
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-gate/internal/facematch"
)

func sampleRecord(id string) facematch.DecisionRecord {
	return facematch.DecisionRecord{
		QueryID:          id,
		Timestamp:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		BestUserID:       "alice",
		BestDistance:     0.31,
		RunnerUpDistance: math.Inf(1),
		Margin:           math.Inf(1),
		PerFaceMin:       0.28,
		PerFaceTop3:      []float64{0.28, 0.33},
		Accepted:         true,
		Reason:           facematch.ReasonAccepted,
		Latency:          1500 * time.Microsecond,
		SnapshotVersion:  7,
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func TestRow(t *testing.T) {
	row := Row(sampleRecord("q1"))
	if len(row) != len(Header) {
		t.Fatalf("expected %d columns, got %d", len(Header), len(row))
	}

	want := map[string]string{
		"timestamp":        "2025-03-01T12:00:00Z",
		"query_id":         "q1",
		"best_uid":         "alice",
		"best_d":           "0.310000",
		"runner_up_d":      "+Inf",
		"margin":           "+Inf",
		"per_face_top3":    "0.280000;0.330000",
		"accepted":         "true",
		"reason":           "accepted",
		"latency":          "0.001500",
		"snapshot_version": "7",
		"true_label":       "",
	}
	for i, col := range Header {
		if w, ok := want[col]; ok && row[i] != w {
			t.Errorf("%s = %q, want %q", col, row[i], w)
		}
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.5, "0.500000"},
		{math.Inf(1), "+Inf"},
		{math.Inf(-1), "-Inf"},
		{math.NaN(), "NaN"},
	}
	for _, tt := range tests {
		if got := FormatFloat(tt.in); got != tt.want {
			t.Errorf("FormatFloat(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCSVSink_HeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs", "face_match_log.csv")

	s := NewCSVSink(path)
	if err := s.Append(sampleRecord("q1")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopening an existing, non-empty file must not repeat the header.
	s = NewCSVSink(path)
	if err := s.Append(sampleRecord("q2")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d rows", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][len(Header)-1] != "true_label" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][1] != "q1" || rows[2][1] != "q2" {
		t.Errorf("unexpected query ids %q, %q", rows[1][1], rows[2][1])
	}
}

func TestCSVSink_EmptyExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := NewCSVSink(path)
	defer s.Close()
	if err := s.Append(sampleRecord("q1")); err != nil {
		t.Fatalf("append: %v", err)
	}
	rows := readCSV(t, path)
	if len(rows) != 2 || rows[0][0] != "timestamp" {
		t.Errorf("expected header to be written into empty file, got %v", rows)
	}
}

type memorySink struct {
	mu   sync.Mutex
	recs []facematch.DecisionRecord
	err  error
}

func (m *memorySink) Append(rec facematch.DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, rec)
	return nil
}

func TestLogger_DrainsOnClose(t *testing.T) {
	sink := &memorySink{}
	l := NewLogger(sink, 100)
	for range 50 {
		l.Log(sampleRecord("q"))
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st := l.Stats()
	if st.Logged != 50 || st.Failed != 0 || st.Dropped != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
	if len(sink.recs) != 50 {
		t.Errorf("expected 50 records in sink, got %d", len(sink.recs))
	}

	// Logging after close is counted, not panicking.
	l.Log(sampleRecord("late"))
	if l.Stats().Dropped != 1 {
		t.Errorf("expected late record to be dropped")
	}
	if err := l.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestLogger_SinkErrorsCounted(t *testing.T) {
	l := NewLogger(&memorySink{err: errors.New("disk full")}, 10)
	l.Log(sampleRecord("q1"))
	l.Log(sampleRecord("q2"))
	_ = l.Close()

	st := l.Stats()
	if st.Failed != 2 || st.Logged != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
}

type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSink) Append(rec facematch.DecisionRecord) error {
	b.entered <- struct{}{}
	<-b.release
	return nil
}

func TestLogger_DropsWhenFull(t *testing.T) {
	sink := &blockingSink{entered: make(chan struct{}, 3), release: make(chan struct{})}
	l := NewLogger(sink, 1)

	l.Log(sampleRecord("q1"))
	<-sink.entered // q1 is being written, buffer is empty again

	l.Log(sampleRecord("q2")) // fills the buffer
	l.Log(sampleRecord("q3")) // dropped

	close(sink.release)
	_ = l.Close()

	st := l.Stats()
	if st.Logged != 2 || st.Dropped != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}
