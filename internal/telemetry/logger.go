package telemetry

import (
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/face-gate/internal/facematch"
)

// DefaultBuffer is the channel capacity used when NewLogger gets a non-positive size.
const DefaultBuffer = 1024

// Stats are the logger's lifetime counters.
type Stats struct {
	Logged  uint64 `json:"logged"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

// Logger records decisions asynchronously. Log never blocks the caller:
// when the buffer is full the record is dropped and counted.
type Logger struct {
	sink Sink
	ch   chan facematch.DecisionRecord
	done chan struct{}

	mu     sync.RWMutex
	closed bool

	logged  atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewLogger starts the background writer for sink.
func NewLogger(sink Sink, buffer int) *Logger {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	l := &Logger{
		sink: sink,
		ch:   make(chan facematch.DecisionRecord, buffer),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Logger) run() {
	defer close(l.done)
	for rec := range l.ch {
		if err := l.sink.Append(rec); err != nil {
			l.failed.Add(1)
			log.Printf("telemetry: failed to append record %s: %v", rec.QueryID, err)
			continue
		}
		l.logged.Add(1)
	}
}

// Log enqueues rec. Records logged after Close are dropped.
func (l *Logger) Log(rec facematch.DecisionRecord) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		l.dropped.Add(1)
		return
	}
	select {
	case l.ch <- rec:
	default:
		l.dropped.Add(1)
	}
}

// Stats returns a snapshot of the counters.
func (l *Logger) Stats() Stats {
	return Stats{
		Logged:  l.logged.Load(),
		Failed:  l.failed.Load(),
		Dropped: l.dropped.Load(),
	}
}

// Close stops accepting records, drains the buffer and closes the sink if it
// implements io.Closer.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return nil
	}
	l.closed = true
	close(l.ch)
	l.mu.Unlock()

	<-l.done
	if c, ok := l.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
