// Package eventlog implements the append-only JSON-lines pipeline event
// log described in spec.md §4.4/§6: pipeline_events.jsonl under
// .debussy/. Writes are best-effort (a failed append is logged and
// swallowed, never fatal); reads fold the whole file for metrics and
// the completeness audit.
package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tsturo/debussy/internal/logging"
	"github.com/tsturo/debussy/internal/model"
)

// Log appends to, and reads from, a single JSONL file.
type Log struct {
	mu   sync.Mutex
	path string
	log  *logging.Logger
}

// New creates a Log backed by path. The parent directory is created on
// first append.
func New(path string) *Log {
	return &Log{path: path, log: logging.Default("eventlog")}
}

// Record appends one event. Timestamp and ID are filled in if zero/empty.
func (l *Log) Record(e model.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	data, err := json.Marshal(e)
	if err != nil {
		l.log.Warn("marshaling event %s for bead %s: %v", e.Type, e.Bead, err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		l.log.Warn("creating event log dir: %v", err)
		return
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.log.Warn("opening event log: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		l.log.Warn("appending event log: %v", err)
	}
}

// All reads and parses every event in the log, skipping any malformed
// trailing line left by a crash mid-write.
func (l *Log) All() []model.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var events []model.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e model.Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events
}

// ForBead returns every event recorded for a single bead, in file order.
func (l *Log) ForBead(beadID string) []model.Event {
	var out []model.Event
	for _, e := range l.All() {
		if e.Bead == beadID {
			out = append(out, e)
		}
	}
	return out
}
