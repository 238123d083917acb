// Package mailbox implements a tiny append-only per-bead note board,
// grounded on original_source/src/debussy/mailbox.py: a place agents
// leave free-form notes for each other and for the operator that don't
// belong in a `bd comment` (which the tracker's agents and humans both
// see mixed with issue-tracking chatter). Structured as a single shared
// JSONL file rather than the original's per-agent inbox directories,
// matching internal/eventlog's append-and-fold shape since both are the
// same kind of artifact: a flat, crash-safe, bead-indexed log under
// .debussy/.
package mailbox

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tsturo/debussy/internal/logging"
)

// Note is one free-form message left against a bead.
type Note struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Bead      string    `json:"bead"`
	Sender    string    `json:"sender"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body,omitempty"`
}

// Mailbox appends to, and reads from, a single JSONL file.
type Mailbox struct {
	mu   sync.Mutex
	path string
	log  *logging.Logger
}

// New creates a Mailbox backed by path. The parent directory is created
// on first Post.
func New(path string) *Mailbox {
	return &Mailbox{path: path, log: logging.Default("mailbox")}
}

// Post appends one note. Writes are best-effort: a failure is logged
// and swallowed, matching internal/eventlog's posture that a mailbox
// problem should never block an agent's own work.
func (m *Mailbox) Post(bead, sender, subject, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	note := Note{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Bead:      bead,
		Sender:    sender,
		Subject:   subject,
		Body:      body,
	}

	data, err := json.Marshal(note)
	if err != nil {
		m.log.Warn("marshaling note for bead %s: %v", bead, err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		m.log.Warn("creating mailbox dir: %v", err)
		return
	}

	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		m.log.Warn("opening mailbox: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		m.log.Warn("appending to mailbox: %v", err)
	}
}

// All reads and parses every note in the mailbox, skipping any
// malformed trailing line left by a crash mid-write.
func (m *Mailbox) All() []Note {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.Open(m.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var notes []Note
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var n Note
		if err := json.Unmarshal(line, &n); err != nil {
			continue
		}
		notes = append(notes, n)
	}
	return notes
}

// ForBead returns every note posted against a single bead, in the order
// they were written. No CLI command renders it: `debussy status` takes
// no bead argument and does not read the mailbox.
func (m *Mailbox) ForBead(bead string) []Note {
	var out []Note
	for _, n := range m.All() {
		if n.Bead == bead {
			out = append(out, n)
		}
	}
	return out
}
