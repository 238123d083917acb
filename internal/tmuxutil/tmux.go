// Package tmuxutil wraps the tmux CLI for agents rendered in their own
// window: session/window existence checks, send-keys-then-Enter
// nudging.
package tmuxutil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"
)

const Timeout = 5 * time.Second

// Tmux runs tmux commands against a fixed session.
type Tmux struct {
	Session string
}

// New creates a Tmux bound to the given session name. The session is
// created on demand by EnsureSession.
func New(session string) *Tmux {
	return &Tmux{Session: session}
}

func (t *Tmux) run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tmux %v: %w (%s)", args, err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// HasSession reports whether the session exists.
func (t *Tmux) HasSession() bool {
	_, err := t.run("has-session", "-t", t.Session)
	return err == nil
}

// EnsureSession creates the session (detached) if it doesn't exist.
func (t *Tmux) EnsureSession() error {
	if t.HasSession() {
		return nil
	}
	_, err := t.run("new-session", "-d", "-s", t.Session)
	return err
}

// NewWindow creates a detached window running command in dir, returning
// the window id (e.g. "session:3"). name becomes the window's name. Any
// entries in env are exported ahead of command via an
// "env VAR='val' ..." prefix, since tmux runs a shell-command string through the user's
// shell rather than exec'ing it directly, so a leading env assignment
// is enough to reach the agent process.
func (t *Tmux) NewWindow(name, dir string, env map[string]string, command string) (string, error) {
	if err := t.EnsureSession(); err != nil {
		return "", err
	}

	args := []string{"new-window", "-t", t.Session, "-n", name, "-P", "-F", "#{session_name}:#{window_index}"}
	if dir != "" {
		args = append(args, "-c", dir)
	}
	args = append(args, withEnvPrefix(env, command))

	out, err := t.run(args...)
	if err != nil {
		return "", err
	}
	return out, nil
}

// withEnvPrefix builds "env KEY='val' ... command", sorted by key for
// deterministic output. Values are single-quoted, with any embedded
// single quote escaped the POSIX-shell way ('\'').
func withEnvPrefix(env map[string]string, command string) string {
	if len(env) == 0 {
		return command
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	assignments := make([]string, 0, len(keys)+1)
	assignments = append(assignments, "env")
	for _, k := range keys {
		assignments = append(assignments, fmt.Sprintf("%s=%s", k, shellQuote(env[k])))
	}
	return strings.Join(assignments, " ") + " " + command
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// SendKeys sends literal text to a window followed by Enter.
func (t *Tmux) SendKeys(window, text string) error {
	_, err := t.run("send-keys", "-t", window, "-l", text)
	if err != nil {
		return err
	}
	_, err = t.run("send-keys", "-t", window, "Enter")
	return err
}

// KillWindow destroys a window.
func (t *Tmux) KillWindow(window string) error {
	_, err := t.run("kill-window", "-t", window)
	return err
}

// ListWindows returns the names of every window in the session, used by
// the watcher to batch-refresh liveness with one call per cycle.
func (t *Tmux) ListWindows() ([]string, error) {
	out, err := t.run("list-windows", "-t", t.Session, "-F", "#{window_name}")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// WindowExists reports whether a window with the given name is in cache,
// a ListWindows result taken once per cycle so there is no tmux call
// per agent, per spec.md §4.8 step 1. It makes no tmux call itself; a
// nil cache reports false.
func WindowExists(cache []string, name string) bool {
	for _, w := range cache {
		if w == name {
			return true
		}
	}
	return false
}
