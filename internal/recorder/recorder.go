// Package recorder captures microphone audio into timestamped WAV files.
//
// A Recorder moves between idle, recording, saving and error. Starting is
// gated on microphone permission, cancelling removes the partial file, and
// the output directory is fixed while a capture is in progress.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// State of a Recorder.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateSaving    State = "saving"
	StateError     State = "error"
)

var (
	ErrAlreadyRecording = errors.New("recorder: already recording")
	ErrNotRecording     = errors.New("recorder: not recording")
	ErrFailedToStart    = errors.New("recorder: failed to start")
	ErrFailedToSave     = errors.New("recorder: failed to save")
	ErrInvalidOutputDir = errors.New("recorder: invalid output directory")
	ErrNoRecordings     = errors.New("recorder: no recordings")
)

// Ext is the file extension of every capture.
const Ext = ".wav"

// timestampLayout names captures by their start time.
const timestampLayout = "2006-01-02-150405"

// Artifact is a finished capture.
type Artifact struct {
	Path      string        `json:"path"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// InputGate reports whether microphone input may be used. audio.Coordinator
// implements it.
type InputGate interface {
	PrepareInput(ctx context.Context) error
}

// Session is one running capture writing to a single file.
type Session interface {
	Start() error
	// Stop ends the capture, finalizes the file and returns the captured length.
	Stop() (time.Duration, error)
}

// SessionFactory creates a capture session writing to path.
type SessionFactory func(path string) (Session, error)

// Recorder is safe for concurrent use.
type Recorder struct {
	gate    InputGate
	factory SessionFactory
	now     func() time.Time

	mu        sync.Mutex
	dir       string
	state     State
	active    Session
	path      string
	startedAt time.Time
	latest    *Artifact
}

// New creates an idle recorder saving into dir.
func New(gate InputGate, dir string, factory SessionFactory) *Recorder {
	return &Recorder{
		gate:    gate,
		factory: factory,
		now:     time.Now,
		dir:     dir,
		state:   StateIdle,
	}
}

// State returns the current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Elapsed is how long the current capture has been running, or zero.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return 0
	}
	return max(0, r.now().Sub(r.startedAt))
}

// Start begins a capture. It fails with ErrAlreadyRecording while a capture
// is running or being saved, and with the gate's error when the microphone
// may not be used.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRecording || r.state == StateSaving {
		return ErrAlreadyRecording
	}
	if err := r.gate.PrepareInput(ctx); err != nil {
		r.state = StateError
		return err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.state = StateError
		return fmt.Errorf("%w: %v", ErrFailedToStart, err)
	}

	startedAt := r.now()
	path := r.nextPath(startedAt)
	sess, err := r.factory(path)
	if err == nil {
		err = sess.Start()
	}
	if err != nil {
		r.state = StateError
		os.Remove(path)
		return fmt.Errorf("%w: %v", ErrFailedToStart, err)
	}

	r.active = sess
	r.path = path
	r.startedAt = startedAt
	r.state = StateRecording
	slog.Info("recording started", "path", path)
	return nil
}

// nextPath names a capture after its start time. A second capture within
// the same second gets a numeric suffix.
func (r *Recorder) nextPath(at time.Time) string {
	base := filepath.Join(r.dir, at.Format(timestampLayout))
	path := base + Ext
	for i := 2; ; i++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path
		}
		path = fmt.Sprintf("%s-%d%s", base, i, Ext)
	}
}

// Stop finishes the running capture and returns it.
func (r *Recorder) Stop() (Artifact, error) {
	r.mu.Lock()
	if r.state != StateRecording || r.active == nil {
		r.mu.Unlock()
		return Artifact{}, ErrNotRecording
	}
	r.state = StateSaving
	sess, path, startedAt := r.active, r.path, r.startedAt
	r.mu.Unlock()

	d, err := sess.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = nil
	r.path = ""
	if err == nil {
		_, err = os.Stat(path)
	}
	if err != nil {
		r.state = StateError
		return Artifact{}, fmt.Errorf("%w: %v", ErrFailedToSave, err)
	}

	a := Artifact{Path: path, Duration: max(0, d), CreatedAt: startedAt}
	r.latest = &a
	r.state = StateIdle
	slog.Info("recording saved", "path", path, "duration", a.Duration)
	return a, nil
}

// Cancel abandons the running capture and deletes its file. It does nothing
// while a capture is being saved.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateSaving {
		return
	}
	if r.active != nil {
		if _, err := r.active.Stop(); err != nil {
			slog.Debug("stop cancelled capture", "error", err)
		}
		if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("remove cancelled capture", "path", r.path, "error", err)
		}
	}
	r.active = nil
	r.path = ""
	r.startedAt = time.Time{}
	r.state = StateIdle
}

// OutputDir returns the directory captures are saved into.
func (r *Recorder) OutputDir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dir
}

// SetOutputDir changes the output directory, creating it when missing. It
// fails with ErrAlreadyRecording during a capture and with
// ErrInvalidOutputDir when dir names a file or cannot be created.
func (r *Recorder) SetOutputDir(dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRecording || r.state == StateSaving {
		return ErrAlreadyRecording
	}
	clean, err := validateDir(dir)
	if err != nil {
		return err
	}
	r.dir = clean
	return nil
}

func validateDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidOutputDir)
	}
	clean, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOutputDir, err)
	}
	info, err := os.Stat(clean)
	switch {
	case err == nil && !info.IsDir():
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidOutputDir, clean)
	case err == nil:
		return clean, nil
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("%w: %v", ErrInvalidOutputDir, err)
	}
	if err := os.MkdirAll(clean, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidOutputDir, err)
	}
	return clean, nil
}

// Latest returns the last capture saved by this recorder, or else the
// newest capture found in the output directory.
func (r *Recorder) Latest() (Artifact, error) {
	r.mu.Lock()
	latest := r.latest
	r.mu.Unlock()
	if latest != nil {
		return *latest, nil
	}

	all, err := r.Recordings()
	if err != nil {
		return Artifact{}, err
	}
	if len(all) == 0 {
		return Artifact{}, ErrNoRecordings
	}
	return all[0], nil
}

// Recordings lists the captures in the output directory, newest first.
// Files not named like a capture are skipped.
func (r *Recorder) Recordings() ([]Artifact, error) {
	dir := r.OutputDir()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}

	var out []Artifact
	modified := make(map[string]time.Time)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, Ext) || len(name) < len(timestampLayout) {
			continue
		}
		created, err := time.ParseInLocation(timestampLayout, name[:len(timestampLayout)], time.Local)
		if err != nil {
			continue
		}
		path := filepath.Join(dir, name)
		d, err := wavDuration(path)
		if err != nil {
			slog.Debug("skip unreadable recording", "path", path, "error", err)
			continue
		}
		if info, err := e.Info(); err == nil {
			modified[path] = info.ModTime()
		}
		out = append(out, Artifact{Path: path, Duration: d, CreatedAt: created})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return modified[out[i].Path].After(modified[out[j].Path])
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// FormatElapsed renders d as mm:ss.
func FormatElapsed(d time.Duration) string {
	s := int(max(0, d).Seconds())
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
