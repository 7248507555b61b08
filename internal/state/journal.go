// internal/state/journal.go
package state

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/user/kamibot/internal/agent"
	"github.com/user/kamibot/internal/types"
)

// ErrNoSessions is returned by Latest when the journal is empty.
var ErrNoSessions = errors.New("journal has no sessions")

// Entry is one journaled agent event.
type Entry struct {
	ID         types.EventID    `json:"id"`
	SessionID  types.SessionID  `json:"session_id"`
	Seq        int64            `json:"seq"`
	Kind       agent.EventKind  `json:"kind"`
	State      agent.State      `json:"state,omitempty"`
	Expression agent.Expression `json:"expression,omitempty"`
	Text       string           `json:"text,omitempty"`
	TurnID     types.TurnID     `json:"turn_id,omitempty"`
	At         time.Time        `json:"at"`
}

// Journal is a JSONL-backed append-only event log.
// Entries are stored per-session in sessions/<sessionID>/events.jsonl.
type Journal struct {
	root    string
	session types.SessionID

	mu    sync.Mutex
	locks map[types.SessionID]*sync.Mutex
	seq   map[types.SessionID]int64
}

// NewJournal creates a journal rooted at root that records into session.
func NewJournal(root string, session types.SessionID) *Journal {
	return &Journal{
		root:    root,
		session: session,
		locks:   make(map[types.SessionID]*sync.Mutex),
		seq:     make(map[types.SessionID]int64),
	}
}

// Session is the session Record writes to.
func (j *Journal) Session() types.SessionID {
	return j.session
}

// getLock returns the per-session mutex, creating one if it doesn't exist.
func (j *Journal) getLock(sessionID types.SessionID) *sync.Mutex {
	j.mu.Lock()
	defer j.mu.Unlock()

	if lock, ok := j.locks[sessionID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	j.locks[sessionID] = lock
	return lock
}

func (j *Journal) eventsPath(sessionID types.SessionID) string {
	return filepath.Join(j.root, "sessions", string(sessionID), "events.jsonl")
}

// count reads the event file and counts lines. Caller must hold the session lock.
func (j *Journal) count(sessionID types.SessionID) (int64, error) {
	f, err := os.Open(j.eventsPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	var count int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan events file: %w", err)
	}
	return count, nil
}

// Record appends an agent event to the journal's own session.
func (j *Journal) Record(ctx context.Context, e agent.Event) error {
	return j.Append(ctx, &Entry{
		SessionID:  j.session,
		Kind:       e.Kind,
		State:      e.State,
		Expression: e.Expression,
		Text:       e.Text,
		TurnID:     e.TurnID,
		At:         e.At,
	})
}

// Append adds an entry to its session's log with an auto-incremented
// sequence number. A missing ID is generated.
func (j *Journal) Append(_ context.Context, entry *Entry) error {
	lock := j.getLock(entry.SessionID)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Dir(j.eventsPath(entry.SessionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	// The file is counted once per session; afterwards the cached sequence is used.
	j.mu.Lock()
	seq, ok := j.seq[entry.SessionID]
	j.mu.Unlock()
	if !ok {
		existing, err := j.count(entry.SessionID)
		if err != nil {
			return err
		}
		seq = existing
	}
	entry.Seq = seq + 1
	if entry.ID == "" {
		entry.ID = types.NewEventID()
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	f, err := os.OpenFile(j.eventsPath(entry.SessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}

	j.mu.Lock()
	j.seq[entry.SessionID] = entry.Seq
	j.mu.Unlock()
	return nil
}

// Tail returns the last limit entries for the given session.
func (j *Journal) Tail(_ context.Context, sessionID types.SessionID, limit int) ([]*Entry, error) {
	lock := j.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(j.eventsPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	var entries []*Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan events file: %w", err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// Count returns the number of entries for the given session.
func (j *Journal) Count(_ context.Context, sessionID types.SessionID) (int64, error) {
	lock := j.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return j.count(sessionID)
}

// Sessions lists journaled sessions, most recently written first.
func (j *Journal) Sessions() ([]types.SessionID, error) {
	dirs, err := os.ReadDir(filepath.Join(j.root, "sessions"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	type seen struct {
		id  types.SessionID
		mod time.Time
	}
	var out []seen
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		id := types.SessionID(d.Name())
		info, err := os.Stat(j.eventsPath(id))
		if err != nil {
			continue
		}
		out = append(out, seen{id: id, mod: info.ModTime()})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].mod.After(out[b].mod) })

	ids := make([]types.SessionID, len(out))
	for i, s := range out {
		ids[i] = s.id
	}
	return ids, nil
}

// Latest returns the most recently written session.
func (j *Journal) Latest() (types.SessionID, error) {
	ids, err := j.Sessions()
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", ErrNoSessions
	}
	return ids[0], nil
}
