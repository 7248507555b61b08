// internal/state/journal_test.go
package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/kamibot/internal/agent"
	"github.com/user/kamibot/internal/types"
)

func TestJournal(t *testing.T) {
	dir := t.TempDir()
	session := types.NewSessionID()
	j := NewJournal(dir, session)
	ctx := context.Background()

	turn := types.NewTurnID()
	events := []agent.Event{
		{Kind: agent.EventStateChanged, State: agent.StateListening, TurnID: turn, At: time.Now()},
		{Kind: agent.EventHeardUtterance, Text: "hello", TurnID: turn, At: time.Now()},
		{Kind: agent.EventGeneratedResponse, Text: "Hi from BMO!", TurnID: turn, At: time.Now()},
	}
	for _, e := range events {
		if err := j.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := j.Tail(ctx, session, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d: expected seq %d, got %d", i, i+1, e.Seq)
		}
		if e.ID == "" {
			t.Errorf("entry %d: expected generated id", i)
		}
		if e.SessionID != session || e.TurnID != turn {
			t.Errorf("entry %d: unexpected session/turn %s/%s", i, e.SessionID, e.TurnID)
		}
	}
	if entries[1].Kind != agent.EventHeardUtterance || entries[1].Text != "hello" {
		t.Errorf("unexpected entry %+v", entries[1])
	}
	if entries[0].State != agent.StateListening {
		t.Errorf("expected listening, got %s", entries[0].State)
	}

	count, err := j.Count(ctx, session)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
}

func TestJournalTailLimit(t *testing.T) {
	dir := t.TempDir()
	session := types.NewSessionID()
	j := NewJournal(dir, session)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := j.Record(ctx, agent.Event{Kind: agent.EventStateChanged, State: agent.StateIdle}); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := j.Tail(ctx, session, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Seq != 4 || entries[1].Seq != 5 {
		t.Errorf("expected seqs 4 and 5, got %d and %d", entries[0].Seq, entries[1].Seq)
	}
	if entries[0].At.IsZero() {
		t.Error("expected a zero timestamp to be filled in")
	}
}

func TestJournalContinuesSequence(t *testing.T) {
	dir := t.TempDir()
	session := types.NewSessionID()
	ctx := context.Background()

	first := NewJournal(dir, session)
	first.Record(ctx, agent.Event{Kind: agent.EventError, Text: "boom"})
	first.Record(ctx, agent.Event{Kind: agent.EventError, Text: "boom"})

	// A fresh journal over the same directory keeps counting.
	second := NewJournal(dir, session)
	if err := second.Record(ctx, agent.Event{Kind: agent.EventStateChanged, State: agent.StateIdle}); err != nil {
		t.Fatal(err)
	}
	entries, err := second.Tail(ctx, session, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Seq != 3 {
		t.Errorf("expected seq 3, got %+v", entries)
	}
}

func TestJournalMissingSession(t *testing.T) {
	j := NewJournal(t.TempDir(), types.NewSessionID())
	ctx := context.Background()

	entries, err := j.Tail(ctx, "nope", 10)
	if err != nil || entries != nil {
		t.Errorf("expected nil entries and no error, got %v, %v", entries, err)
	}
	count, err := j.Count(ctx, "nope")
	if err != nil || count != 0 {
		t.Errorf("expected zero count, got %d, %v", count, err)
	}
	if _, err := j.Latest(); !errors.Is(err, ErrNoSessions) {
		t.Errorf("expected ErrNoSessions, got %v", err)
	}
}

func TestJournalSessions(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	older := NewJournal(dir, "older")
	older.Record(ctx, agent.Event{Kind: agent.EventStateChanged, State: agent.StateIdle})
	newer := NewJournal(dir, "newer")
	newer.Record(ctx, agent.Event{Kind: agent.EventStateChanged, State: agent.StateIdle})

	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "sessions", "older", "events.jsonl"), past, past); err != nil {
		t.Fatal(err)
	}

	ids, err := newer.Sessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "newer" || ids[1] != "older" {
		t.Errorf("expected [newer older], got %v", ids)
	}
	latest, err := older.Latest()
	if err != nil {
		t.Fatal(err)
	}
	if latest != "newer" {
		t.Errorf("expected newer, got %s", latest)
	}
}

func TestJournalCorruptLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions", "bad", "events.jsonl")
	os.MkdirAll(filepath.Dir(path), 0o755)
	os.WriteFile(path, []byte("not json\n"), 0o644)

	j := NewJournal(dir, "bad")
	if _, err := j.Tail(context.Background(), "bad", 10); err == nil {
		t.Error("expected unmarshal error")
	}
}
