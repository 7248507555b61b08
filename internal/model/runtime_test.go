package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/kamibot/internal/prompt"
	"github.com/user/kamibot/internal/types"
)

type recordingEngine struct {
	system string
	prompt string
}

func (e *recordingEngine) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	e.system = systemPrompt
	e.prompt = prompt
	return "Hi from BMO!", nil
}

func newBuilder(t *testing.T) *prompt.Builder {
	t.Helper()
	b, err := prompt.NewBuilder("", prompt.WordCounter{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestRuntimeModelNotFound(t *testing.T) {
	rt := NewRuntime(t.TempDir(), "llama", EchoEngine{}, newBuilder(t))
	if err := rt.LoadIfNeeded(); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	if _, err := rt.Generate(context.Background(), "hello", "", nil); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound from Generate, got %v", err)
	}
}

func TestRuntimeGenerate(t *testing.T) {
	store := t.TempDir()
	if err := os.WriteFile(filepath.Join(store, "llama"), []byte("w"), 0o644); err != nil {
		t.Fatal(err)
	}
	engine := &recordingEngine{}
	rt := NewRuntime(store, "llama", engine, newBuilder(t))

	vc := types.NewVisionContext("a plant")
	out, err := rt.Generate(context.Background(), "look at this", "You are BMO, an upbeat and helpful desktop companion.", &vc)
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hi from BMO!" {
		t.Errorf("unexpected reply %q", out)
	}
	if engine.system != "You are BMO, an upbeat and helpful desktop companion." {
		t.Errorf("unexpected system prompt %q", engine.system)
	}
	if !strings.Contains(engine.prompt, "Vision context: a plant") || !strings.HasSuffix(engine.prompt, "User: look at this") {
		t.Errorf("unexpected persona prompt %q", engine.prompt)
	}
}

func TestEchoEngine(t *testing.T) {
	out, err := EchoEngine{}.Generate(context.Background(), "sys", "You are BMO.\nUser: hello")
	if err != nil {
		t.Fatal(err)
	}
	if out != "[BMO] hello" {
		t.Errorf("expected '[BMO] hello', got %q", out)
	}

	out, _ = EchoEngine{}.Generate(context.Background(), "", "ping")
	if out != "[BMO] ping" {
		t.Errorf("expected '[BMO] ping', got %q", out)
	}
}
