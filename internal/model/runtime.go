package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/user/kamibot/internal/prompt"
	"github.com/user/kamibot/internal/types"
	"github.com/user/kamibot/pkg/llm"
)

// Runtime is the language-model service. It implements types.Generator.
type Runtime struct {
	store   string
	modelID string
	engine  llm.Engine
	builder *prompt.Builder

	mu     sync.Mutex
	loaded bool
}

// NewRuntime serves modelID from store through engine.
func NewRuntime(store, modelID string, engine llm.Engine, builder *prompt.Builder) *Runtime {
	return &Runtime{store: store, modelID: modelID, engine: engine, builder: builder}
}

// LoadIfNeeded checks the model artifact is present. It is a no-op once
// loaded.
func (r *Runtime) LoadIfNeeded() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}
	if _, err := os.Stat(filepath.Join(r.store, r.modelID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrModelNotFound, r.modelID)
		}
		return fmt.Errorf("stat model: %w", err)
	}
	r.loaded = true
	slog.Debug("model loaded", "model", r.modelID)
	return nil
}

func (r *Runtime) Generate(ctx context.Context, userPrompt, systemPrompt string, vision *types.VisionContext) (string, error) {
	if err := r.LoadIfNeeded(); err != nil {
		return "", err
	}
	persona, err := r.builder.Build(userPrompt, vision)
	if err != nil {
		return "", err
	}
	slog.Debug("generating", "model", r.modelID, "prompt_tokens", r.builder.Tokens(systemPrompt)+r.builder.Tokens(persona))
	return r.engine.Generate(ctx, systemPrompt, persona)
}

// EchoEngine is an offline llm.Engine that answers with the last line of
// the prompt.
type EchoEngine struct{}

func (EchoEngine) Generate(ctx context.Context, _, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line := prompt
	if i := strings.LastIndex(prompt, "\n"); i >= 0 {
		line = prompt[i+1:]
	}
	line = strings.TrimPrefix(line, "User: ")
	return "[BMO] " + line, nil
}
