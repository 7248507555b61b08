package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/kamibot/internal/agent"
	"github.com/user/kamibot/internal/audio"
	"github.com/user/kamibot/internal/config"
	"github.com/user/kamibot/internal/console"
	"github.com/user/kamibot/internal/model"
	"github.com/user/kamibot/internal/prompt"
	"github.com/user/kamibot/internal/startup"
	"github.com/user/kamibot/internal/state"
	"github.com/user/kamibot/internal/stt"
	"github.com/user/kamibot/internal/timeout"
	"github.com/user/kamibot/internal/tts"
	"github.com/user/kamibot/internal/types"
	"github.com/user/kamibot/internal/ui"
	"github.com/user/kamibot/internal/vision"
	"github.com/user/kamibot/internal/wakeword"
	"github.com/user/kamibot/pkg/llm"
	"github.com/user/kamibot/pkg/llm/openai"
)

// app is the wired process: every component the run command drives.
type app struct {
	cfg        *config.Config
	session    types.SessionID
	descriptor model.Descriptor

	agent    *agent.Agent
	detector *wakeword.Detector
	queue    *stt.QueueTranscriber
	gate     *tts.Gate
	snapshot *vision.SnapshotService
	journal  *state.Journal
	hub      *ui.Hub
	server   *ui.Server
	startup  *startup.Coordinator
	reader   *console.Reader
	printer  *console.Printer
}

// newEngine picks the text generator named by llm.provider.
func newEngine(cfg *config.Config) (llm.Engine, error) {
	switch cfg.LLM.Provider {
	case "", "echo":
		return model.EchoEngine{}, nil
	case "openai":
		return openai.New(&llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// newCounter prefers the tokenizer of the configured model and falls back
// to counting words when no encoding can be loaded. Offline providers only
// use tokenizer data that is already cached.
func newCounter(cfg *config.Config) prompt.TokenCounter {
	if cfg.LLM.Provider == "" || cfg.LLM.Provider == "echo" {
		prompt.UseOfflineTokenizer("")
	}
	c, err := prompt.NewTiktokenCounter(cfg.LLM.Model)
	if err != nil {
		slog.Warn("tokenizer unavailable, counting words", "model", cfg.LLM.Model, "error", err)
		return prompt.WordCounter{}
	}
	return c
}

func agentConfig(cfg *config.Config) agent.Config {
	return agent.Config{
		WakeWord:          cfg.Agent.WakeWord,
		LLMModelID:        cfg.Agent.LLMModelID,
		VisionModelID:     cfg.Agent.VisionModelID,
		STTTimeoutSeconds: cfg.Agent.STTTimeoutSeconds,
		LLMTimeoutSeconds: cfg.Agent.LLMTimeoutSeconds,
		TelemetryEnabled:  cfg.Agent.TelemetryEnabled,
		VisionEnabled:     cfg.Agent.VisionEnabled,
		SystemPrompt:      cfg.Agent.SystemPrompt,
	}
}

func newApp(cfg *config.Config, counter prompt.TokenCounter, out io.Writer) (*app, error) {
	engine, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}
	builder, err := prompt.NewBuilder(prompt.DefaultPersona, counter, cfg.LLM.VisionBudgetTokens)
	if err != nil {
		return nil, fmt.Errorf("build persona: %w", err)
	}

	store := cfg.ModelStore()
	descriptor := model.Resolve(os.Getenv, cfg.Agent.LLMModelID, store)
	downloader := model.NewDownloader(store, nil)
	runtime := model.NewRuntime(store, descriptor.ID, engine, builder)

	mic := audio.NewStaticPermission(
		types.ParsePermissionStatus(cfg.Audio.MicrophonePermission),
		types.PermissionAuthorized,
	)

	a := &app{
		cfg:        cfg,
		session:    types.NewSessionID(),
		descriptor: descriptor,
		detector:   wakeword.NewDetector(cfg.Agent.WakeWord, timeout.Seconds(cfg.Wake.DebounceSeconds)),
		queue:      stt.NewQueueTranscriber(),
		gate:       tts.NewGate(tts.NewConsoleSynthesizer(out, cfg.TTS.WordsPerMinute)),
		snapshot:   vision.NewSnapshotService(cfg.Agent.VisionEnabled, vision.FileCapturer{Path: cfg.Vision.FramePath}),
		hub:        ui.NewHub(),
		printer:    console.NewPrinter(out),
	}
	a.journal = state.NewJournal(cfg.JournalDir(), a.session)
	a.reader = console.NewReader(cfg.Agent.WakeWord, a.queue)
	a.startup = startup.NewCoordinator(cfg, descriptor, audio.NewCoordinator(mic), downloader, runtime)

	a.agent = agent.New(agentConfig(cfg), agent.Deps{
		Wake:        a.detector,
		Transcriber: stt.NewRetrier(a.queue, timeout.Seconds(cfg.STT.AttemptTimeoutSeconds), cfg.STT.Retries),
		Speaker:     a.gate,
		Generator:   runtime,
		Vision:      a.snapshot,
	})
	a.reader.OnRecover(a.agent)
	a.server = ui.NewServer(a.agent, a.journal, a.hub)
	return a, nil
}

// run passes the startup gate, then drives the agent from in until ctx ends
// or in is exhausted and the agent is idle again.
func (a *app) run(ctx context.Context, in io.Reader) error {
	report, err := a.startup.Prepare(ctx)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	slog.Info("startup complete", "model", a.descriptor.ID, "path", report.ModelPath, "license", a.descriptor.License)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		ui.Pump(context.WithoutCancel(ctx), a.agent.Events(), a.journal, a.hub, a.printer)
	}()

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.UI.Enabled {
		g.Go(func() error { return a.server.ListenAndServe(gctx, a.cfg.UI.Listen) })
	}

	if err := a.agent.Start(gctx); err != nil {
		cancel()
		g.Wait()
		a.shutdown(pumpDone)
		return err
	}
	slog.Info("listening", "wake_word", a.cfg.Agent.WakeWord, "session_id", a.session)

	g.Go(func() error {
		a.detector.Listen(gctx, a.reader.Signals())
		return nil
	})
	inputDone := make(chan error, 1)
	go func() { inputDone <- a.reader.Run(gctx, in) }()

	select {
	case <-gctx.Done():
	case err := <-inputDone:
		if err != nil {
			slog.Warn("console input failed", "error", err)
		}
		a.waitIdle(gctx)
	}
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer stopCancel()
	if err := a.agent.Stop(stopCtx); err != nil {
		slog.Warn("agent stop", "error", err)
	}
	err = g.Wait()
	a.shutdown(pumpDone)
	return err
}

// waitIdle returns once the agent has settled in Idle with nothing typed
// left to answer, or when ctx ends. An utterance no wake word claims is
// given up on after idleGrace.
func (a *app) waitIdle(ctx context.Context) {
	const (
		tick      = 50 * time.Millisecond
		idleGrace = 20
	)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	idle := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if a.agent.State() != agent.StateIdle {
			idle = 0
			continue
		}
		idle++
		// Two quiet ticks let an in-flight wake signal reach the agent.
		if (idle >= 2 && a.queue.Pending() == 0) || idle >= idleGrace {
			return
		}
	}
}

func (a *app) shutdown(pumpDone <-chan struct{}) {
	a.agent.Close()
	<-pumpDone
	a.detector.Close()
	slog.Info("stopped", "session_id", a.session, "interruptions", a.gate.Interruptions())
}
