package startup

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/user/kamibot/internal/config"
	"github.com/user/kamibot/internal/model"
)

// InputPreparer readies audio input.
type InputPreparer interface {
	PrepareInput(ctx context.Context) error
}

// ModelLoader loads the acquired model into the runtime.
type ModelLoader interface {
	LoadIfNeeded() error
}

// Report is what a successful Prepare established.
type Report struct {
	Checks    []CheckResult
	ModelPath string
}

// Coordinator runs the startup gate once before the agent starts.
type Coordinator struct {
	cfg        *config.Config
	descriptor model.Descriptor
	audio      InputPreparer
	downloader *model.Downloader
	loader     ModelLoader
}

func NewCoordinator(cfg *config.Config, d model.Descriptor, audio InputPreparer, dl *model.Downloader, loader ModelLoader) *Coordinator {
	return &Coordinator{cfg: cfg, descriptor: d, audio: audio, downloader: dl, loader: loader}
}

// Prepare validates policy, then readies audio input and the model
// concurrently. Any failure is fatal; nothing is retried.
func (c *Coordinator) Prepare(ctx context.Context) (*Report, error) {
	report := &Report{Checks: Validate(c.cfg, c.descriptor)}
	for _, r := range report.Checks {
		slog.Info("startup check", "id", r.ID, "status", r.Status, "message", r.Message)
	}
	if failed := Failed(report.Checks); len(failed) > 0 {
		return report, &CheckError{Failed: failed}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.audio.PrepareInput(ctx); err != nil {
			return fmt.Errorf("prepare audio input: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		path, err := c.downloader.EnsureAvailable(ctx, c.descriptor)
		if err != nil {
			return fmt.Errorf("acquire model %s: %w", c.descriptor.ID, err)
		}
		if err := c.loader.LoadIfNeeded(); err != nil {
			return fmt.Errorf("load model: %w", err)
		}
		report.ModelPath = path
		return nil
	})
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}
