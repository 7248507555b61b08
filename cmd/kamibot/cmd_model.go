package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/kamibot/internal/model"
)

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelFetchCmd, modelInfoCmd)
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage the language model artifact",
}

var modelFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and verify the configured model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		d := model.Resolve(os.Getenv, cfg.Agent.LLMModelID, cfg.ModelStore())
		path, err := model.NewDownloader(cfg.ModelStore(), nil).EnsureAvailable(ctx, d)
		if err != nil {
			return fmt.Errorf("fetch model %s: %w", d.ID, err)
		}
		fmt.Fprintf(os.Stdout, "Model %s available at %s\n", d.ID, path)
		return nil
	},
}

var modelInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the resolved model descriptor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		d := model.Resolve(os.Getenv, cfg.Agent.LLMModelID, cfg.ModelStore())

		info := struct {
			model.Descriptor
			Pinned bool   `json:"pinned"`
			Path   string `json:"path"`
			Local  bool   `json:"local"`
		}{Descriptor: d, Pinned: d.Pinned()}
		info.Path = model.NewDownloader(cfg.ModelStore(), nil).Path(d)
		if _, err := os.Stat(info.Path); err == nil {
			info.Local = true
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	},
}
