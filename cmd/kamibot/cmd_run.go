package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the agent with a console harness",
	Long: `Start the agent. Each line typed on stdin stands in for the microphone:
a line equal to the wake word is a wake detection, "BMO, <text>" wakes the
agent with <text> as the utterance, and any other line is queued as the next
utterance.`,
	Args: cobra.NoArgs,
	RunE: runAgent,
}

// writePIDFile refuses to start a second agent over the same data dir.
func writePIDFile(dataDir string) (string, error) {
	if pid, err := runningPID(dataDir); err == nil {
		return "", fmt.Errorf("agent already running (PID %d)", pid)
	}
	path := pidPath(dataDir)
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return path, nil
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	pidFile, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidFile)

	a, err := newApp(cfg, newCounter(cfg), os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("kamibot starting",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"wake_word", cfg.Agent.WakeWord,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"vision_enabled", cfg.Agent.VisionEnabled,
		"ui_enabled", cfg.UI.Enabled,
		"pid_file", pidFile,
	)
	return a.run(ctx, os.Stdin)
}
