package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var errNotRunning = errors.New("agent is not running")

var stopWait time.Duration

func init() {
	rootCmd.AddCommand(stopCmd, statusCmd)
	stopCmd.Flags().DurationVar(&stopWait, "wait", 5*time.Second, "how long to wait for the agent to exit (0 to not wait)")
}

func pidPath(dataDir string) string {
	return filepath.Join(dataDir, "kamibot.pid")
}

// runningPID returns the PID recorded by `kamibot run` if that process is
// still alive.
func runningPID(dataDir string) (int, error) {
	data, err := os.ReadFile(pidPath(dataDir))
	if errors.Is(err, os.ErrNotExist) {
		return 0, errNotRunning
	}
	if err != nil {
		return 0, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	if !alive(pid) {
		return 0, fmt.Errorf("%w (stale PID %d)", errNotRunning, pid)
	}
	return pid, nil
}

// alive probes pid with signal 0.
func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether an agent is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := runningPID(loadConfig().DataDir)
		if errors.Is(err, errNotRunning) {
			fmt.Fprintln(os.Stdout, "Not running.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Running (PID %d).\n", pid)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the running agent to shut down",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := runningPID(loadConfig().DataDir)
		if err != nil {
			return err
		}
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			return fmt.Errorf("send SIGTERM to %d: %w", pid, err)
		}
		if stopWait <= 0 {
			fmt.Fprintf(os.Stdout, "Sent SIGTERM to agent (PID %d).\n", pid)
			return nil
		}

		deadline := time.Now().Add(stopWait)
		for alive(pid) {
			if time.Now().After(deadline) {
				return fmt.Errorf("agent (PID %d) still running after %s", pid, stopWait)
			}
			time.Sleep(100 * time.Millisecond)
		}
		fmt.Fprintf(os.Stdout, "Agent (PID %d) stopped.\n", pid)
		return nil
	},
}
