package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/kamibot/internal/state"
	"github.com/user/kamibot/internal/types"
)

var journalLimit int

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalListCmd, journalTailCmd, journalClearCmd)
	journalTailCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "number of events to show")
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect recorded agent sessions",
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		j := state.NewJournal(cfg.JournalDir(), "")

		ids, err := j.Sessions()
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if len(ids) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		ctx := context.Background()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEVENTS")
		for _, id := range ids {
			count, err := j.Count(ctx, id)
			if err != nil {
				count = 0
			}
			fmt.Fprintf(w, "%s\t%d\n", id, count)
		}
		return w.Flush()
	},
}

var journalTailCmd = &cobra.Command{
	Use:   "tail [session-id]",
	Short: "Show the last events of a session (default: most recent)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		j := state.NewJournal(cfg.JournalDir(), "")

		var id types.SessionID
		if len(args) == 1 {
			id = types.SessionID(args[0])
		} else {
			latest, err := j.Latest()
			if err != nil {
				return err
			}
			id = latest
		}

		entries, err := j.Tail(context.Background(), id, journalLimit)
		if err != nil {
			return fmt.Errorf("tail session %s: %w", id, err)
		}
		return printEntries(os.Stdout, entries)
	},
}

func printEntries(out io.Writer, entries []*state.Entry) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tAT\tKIND\tDETAIL")
	for _, e := range entries {
		detail := e.Text
		switch {
		case e.State != "":
			detail = string(e.State)
		case e.Expression != "":
			detail = string(e.Expression)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Seq, e.At.Format("2006-01-02 15:04:05"), e.Kind, detail)
	}
	return w.Flush()
}

var journalClearCmd = &cobra.Command{
	Use:   "clear <id|all>",
	Short: "Delete a recorded session or all sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		sessionsDir := filepath.Join(cfg.JournalDir(), "sessions")

		if args[0] == "all" {
			if err := os.RemoveAll(sessionsDir); err != nil {
				return fmt.Errorf("remove sessions directory: %w", err)
			}
			fmt.Println("All sessions cleared.")
			return nil
		}

		// Validate the path to prevent traversal.
		sessionDir := filepath.Join(sessionsDir, args[0])
		resolved, err := filepath.Abs(sessionDir)
		if err != nil {
			return fmt.Errorf("resolve path: %w", err)
		}
		absSessionsDir, _ := filepath.Abs(sessionsDir)
		if !strings.HasPrefix(resolved, absSessionsDir+string(filepath.Separator)) {
			return fmt.Errorf("invalid session ID: %s", args[0])
		}
		if _, err := os.Stat(sessionDir); os.IsNotExist(err) {
			return fmt.Errorf("session not found: %s", args[0])
		}
		if err := os.RemoveAll(sessionDir); err != nil {
			return fmt.Errorf("remove session directory: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Session %s cleared.\n", args[0])
		return nil
	},
}
