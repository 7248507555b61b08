package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/kamibot/internal/config"
	"github.com/user/kamibot/internal/model"
	"github.com/user/kamibot/internal/startup"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the startup validation checks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		d := model.Resolve(os.Getenv, cfg.Agent.LLMModelID, cfg.ModelStore())
		return printChecks(os.Stdout, cfg, d)
	},
}

// printChecks writes every check result and fails if any check failed.
func printChecks(out io.Writer, cfg *config.Config, d model.Descriptor) error {
	results := startup.Validate(cfg, d)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tMESSAGE")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.Status, r.Message)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if failed := startup.Failed(results); len(failed) > 0 {
		return &startup.CheckError{Failed: failed}
	}
	return nil
}
