package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/kamibot/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("KAMI BOT Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.Agent.WakeWord = ask(scanner, "Wake word", cfg.Agent.WakeWord)

		provider := ask(scanner, "LLM provider (echo|openai)", cfg.LLM.Provider)
		if provider != "echo" && provider != "openai" {
			return fmt.Errorf("unknown llm provider %q", provider)
		}
		cfg.LLM.Provider = provider
		if provider == "openai" {
			cfg.LLM.BaseURL = ask(scanner, "LLM base URL", cfg.LLM.BaseURL)
			cfg.LLM.APIKey = ask(scanner, "LLM API key", cfg.LLM.APIKey)
			cfg.LLM.Model = ask(scanner, "LLM model name", cfg.LLM.Model)
		}

		switch strings.ToLower(ask(scanner, "Enable vision (y/n)", yesNo(cfg.Agent.VisionEnabled))) {
		case "y", "yes":
			cfg.Agent.VisionEnabled = true
			cfg.Vision.FramePath = ask(scanner, "Camera frame file", cfg.Vision.FramePath)
		case "n", "no":
			cfg.Agent.VisionEnabled = false
		}

		switch strings.ToLower(ask(scanner, "Serve the UI websocket (y/n)", yesNo(cfg.UI.Enabled))) {
		case "y", "yes":
			cfg.UI.Enabled = true
			cfg.UI.Listen = ask(scanner, "UI listen address", cfg.UI.Listen)
		case "n", "no":
			cfg.UI.Enabled = false
		}

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}

// ask displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func ask(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
