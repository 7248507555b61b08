package agent

import (
	"time"

	"github.com/user/kamibot/internal/timeout"
)

// DefaultSystemPrompt is sent with every generation request.
const DefaultSystemPrompt = "You are BMO, an upbeat and helpful desktop companion."

// Config is the immutable run configuration of an Agent.
type Config struct {
	WakeWord          string
	LLMModelID        string
	VisionModelID     string
	STTTimeoutSeconds float64
	LLMTimeoutSeconds float64
	TelemetryEnabled  bool
	VisionEnabled     bool
	SystemPrompt      string
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		WakeWord:          "BMO",
		LLMModelID:        "llama-3.1-8b-4bit",
		VisionModelID:     "moondream",
		STTTimeoutSeconds: 8,
		LLMTimeoutSeconds: 25,
		SystemPrompt:      DefaultSystemPrompt,
	}
}

// Enforced returns c with fixed policy applied: telemetry is always off.
// Unset timeouts and prompt fall back to the defaults.
func (c Config) Enforced() Config {
	def := DefaultConfig()
	c.TelemetryEnabled = false
	if c.STTTimeoutSeconds <= 0 {
		c.STTTimeoutSeconds = def.STTTimeoutSeconds
	}
	if c.LLMTimeoutSeconds <= 0 {
		c.LLMTimeoutSeconds = def.LLMTimeoutSeconds
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = def.SystemPrompt
	}
	return c
}

func (c Config) sttBound() time.Duration { return timeout.Seconds(c.STTTimeoutSeconds) }
func (c Config) llmBound() time.Duration { return timeout.Seconds(c.LLMTimeoutSeconds) }
