package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

var (
	// ErrTelemetryLocked is returned when something tries to turn telemetry on.
	ErrTelemetryLocked = errors.New("telemetry must remain disabled by project policy")
	ErrUnknownKey      = errors.New("unknown config key")
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Agent    struct {
		WakeWord          string  `json:"wake_word"`
		LLMModelID        string  `json:"llm_model_id"`
		VisionModelID     string  `json:"vision_model_id"`
		STTTimeoutSeconds float64 `json:"stt_timeout_seconds"`
		LLMTimeoutSeconds float64 `json:"llm_timeout_seconds"`
		TelemetryEnabled  bool    `json:"telemetry_enabled"`
		VisionEnabled     bool    `json:"vision_enabled"`
		SystemPrompt      string  `json:"system_prompt"`
	} `json:"agent"`
	Wake struct {
		DebounceSeconds float64 `json:"debounce_seconds"`
	} `json:"wake"`
	STT struct {
		AttemptTimeoutSeconds float64 `json:"attempt_timeout_seconds"`
		Retries               int     `json:"retries"`
	} `json:"stt"`
	TTS struct {
		WordsPerMinute int `json:"words_per_minute"`
	} `json:"tts"`
	LLM struct {
		Provider           string  `json:"provider"`
		BaseURL            string  `json:"base_url"`
		APIKey             string  `json:"api_key"`
		Model              string  `json:"model"`
		MaxTokens          int     `json:"max_tokens"`
		Temperature        float32 `json:"temperature"`
		VisionBudgetTokens int     `json:"vision_budget_tokens"`
	} `json:"llm"`
	Model struct {
		StoreDir string `json:"store_dir"`
	} `json:"model"`
	Vision struct {
		FramePath string `json:"frame_path"`
	} `json:"vision"`
	Audio struct {
		MicrophonePermission string `json:"microphone_permission"`
	} `json:"audio"`
	UI struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"ui"`
	Recorder struct {
		OutputDir      string `json:"output_dir"`
		CaptureCommand string `json:"capture_command"`
		SampleRate     int    `json:"sample_rate"`
	} `json:"recorder"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".kamibot"),
		LogLevel: "info",
	}
	cfg.Agent.WakeWord = "BMO"
	cfg.Agent.LLMModelID = "llama-3.1-8b-4bit"
	cfg.Agent.VisionModelID = "moondream"
	cfg.Agent.STTTimeoutSeconds = 8
	cfg.Agent.LLMTimeoutSeconds = 25
	cfg.Agent.SystemPrompt = "You are BMO, an upbeat and helpful desktop companion."
	cfg.Wake.DebounceSeconds = 0.8
	cfg.STT.AttemptTimeoutSeconds = 2.5
	cfg.STT.Retries = 2
	cfg.TTS.WordsPerMinute = 180
	cfg.LLM.Provider = "echo"
	cfg.LLM.BaseURL = "http://127.0.0.1:8080/v1"
	cfg.LLM.Model = "llama-3.1-8b-instruct"
	cfg.LLM.MaxTokens = 256
	cfg.LLM.Temperature = 0.7
	cfg.LLM.VisionBudgetTokens = 256
	cfg.Audio.MicrophonePermission = "authorized"
	cfg.UI.Listen = "127.0.0.1:8787"
	cfg.Recorder.SampleRate = 16000
	return cfg
}

// Load reads path, writing the defaults there first if it does not exist.
// A .env file beside the config or in the working directory is loaded into
// the process environment, then environment overrides are applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	for _, env := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(env); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", env, err)
		}
	}
	applyEnv(cfg, os.Getenv)
	cfg.Enforce()
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := getenv("KAMI_BOT_WAKE_WORD"); v != "" {
		cfg.Agent.WakeWord = v
	}
	if v := getenv("KAMI_BOT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("KAMI_BOT_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
}

// Enforce applies fixed policy: telemetry is always off.
func (c *Config) Enforce() {
	c.Agent.TelemetryEnabled = false
}

// ModelStore is the directory holding model artifacts.
func (c *Config) ModelStore() string {
	if c.Model.StoreDir != "" {
		return c.Model.StoreDir
	}
	return filepath.Join(c.DataDir, "models")
}

// JournalDir is where per-session event journals are written.
func (c *Config) JournalDir() string {
	return filepath.Join(c.DataDir, "journal")
}

// RecordingsDir is where the recorder saves captures.
func (c *Config) RecordingsDir() string {
	if c.Recorder.OutputDir != "" {
		return c.Recorder.OutputDir
	}
	return filepath.Join(c.DataDir, "recordings")
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	m, err := ToMap(cfg)
	if err != nil {
		return err
	}
	return writeMap(path, m)
}

func writeMap(path string, m map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func readMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return m, nil
}

// ToMap converts cfg into its generic JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns every dot-key of cfg, optionally with secrets masked.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads one dot-key from the config file at path.
func GetValue(path, key string) (any, error) {
	m, err := readMap(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return v, nil
}

// SetValue writes one dot-key into the config file at path. Only keys the
// Config type defines are accepted. The value is parsed as JSON when
// possible (numbers, booleans) and kept as a string otherwise.
func SetValue(path, key, value string) error {
	if !knownKey(key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	if key == "agent.telemetry_enabled" {
		if on, _ := parsed.(bool); on || strings.EqualFold(value, "true") {
			return ErrTelemetryLocked
		}
	}

	m, err := readMap(path)
	if err != nil {
		return err
	}
	flat := Flatten(m)
	flat[key] = parsed
	return writeMap(path, Unflatten(flat))
}

func knownKey(key string) bool {
	m, err := ToMap(Default())
	if err != nil {
		return false
	}
	_, ok := Flatten(m)[key]
	return ok
}
