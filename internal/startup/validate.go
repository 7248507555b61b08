// Package startup gates the agent behind policy checks, microphone access
// and a verified model.
package startup

import (
	"errors"
	"strings"

	"github.com/user/kamibot/internal/config"
	"github.com/user/kamibot/internal/model"
)

var ErrChecksFailed = errors.New("startup checks failed")

type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
)

// CheckResult is the outcome of one startup check.
type CheckResult struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Validate runs every check and reports all of them; it never stops at the
// first failure.
func Validate(cfg *config.Config, d model.Descriptor) []CheckResult {
	results := make([]CheckResult, 0, 3)

	if cfg.Agent.TelemetryEnabled {
		results = append(results, CheckResult{"telemetry", StatusFail, "Telemetry must remain disabled by project policy."})
	} else {
		results = append(results, CheckResult{"telemetry", StatusPass, "Telemetry policy enforced (disabled)."})
	}

	if strings.TrimSpace(cfg.Agent.WakeWord) == "" {
		results = append(results, CheckResult{"wake-word", StatusFail, "Wake word cannot be empty."})
	} else {
		results = append(results, CheckResult{"wake-word", StatusPass, "Wake word configured."})
	}

	if d.Pinned() {
		results = append(results, CheckResult{"model-manifest", StatusPass, "Model manifest is hash-pinned."})
	} else {
		results = append(results, CheckResult{"model-manifest", StatusFail, "Model manifest hash is not pinned. Set KAMI_BOT_MODEL_SHA256 to a 64-char digest."})
	}

	return results
}

// Failed returns the failing subset of results.
func Failed(results []CheckResult) []CheckResult {
	var out []CheckResult
	for _, r := range results {
		if r.Status == StatusFail {
			out = append(out, r)
		}
	}
	return out
}

// CheckError carries every failed check.
type CheckError struct {
	Failed []CheckResult
}

func (e *CheckError) Error() string {
	parts := make([]string, len(e.Failed))
	for i, r := range e.Failed {
		parts[i] = r.ID + ": " + r.Message
	}
	return ErrChecksFailed.Error() + ": " + strings.Join(parts, "; ")
}

func (e *CheckError) Is(target error) bool { return target == ErrChecksFailed }
