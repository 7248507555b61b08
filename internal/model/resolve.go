package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	stubName    = "dev-model-stub.bin"
	stubContent = "KAMI BOT DEV MODEL STUB"
)

// Resolve picks the descriptor for modelID. KAMI_BOT_MODEL_URL with
// KAMI_BOT_MODEL_SHA256 override everything. Otherwise a development stub
// is written to store and pinned; if that fails the catalog entry is used.
func Resolve(lookup func(string) string, modelID, store string) Descriptor {
	if src, sha := lookup("KAMI_BOT_MODEL_URL"), lookup("KAMI_BOT_MODEL_SHA256"); src != "" && sha != "" {
		license := lookup("KAMI_BOT_MODEL_LICENSE")
		if license == "" {
			license = "Custom"
		}
		return Descriptor{ID: modelID, Source: src, SHA256: sha, License: license}
	}

	stub := filepath.Join(store, stubName)
	sum := sha256.Sum256([]byte(stubContent))
	if err := writeStub(stub); err != nil {
		slog.Warn("dev model stub unavailable, using catalog", "error", err)
		d := Llama31_8B4bit()
		d.ID = modelID
		return d
	}
	return Descriptor{
		ID:      modelID,
		Source:  stub,
		SHA256:  hex.EncodeToString(sum[:]),
		License: "Development Stub",
	}
}

func writeStub(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(stubContent), 0o644)
}
