package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Downloader places verified model artifacts under a base directory.
type Downloader struct {
	baseDir string
	fetcher Fetcher
}

// NewDownloader stores artifacts in baseDir. A nil fetcher uses HTTPFetcher.
func NewDownloader(baseDir string, fetcher Fetcher) *Downloader {
	if fetcher == nil {
		fetcher = HTTPFetcher{}
	}
	return &Downloader{baseDir: baseDir, fetcher: fetcher}
}

// Path is where d lives once acquired.
func (dl *Downloader) Path(d Descriptor) string {
	return filepath.Join(dl.baseDir, d.ID)
}

// EnsureAvailable returns the local path of d, fetching and verifying it
// first when absent. An artifact already in place is trusted as is.
func (dl *Downloader) EnsureAvailable(ctx context.Context, d Descriptor) (string, error) {
	dest := dl.Path(d)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}
	if err := d.validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dl.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}

	log := slog.With("model", d.ID, "source", d.Source)
	log.Info("fetching model")

	src, err := dl.fetcher.Open(ctx, d.Source)
	if err != nil {
		return "", &DownloadFailedError{Source: d.Source, Err: err}
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dl.baseDir, "."+d.ID+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			os.Remove(tmpPath)
		}
	}()

	hash := sha256.New()
	_, copyErr := io.Copy(tmp, io.TeeReader(src, hash))
	closeErr := tmp.Close()
	if copyErr != nil {
		var pathErr *os.PathError
		if errors.As(copyErr, &pathErr) && pathErr.Path == tmpPath {
			return "", fmt.Errorf("write temp file: %w", copyErr)
		}
		return "", &DownloadFailedError{Source: d.Source, Err: copyErr}
	}
	if closeErr != nil {
		return "", fmt.Errorf("close temp file: %w", closeErr)
	}

	got := hex.EncodeToString(hash.Sum(nil))
	if !strings.EqualFold(got, d.SHA256) {
		log.Warn("model digest mismatch", "expected", d.SHA256, "got", got)
		return "", &HashMismatchError{Expected: d.SHA256, Got: got}
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("move model into place: %w", err)
	}
	keep = true
	log.Info("model verified", "path", dest)
	return dest, nil
}
