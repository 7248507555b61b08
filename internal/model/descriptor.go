// Package model acquires, verifies and serves the local language model.
package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidManifest = errors.New("model: invalid manifest")
	ErrDownloadFailed  = errors.New("model: download failed")
	ErrHashMismatch    = errors.New("model: hash mismatch")
	ErrModelNotFound   = errors.New("model: not found")
)

var pinnedDigest = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Descriptor identifies a model artifact and the digest it must match.
type Descriptor struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	SHA256  string `json:"sha256"`
	License string `json:"license"`
}

// Pinned reports whether SHA256 is a full lowercase hex digest.
func (d Descriptor) Pinned() bool {
	return pinnedDigest.MatchString(d.SHA256)
}

func (d Descriptor) validate() error {
	if d.ID == "" || d.ID == "." || d.ID == ".." || strings.ContainsAny(d.ID, `/\`) {
		return fmt.Errorf("%w: bad model id %q", ErrInvalidManifest, d.ID)
	}
	if !d.Pinned() {
		return fmt.Errorf("%w: sha256 for %s is not pinned", ErrInvalidManifest, d.ID)
	}
	return nil
}

// DownloadFailedError is a transport failure while fetching Source.
type DownloadFailedError struct {
	Source string
	Err    error
}

func (e *DownloadFailedError) Error() string {
	return fmt.Sprintf("download %s failed: %v", e.Source, e.Err)
}

func (e *DownloadFailedError) Is(target error) bool { return target == ErrDownloadFailed }
func (e *DownloadFailedError) Unwrap() error        { return e.Err }

// HashMismatchError reports a digest that did not match the manifest.
type HashMismatchError struct {
	Expected string
	Got      string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("sha256 mismatch: expected %s, got %s", e.Expected, e.Got)
}

func (e *HashMismatchError) Is(target error) bool { return target == ErrHashMismatch }
