package recorder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	wavHeaderSize = 44
	bitsPerSample = 16
	channels      = 1
)

var errNotWAV = errors.New("not a PCM WAV file")

// wavWriter writes 16-bit mono PCM into a WAV container. The header sizes
// are patched on Close.
type wavWriter struct {
	f    *os.File
	rate int
	n    int64
}

func createWAV(path string, rate int) (*wavWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	w := &wavWriter{f: f, rate: rate}
	if _, err := f.Write(w.header()); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	return w, nil
}

func (w *wavWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.n += int64(n)
	return n, err
}

// Close rewrites the header with the final sizes.
func (w *wavWriter) Close() error {
	if _, err := w.f.WriteAt(w.header(), 0); err != nil {
		w.f.Close()
		return fmt.Errorf("finalize wav header: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// Duration is the playback length of the samples written so far.
func (w *wavWriter) Duration() time.Duration {
	return pcmDuration(w.n, w.rate)
}

func (w *wavWriter) header() []byte {
	byteRate := w.rate * channels * bitsPerSample / 8
	h := make([]byte, wavHeaderSize)
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], uint32(36+w.n))
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:], channels)
	binary.LittleEndian.PutUint32(h[24:], uint32(w.rate))
	binary.LittleEndian.PutUint32(h[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:], channels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(h[34:], bitsPerSample)
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], uint32(w.n))
	return h
}

// wavDuration reads the playback length from a WAV header written by
// wavWriter.
func wavDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, h); err != nil {
		return 0, fmt.Errorf("%w: %v", errNotWAV, err)
	}
	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" || string(h[36:40]) != "data" {
		return 0, errNotWAV
	}
	byteRate := binary.LittleEndian.Uint32(h[28:])
	if byteRate == 0 {
		return 0, errNotWAV
	}
	size := binary.LittleEndian.Uint32(h[40:])
	return time.Duration(float64(size) / float64(byteRate) * float64(time.Second)), nil
}

func pcmDuration(n int64, rate int) time.Duration {
	byteRate := rate * channels * bitsPerSample / 8
	if byteRate <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(byteRate) * float64(time.Second))
}
