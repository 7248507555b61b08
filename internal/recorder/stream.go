package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultSampleRate is used when a non-positive rate is configured.
const DefaultSampleRate = 16000

// Source opens a raw signed 16-bit little-endian mono PCM stream.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// CommandSource reads PCM from the stdout of a shell command, for example
// `ffmpeg -f avfoundation -i none:0 -ac 1 -ar 16000 -f s16le -`.
type CommandSource struct {
	Command string
}

func (c CommandSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if strings.TrimSpace(c.Command) == "" {
		return nil, errors.New("no capture command configured")
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", c.Command)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start capture command: %w", err)
	}
	return &commandStream{ReadCloser: stdout, cmd: cmd}, nil
}

type commandStream struct {
	io.ReadCloser
	cmd  *exec.Cmd
	once sync.Once
}

// Close ends the capture process.
func (s *commandStream) Close() error {
	s.once.Do(func() {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	})
	return nil
}

// SilenceSource produces zero samples in real time. It stands in for a
// microphone when no capture command is configured.
type SilenceSource struct {
	SampleRate int
	// Tick is how often a chunk of samples is emitted. Zero means 100ms.
	Tick time.Duration
}

func (s SilenceSource) Open(_ context.Context) (io.ReadCloser, error) {
	rate := s.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	tick := s.Tick
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	chunk := int(pcmBytes(rate, tick))
	return &silence{
		chunk:  chunk &^ 1,
		ticker: time.NewTicker(tick),
		done:   make(chan struct{}),
	}, nil
}

func pcmBytes(rate int, d time.Duration) int64 {
	return int64(float64(rate*channels*bitsPerSample/8) * d.Seconds())
}

type silence struct {
	chunk  int
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (s *silence) Read(p []byte) (int, error) {
	select {
	case <-s.done:
		return 0, io.EOF
	case <-s.ticker.C:
	}
	n := min(len(p), s.chunk)
	clear(p[:n])
	return n, nil
}

func (s *silence) Close() error {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
	return nil
}

// NewStreamFactory returns sessions that copy src into a WAV file at the
// given sample rate.
func NewStreamFactory(src Source, sampleRate int) SessionFactory {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return func(path string) (Session, error) {
		return &streamSession{path: path, src: src, rate: sampleRate}, nil
	}
}

type streamSession struct {
	path string
	src  Source
	rate int

	cancel   context.CancelFunc
	stream   io.ReadCloser
	wav      *wavWriter
	g        errgroup.Group
	stopping atomic.Bool
	stopped  bool
}

func (s *streamSession) Start() error {
	w, err := createWAV(s.path, s.rate)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := s.src.Open(ctx)
	if err != nil {
		cancel()
		w.Close()
		os.Remove(s.path)
		return err
	}
	s.cancel, s.stream, s.wav = cancel, stream, w

	s.g.Go(func() error {
		_, err := io.Copy(w, stream)
		if s.stopping.Load() {
			// Reads fail once Stop closes the stream.
			return nil
		}
		return err
	})
	return nil
}

func (s *streamSession) Stop() (time.Duration, error) {
	if s.stopped {
		return s.wav.Duration(), nil
	}
	s.stopped = true
	s.stopping.Store(true)
	s.cancel()
	s.stream.Close()
	copyErr := s.g.Wait()
	if err := s.wav.Close(); err != nil {
		return 0, err
	}
	if copyErr != nil {
		return s.wav.Duration(), fmt.Errorf("capture stream: %w", copyErr)
	}
	return s.wav.Duration(), nil
}
