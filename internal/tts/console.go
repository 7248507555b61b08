package tts

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ConsoleSynthesizer prints utterances and simulates their playback time
// from a words-per-minute rate.
type ConsoleSynthesizer struct {
	out io.Writer
	wpm int

	mu       sync.Mutex
	speaking bool
	current  uint64
	timer    *time.Timer
}

// NewConsoleSynthesizer writes to out. A non-positive wpm defaults to 180.
func NewConsoleSynthesizer(out io.Writer, wpm int) *ConsoleSynthesizer {
	if wpm <= 0 {
		wpm = 180
	}
	return &ConsoleSynthesizer{out: out, wpm: wpm}
}

func (c *ConsoleSynthesizer) duration(text string) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return time.Duration(words) * time.Minute / time.Duration(c.wpm)
}

func (c *ConsoleSynthesizer) Speak(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.out, "BMO: %s\n", text); err != nil {
		return err
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.current++
	id := c.current
	c.speaking = true
	c.timer = time.AfterFunc(c.duration(text), func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.current == id {
			c.speaking = false
		}
	})
	return nil
}

func (c *ConsoleSynthesizer) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

func (c *ConsoleSynthesizer) StopSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.speaking {
		return false
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.speaking = false
	return true
}
