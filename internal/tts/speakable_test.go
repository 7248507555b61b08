package tts

import "testing"

func TestSpeakable(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text unchanged", "Hi from BMO!", "Hi from BMO!"},
		{"whitespace collapsed", "  hello \n\n there  ", "hello there"},
		{"markdown emphasis", "This is **great** and `code`", "This is great and code"},
		{"markdown heading", "# Title\nbody", "Title body"},
		{"markdown link", "see [the docs](https://example.com) now", "see the docs now"},
		{"bullets", "- one\n- two", "one two"},
		{"html", "<p>Hello <b>there</b></p>", "Hello there"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Speakable(tt.in); got != tt.want {
				t.Errorf("Speakable(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
