package tts

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

var (
	htmlTag        = regexp.MustCompile(`<[a-zA-Z][^>]*>`)
	markdownLink   = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	markdownHeader = regexp.MustCompile(`(?m)^\s*#{1,6}\s+`)
	markdownBullet = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	emphasis       = strings.NewReplacer("**", "", "__", "", "`", "")
)

// Speakable reduces a model reply to plain text fit for a speech engine.
// HTML is converted to markdown first, then markdown markup is dropped and
// whitespace collapsed. Plain sentences come through unchanged.
func Speakable(text string) string {
	s := text
	if htmlTag.MatchString(s) {
		if md, err := htmltomarkdown.ConvertString(s); err == nil {
			s = md
		}
	}
	s = markdownLink.ReplaceAllString(s, "$1")
	s = markdownHeader.ReplaceAllString(s, "")
	s = markdownBullet.ReplaceAllString(s, "")
	s = emphasis.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
