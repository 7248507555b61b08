// Package prompt assembles the persona prompt sent to the language model.
package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/user/kamibot/internal/types"
)

// DefaultPersona is the built-in persona template. Fields: .Vision, .Prompt
const DefaultPersona = `You are BMO. Keep responses concise, kind, and playful.
{{- if .Vision}}
Vision context: {{.Vision}}
{{- end}}
User: {{.Prompt}}`

// DefaultVisionBudget caps the vision summary, in tokens.
const DefaultVisionBudget = 256

// Data is the template input.
type Data struct {
	Vision string
	Prompt string
}

// Builder renders the persona template.
type Builder struct {
	tmpl         *template.Template
	counter      TokenCounter
	visionBudget int
}

// NewBuilder parses persona (DefaultPersona when empty). A nil counter
// counts words.
func NewBuilder(persona string, counter TokenCounter, visionBudget int) (*Builder, error) {
	if persona == "" {
		persona = DefaultPersona
	}
	tmpl, err := template.New("persona").Parse(persona)
	if err != nil {
		return nil, fmt.Errorf("parse persona template: %w", err)
	}
	if counter == nil {
		counter = WordCounter{}
	}
	if visionBudget <= 0 {
		visionBudget = DefaultVisionBudget
	}
	return &Builder{tmpl: tmpl, counter: counter, visionBudget: visionBudget}, nil
}

// Build renders the prompt for one user utterance.
func (b *Builder) Build(prompt string, vision *types.VisionContext) (string, error) {
	data := Data{Prompt: prompt}
	if vision != nil {
		data.Vision = b.clip(strings.TrimSpace(vision.Summary))
	}
	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render persona prompt: %w", err)
	}
	return sb.String(), nil
}

// Tokens reports the size of text under the builder's counter.
func (b *Builder) Tokens(text string) int {
	return b.counter.Count(text)
}

// clip returns the longest word prefix of s within the vision budget.
func (b *Builder) clip(s string) string {
	if b.counter.Count(s) <= b.visionBudget {
		return s
	}
	words := strings.Fields(s)
	lo, hi := 0, len(words)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if b.counter.Count(strings.Join(words[:mid], " ")) <= b.visionBudget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return strings.Join(words[:lo], " ")
}
