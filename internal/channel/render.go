package channel

import (
	"fmt"
	"strings"

	"github.com/soyeahso/orderbot/internal/domain"
)

// Adapt rewrites p into something a channel with caps can show.
func Adapt(p domain.Prompt, caps domain.ChannelCapabilities) domain.Prompt {
	switch {
	case p.Kind == domain.PromptChoice && !caps.Choices:
		return domain.TextPrompt(RenderPlain(p))
	case p.Kind == domain.PromptDocument && !caps.Documents:
		return domain.TextPrompt(RenderPlain(p))
	}
	return p
}

// RenderPlain flattens any prompt into a single text body. Choices are
// listed with the reply id the customer should type.
func RenderPlain(p domain.Prompt) string {
	switch p.Kind {
	case domain.PromptChoice:
		var b strings.Builder
		b.WriteString(p.Body)
		b.WriteString("\n")
		for _, o := range p.Options {
			fmt.Fprintf(&b, "\n[%s] %s", o.ID, o.Label)
		}
		return b.String()
	case domain.PromptDocument:
		name := p.Filename
		if p.Caption != "" {
			name = p.Caption
		}
		if name == "" {
			return p.Body
		}
		return name + ": " + p.Body
	default:
		return p.Body
	}
}
