// Package assistant rewords the engine's canned chat content with a language model.
// The engine's decisions (type, urgency, suggestions) are never changed here; only the
// content string is, and any failure falls back to the canned text.
package assistant

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Skufu/MeddyPal/internal/engine"
)

const (
	SourceRules = "rules"
	SourceAI    = "ai"
)

type Input struct {
	Message  string
	Response engine.Response
}

// Composer produces the chat text shown to the user for an assembled response.
type Composer interface {
	Compose(ctx context.Context, in Input) (string, error)
}

// Canned returns the engine's template content unchanged.
type Canned struct{}

func (Canned) Compose(_ context.Context, in Input) (string, error) {
	return in.Response.Content, nil
}

// Reply runs the composer and falls back to the canned content on error or an empty
// reply. It returns the text and where it came from.
func Reply(ctx context.Context, c Composer, in Input, log zerolog.Logger) (string, string) {
	if c == nil {
		return in.Response.Content, SourceRules
	}
	if _, ok := c.(Canned); ok {
		return in.Response.Content, SourceRules
	}

	text, err := c.Compose(ctx, in)
	if err != nil {
		log.Warn().Err(err).Str("intent", string(in.Response.Intent)).Msg("composer failed, using canned content")
		return in.Response.Content, SourceRules
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return in.Response.Content, SourceRules
	}
	return text, SourceAI
}
