package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/Skufu/MeddyPal/internal/engine"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultAttempts = 2
	retryBackoff    = 300 * time.Millisecond
	maxOutputTokens = 400
)

const systemPrompt = `You are MeddyPal, a friendly healthcare portal assistant.
Rewrite the draft reply for the user in at most four sentences.
Keep every fact in the draft. Do not diagnose, prescribe, or add new services.
If the urgency is high or critical, tell the user to seek care promptly.`

// generator is the subset of *genai.Models the composer calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Gemini struct {
	models   generator
	model    string
	timeout  time.Duration
	attempts int
	log      zerolog.Logger
}

func NewGemini(ctx context.Context, apiKey, model string, log zerolog.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newGemini(client.Models, model, log), nil
}

func newGemini(models generator, model string, log zerolog.Logger) *Gemini {
	return &Gemini{
		models:   models,
		model:    model,
		timeout:  defaultTimeout,
		attempts: defaultAttempts,
		log:      log,
	}
}

func (g *Gemini) Compose(ctx context.Context, in Input) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.3),
		MaxOutputTokens:   maxOutputTokens,
	}
	contents := genai.Text(buildPrompt(in))

	var lastErr error
	for attempt := 1; attempt <= g.attempts; attempt++ {
		resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
		if err == nil && resp != nil {
			if text := strings.TrimSpace(resp.Text()); text != "" {
				return text, nil
			}
		}
		if err == nil {
			err = errors.New("empty completion")
		}
		lastErr = err
		g.log.Debug().Err(err).Int("attempt", attempt).Str("model", g.model).Msg("gemini completion failed")

		if attempt == g.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}
	return "", fmt.Errorf("gemini: %w", lastErr)
}

func buildPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User message: %q\n", in.Message)
	fmt.Fprintf(&b, "Urgency: %s\n", in.Response.Urgency)
	fmt.Fprintf(&b, "Draft reply: %s\n", in.Response.Content)
	if len(in.Response.SuggestedActions) > 0 {
		b.WriteString("Suggested services:\n")
		for _, rec := range in.Response.SuggestedActions {
			fmt.Fprintf(&b, "- %s (%s)\n", rec.Label, recUrgency(rec))
		}
	}
	return b.String()
}

func recUrgency(rec engine.Recommendation) string {
	if rec.Urgency == "" {
		return string(engine.UrgencyLow)
	}
	return string(rec.Urgency)
}
