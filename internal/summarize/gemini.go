package summarize

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiEngine generates dossiers through the Gemini API. The system
// preamble travels inside the single user turn since the dossier exchange
// is one-shot.
type GeminiEngine struct {
	client *genai.Client
	model  string
}

// NewGeminiEngine creates an engine over a fresh Gemini client.
func NewGeminiEngine(ctx context.Context, apiKey, model string) (*GeminiEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiEngine{client: client, model: model}, nil
}

// Name returns the Gemini model name.
func (e *GeminiEngine) Name() string {
	return e.model
}

// Summarize sends the dossier prompt and parses the markdown reply.
func (e *GeminiEngine) Summarize(ctx context.Context, articles []Document) (Sections, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: systemPrompt + "\n\n" + buildPrompt(articles)}},
		Role:  "user",
	}}
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(chatTemperature)),
		MaxOutputTokens: chatMaxTokens,
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, config)
	if err != nil {
		return Sections{}, fmt.Errorf("failed to generate dossier: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return Sections{}, fmt.Errorf("empty response from model")
	}
	return parseSections(text), nil
}
