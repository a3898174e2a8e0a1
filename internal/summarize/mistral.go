package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Generation settings shared by both engines. Low temperature keeps the
// dossier factual; the token cap covers summary, analysis and timeline.
const (
	chatTemperature = 0.3
	chatMaxTokens   = 2000
)

// MistralEngine generates dossiers through the Mistral chat completions API.
type MistralEngine struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewMistralEngine creates an engine. A non-positive timeout falls back to 60s.
func NewMistralEngine(baseURL, apiKey, model string, timeout time.Duration) *MistralEngine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &MistralEngine{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the chat model name.
func (e *MistralEngine) Name() string {
	return e.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Summarize posts the dossier prompt and parses the markdown reply.
func (e *MistralEngine) Summarize(ctx context.Context, articles []Document) (Sections, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(articles)},
		},
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		return Sections{}, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return Sections{}, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return Sections{}, fmt.Errorf("chat call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Sections{}, fmt.Errorf("failed to read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Sections{}, fmt.Errorf("chat api returned %d: %s", resp.StatusCode, snippet(string(body), 300))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Sections{}, fmt.Errorf("failed to parse chat response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return Sections{}, fmt.Errorf("chat api returned an empty response")
	}

	return parseSections(parsed.Choices[0].Message.Content), nil
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
