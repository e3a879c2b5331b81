// Package genai provides the optional LLM integration for WispFlow.
//
// Its single use is summarizing a customer's free-text problem description
// into a short support ticket subject. The integration is best-effort: any
// failure falls back to a static subject upstream.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const summarySystemPrompt = "Eres un asistente de una empresa de telecomunicaciones. " +
	"Resume el problema del cliente en una sola línea corta (máximo 10 palabras) para el asunto de un ticket de soporte. " +
	"Responde únicamente con el resumen, sin comillas ni puntuación final."

// Summarizer condenses a problem description into a ticket subject line.
type Summarizer interface {
	Summarize(ctx context.Context, description string) (string, error)
}

// Client implements Summarizer over the OpenAI API.
type Client struct {
	cli openai.Client
}

// NewClient creates a GenAI client. The API key is required.
func NewClient(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key not set")
	}
	slog.Debug("GenAI client created")
	return &Client{cli: openai.NewClient(option.WithAPIKey(apiKey))}, nil
}

// Summarize returns a one-line subject for the given description.
func (c *Client) Summarize(ctx context.Context, description string) (string, error) {
	resp, err := c.cli.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4oMini,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summarySystemPrompt),
			openai.UserMessage(description),
		},
	})
	if err != nil {
		slog.Error("GenAI summarize failed", "error", err)
		return "", fmt.Errorf("summarize failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summarize returned no choices")
	}
	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("summarize returned empty content")
	}
	slog.Debug("GenAI summary generated", "length", len(summary))
	return summary, nil
}

// MockSummarizer implements Summarizer for tests.
type MockSummarizer struct {
	Summary string
	Err     error
	Calls   int
}

func (m *MockSummarizer) Summarize(ctx context.Context, description string) (string, error) {
	m.Calls++
	if m.Err != nil {
		return "", m.Err
	}
	return m.Summary, nil
}
