// Package summary forwards note content to the external text-generation API
// and returns the resulting summary. One round trip per call: no retry, no
// caching, no streaming.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const systemPrompt = "You are a helpful assistant."

type generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type Service struct {
	gen generator
}

func New(apiKey, model string) *Service {
	return &Service{gen: &anthropicGenerator{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}}
}

// NewWithGenerator wires a custom upstream, used by tests.
func NewWithGenerator(gen generator) *Service {
	return &Service{gen: gen}
}

// Summarize returns a summary of content. Upstream failures of any kind
// surface as a single flat error; the gateway does not distinguish causes.
func (s *Service) Summarize(ctx context.Context, content string) (string, error) {
	text, err := s.gen.Generate(ctx, systemPrompt, "Please summarize the following text: "+content)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty summary from upstream")
	}
	return text, nil
}

type anthropicGenerator struct {
	client anthropic.Client
	model  anthropic.Model
}

func (g *anthropicGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("messages create: %w", err)
	}

	var out strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}
