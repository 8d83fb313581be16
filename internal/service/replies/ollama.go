package replies

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"github.com/samber/lo"
)

// OllamaGenerator generates replies with a model served by Ollama.
type OllamaGenerator struct {
	client *api.Client
	model  string
}

// NewOllamaGenerator builds a generator for the Ollama server at baseURL.
func NewOllamaGenerator(baseURL, model string, httpClient *http.Client) (*OllamaGenerator, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ollama url %q must be absolute", baseURL)
	}
	if model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaGenerator{client: api.NewClient(u, httpClient), model: model}, nil
}

// Generate implements Generator with a single non-streaming chat call.
func (g *OllamaGenerator) Generate(ctx context.Context, messages []ChatMessage, opts GenerateOptions) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty")
	}

	options := map[string]any{}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}

	req := &api.ChatRequest{
		Model: g.model,
		Messages: lo.Map(messages, func(m ChatMessage, _ int) api.Message {
			return api.Message{Role: m.Role, Content: m.Content}
		}),
		Stream:  lo.ToPtr(false),
		Options: options,
	}

	var content string
	err := g.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return content, nil
}
