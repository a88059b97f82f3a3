package completion

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// DefaultOllamaHost is used when no host is configured
const DefaultOllamaHost = "http://localhost:11434"

// Ollama generates completions through a local Ollama server
type Ollama struct {
	client *ollama.Client
	model  string
}

// Ensure Ollama implements Completer
var _ Completer = (*Ollama)(nil)

// NewOllama creates an Ollama backend. A trailing "/v1" (OpenAI-compatible
// path) on the host is ignored.
func NewOllama(host, model string) (*Ollama, error) {
	if host == "" {
		host = DefaultOllamaHost
	}
	host = strings.TrimSuffix(strings.TrimRight(host, "/"), "/v1")

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	// Per-request deadlines come from the caller's context
	httpClient := &http.Client{Timeout: 5 * time.Minute}

	return &Ollama{
		client: ollama.NewClient(u, httpClient),
		model:  model,
	}, nil
}

// Complete sends a single non-streaming generate request
func (o *Ollama) Complete(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &ollama.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &stream,
	}

	var text strings.Builder
	err := o.client.Generate(ctx, req, func(gr ollama.GenerateResponse) error {
		text.WriteString(gr.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}

	return stripThinking(text.String()), nil
}
