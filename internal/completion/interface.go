package completion

import (
	"context"
	"fmt"
	"strings"
)

// Completer defines the contract for text-completion backends
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Settings selects and configures a completion backend
type Settings struct {
	Provider string // "ollama", "openai" or "none"
	Model    string
	// OllamaHost is the base URL of an Ollama server
	OllamaHost string
	// OpenAIBaseURL points at any OpenAI-compatible endpoint
	OpenAIBaseURL string
	OpenAIAPIKey  string
}

// New builds the configured backend. Provider "none" returns a nil Completer,
// which summarizers treat as "no summaries".
func New(s Settings) (Completer, error) {
	switch strings.ToLower(s.Provider) {
	case "", "ollama":
		o, err := NewOllama(s.OllamaHost, s.Model)
		if err != nil {
			return nil, err
		}
		return o, nil
	case "openai":
		return NewOpenAI(s.OpenAIBaseURL, s.OpenAIAPIKey, s.Model), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", s.Provider)
	}
}

// stripThinking removes a leading <think>...</think> block emitted by reasoning models
func stripThinking(text string) string {
	const open, closing = "<think>", "</think>"
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, open) {
		return t
	}
	if i := strings.Index(t, closing); i >= 0 {
		return strings.TrimSpace(t[i+len(closing):])
	}
	return ""
}
