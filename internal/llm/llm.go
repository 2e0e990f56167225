// Package llm sends one prompt to a hosted Gemini model and returns the full
// reply. There is no streaming, no conversation history and no retrying.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	DefaultModel = "gemini-1.5-flash"

	// OpenAICompatibleURL is Gemini's OpenAI compatible endpoint.
	OpenAICompatibleURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

// ErrQueryFailed wraps every failed query: transport and provider errors as
// well as replies without any text.
var ErrQueryFailed = errors.New("llm: query failed")

type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Backend string

const (
	BackendOpenAI Backend = "openai"
	BackendGenAI  Backend = "genai"
)

// Config selects and configures a backend. APIKey is used as given, an
// empty key is left for the provider to reject.
type Config struct {
	Backend    Backend
	Model      string
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func New(cfg Config) (Client, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	switch cfg.Backend {
	case BackendOpenAI, "":
		return NewOpenAI(cfg), nil
	case BackendGenAI:
		return NewGenAI(cfg), nil
	default:
		return nil, fmt.Errorf("llm: unknown backend %q", cfg.Backend)
	}
}

func queryFailed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrQueryFailed, fmt.Sprintf(format, args...))
}

func reply(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", queryFailed("empty reply")
	}
	return text, nil
}
