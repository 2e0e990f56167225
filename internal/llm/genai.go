package llm

import (
	"context"
	"fmt"
	"sync"

	log "log/slog"

	"google.golang.org/genai"
)

// GenAIClient talks to the native Gemini API. The SDK client is created on
// the first query so that a missing key surfaces as a failed query.
type GenAIClient struct {
	cfg Config

	once   sync.Once
	client *genai.Client
	err    error
}

var _ Client = (*GenAIClient)(nil)

func NewGenAI(cfg Config) *GenAIClient {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &GenAIClient{cfg: cfg}
}

func (c *GenAIClient) connect(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		cc := &genai.ClientConfig{
			APIKey:     c.cfg.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: c.cfg.HTTPClient,
		}
		if c.cfg.BaseURL != "" {
			cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.cfg.BaseURL}
		}
		c.client, c.err = genai.NewClient(ctx, cc)
	})
	return c.client, c.err
}

func (c *GenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: genai client: %w", ErrQueryFailed, err)
	}

	resp, err := client.Models.GenerateContent(ctx, c.cfg.Model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("%w: generate content: %w", ErrQueryFailed, err)
	}

	if len(resp.Candidates) == 0 {
		return "", queryFailed("no candidates in response")
	}

	text := resp.Text()
	log.Debug("Model replied", "model", c.cfg.Model, "chars", len(text))

	return reply(text)
}
