package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"learnspace-service/internal/domain"
)

// DefaultModel matches the model the web client was built against.
const DefaultModel = "gemini-1.5-flash"

// Client is the inference gateway: role-tagged turns in, one generated text
// turn out. No retries and no timeout beyond the caller's context; a failed
// or slow call stalls only the request that issued it.
type Client struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

func NewClient(ctx context.Context, apiKey, model string, log *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: client, model: model, log: log}, nil
}

// Generate sends the turns as a single generateContent call and returns the
// first candidate's text. The provider's error message passes through so the
// user sees what the upstream reported.
func (c *Client) Generate(ctx context.Context, turns []domain.Turn) (string, error) {
	if len(turns) == 0 {
		return "", errors.New("gemini: no turns to send")
	}
	contents := make([]*genai.Content, len(turns))
	for i, turn := range turns {
		role := genai.RoleUser
		if turn.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents[i] = &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: turn.Content}},
		}
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		c.log.Warn("gemini call failed", zap.Error(err))
		return "", fmt.Errorf("gemini: %w", err)
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}

// ModelID returns the configured model identifier.
func (c *Client) ModelID() string {
	return c.model
}
