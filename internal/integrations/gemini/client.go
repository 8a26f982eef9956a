package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"listing-wizard/internal/domain"
	"listing-wizard/internal/gateway"
)

const defaultModel = "gemini-2.5-flash"

// contentGenerator is the subset of genai.Models the client uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client calls Gemini through the Gemini API backend.
type Client struct {
	models      contentGenerator
	model       string
	temperature float32
	maxTokens   int32
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

// NewClient creates a Gemini client authenticated with apiKey.
func NewClient(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: API key must not be empty")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return newClient(gc.Models, opts...), nil
}

func newClient(models contentGenerator, opts ...Option) *Client {
	c := &Client{
		models:      models,
		model:       defaultModel,
		temperature: 0.7,
		maxTokens:   2000,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string {
	return gateway.ProviderGemini
}

// Complete maps the turns to Gemini contents. System turns are folded into
// the system instruction since Gemini has no system role.
func (c *Client) Complete(ctx context.Context, instruction string, turns []domain.ChatMessage) (gateway.Completion, error) {
	system := []string{}
	if s := strings.TrimSpace(instruction); s != "" {
		system = append(system, s)
	}

	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case domain.RoleSystem:
			system = append(system, t.Content)
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return gateway.Completion{}, errors.New("gemini: no content to send")
	}

	temp := c.temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: c.maxTokens,
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	res, err := c.models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return gateway.Completion{}, fmt.Errorf("gemini: generate content: %w", err)
	}
	if res == nil {
		return gateway.Completion{}, errors.New("gemini: nil response")
	}

	text := res.Text()
	if strings.TrimSpace(text) == "" {
		return gateway.Completion{}, errors.New("gemini: returned empty text")
	}

	out := gateway.Completion{Text: text}
	if u := res.UsageMetadata; u != nil {
		out.Usage = domain.TokenUsage{
			Input:  int(u.PromptTokenCount),
			Output: int(u.CandidatesTokenCount),
			Total:  int(u.TotalTokenCount),
		}
	}
	return out, nil
}
