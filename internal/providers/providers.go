package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"listing-wizard/internal/config"
	"listing-wizard/internal/gateway"
	"listing-wizard/internal/integrations/gemini"
	"listing-wizard/internal/integrations/openai"
)

// NewGateway registers a provider for every key present in creds and builds
// the gateway. The policy is narrowed to the registered providers, so a
// single key yields a single-attempt gateway.
func NewGateway(ctx context.Context, cfg config.ProviderConfig, creds config.Credentials) (*gateway.Gateway, error) {
	if creds.Empty() {
		return nil, errors.New("providers: no provider API key configured")
	}

	var registered []gateway.Provider
	if strings.TrimSpace(creds.OpenAIKey) != "" {
		c, err := openai.NewClient(creds.OpenAIKey,
			openai.WithModel(cfg.OpenAIModel),
			openai.WithBaseURL(cfg.OpenAIBaseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("providers: %w", err)
		}
		registered = append(registered, c)
	}
	if strings.TrimSpace(creds.GeminiKey) != "" {
		c, err := gemini.NewClient(ctx, creds.GeminiKey, gemini.WithModel(cfg.GeminiModel))
		if err != nil {
			return nil, fmt.Errorf("providers: %w", err)
		}
		registered = append(registered, c)
	}

	gwCfg := cfg.Gateway()
	gwCfg.Policy = narrow(gwCfg.Policy, registered)
	return gateway.New(gwCfg, registered...)
}

func narrow(p gateway.Policy, registered []gateway.Provider) gateway.Policy {
	have := make(map[string]bool, len(registered))
	for _, r := range registered {
		have[r.Name()] = true
	}
	out := gateway.Policy{MaxAttempts: p.MaxAttempts}
	for _, name := range p.Order {
		if have[name] {
			out.Order = append(out.Order, name)
		}
	}
	return out
}
