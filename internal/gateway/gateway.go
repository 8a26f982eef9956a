package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"listing-wizard/internal/domain"
	"listing-wizard/internal/observability"
)

const (
	defaultHistoryLimit   = 10
	defaultAttemptTimeout = 30 * time.Second
)

// ErrUnavailable is returned when every attempt allowed by the policy failed.
var ErrUnavailable = errors.New("gateway: both providers unavailable")

// UnavailableError is what Generate returns when every attempt failed. Usage
// counts the tokens of completions that came back but were rejected. It
// matches ErrUnavailable under errors.Is.
type UnavailableError struct {
	Usage domain.TokenUsage
	Err   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%v: %v", ErrUnavailable, e.Err)
}

func (e *UnavailableError) Unwrap() []error {
	return []error{ErrUnavailable, e.Err}
}

// Provider is a text-generation backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, instruction string, turns []domain.ChatMessage) (Completion, error)
}

// Completion is a single provider response.
type Completion struct {
	Text  string
	Usage domain.TokenUsage
}

// Request is one generation call. Accept, when set, vets the returned text;
// a rejection counts as a provider failure and moves on to the next attempt.
type Request struct {
	Instruction string
	Turns       []domain.ChatMessage
	Accept      func(text string) error
}

// Result carries the generated text, its usage and the provider that served it.
type Result struct {
	Text     string
	Usage    domain.TokenUsage
	Provider string
}

// Config is passed to New; nothing in the gateway reads process state.
type Config struct {
	Policy         Policy
	HistoryLimit   int
	AttemptTimeout time.Duration
}

type Gateway struct {
	providers map[string]Provider
	policy    Policy
	limit     int
	timeout   time.Duration
}

// New builds a Gateway over the given providers. Every provider named by the
// policy must be registered.
func New(cfg Config, providers ...Provider) (*Gateway, error) {
	if len(providers) == 0 {
		return nil, errors.New("gateway: at least one provider is required")
	}
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if p == nil {
			return nil, errors.New("gateway: provider must not be nil")
		}
		byName[p.Name()] = p
	}

	policy := cfg.Policy
	if len(policy.Order) == 0 {
		for _, p := range providers {
			policy.Order = append(policy.Order, p.Name())
		}
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaultMaxAttempts
	}
	for _, name := range policy.Order {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("gateway: policy names unknown provider %q", name)
		}
	}

	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}

	return &Gateway{
		providers: byName,
		policy:    policy,
		limit:     limit,
		timeout:   timeout,
	}, nil
}

// Generate runs the request against the policy's providers in order and
// returns the first accepted completion. The returned usage includes the
// completions rejected before it.
func (g *Gateway) Generate(ctx context.Context, req Request) (Result, error) {
	turns := TrimHistory(req.Turns, g.limit)
	log := observability.LoggerFromContext(ctx)

	var (
		errs  []error
		spent domain.TokenUsage
	)
	for i, name := range g.policy.Attempts() {
		if i > 0 {
			log.Warn("falling back to alternate provider", "provider", name, "attempt", i+1)
		}
		res, err := g.attempt(ctx, g.providers[name], req, turns)
		spent = spent.Add(res.Usage)
		if err == nil {
			res.Usage = spent
			return res, nil
		}
		log.Error("provider attempt failed", "provider", name, "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return Result{}, &UnavailableError{Usage: spent, Err: errors.Join(errs...)}
}

// attempt makes one provider call. A completion that fails the checks is
// returned with its usage alongside the error.
func (g *Gateway) attempt(ctx context.Context, p Provider, req Request, turns []domain.ChatMessage) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	out, err := p.Complete(ctx, req.Instruction, turns)
	if err != nil {
		return Result{}, err
	}
	spent := Result{Usage: out.Usage, Provider: p.Name()}
	if strings.TrimSpace(out.Text) == "" {
		return spent, errors.New("empty completion")
	}
	if req.Accept != nil {
		if err := req.Accept(out.Text); err != nil {
			return spent, fmt.Errorf("malformed completion: %w", err)
		}
	}
	observability.LoggerFromContext(ctx).Info("provider completion",
		slog.String("provider", p.Name()),
		slog.Int("total_tokens", out.Usage.Total),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return Result{Text: out.Text, Usage: out.Usage, Provider: p.Name()}, nil
}

// TrimHistory keeps every system turn and the most recent limit other turns,
// preserving order.
func TrimHistory(turns []domain.ChatMessage, limit int) []domain.ChatMessage {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	others := 0
	for _, t := range turns {
		if t.Role != domain.RoleSystem {
			others++
		}
	}
	drop := others - limit
	out := make([]domain.ChatMessage, 0, len(turns))
	for _, t := range turns {
		if t.Role != domain.RoleSystem && drop > 0 {
			drop--
			continue
		}
		out = append(out, t)
	}
	return out
}
