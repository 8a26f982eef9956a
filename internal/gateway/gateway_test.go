package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"listing-wizard/internal/domain"
)

type fakeProvider struct {
	name     string
	out      Completion
	err      error
	delay    time.Duration
	calls    int
	captured []domain.ChatMessage
	instr    string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, instruction string, turns []domain.ChatMessage) (Completion, error) {
	f.calls++
	f.captured = turns
	f.instr = instruction
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Completion{}, ctx.Err()
		}
	}
	return f.out, f.err
}

func ok(name, text string, usage domain.TokenUsage) *fakeProvider {
	return &fakeProvider{name: name, out: Completion{Text: text, Usage: usage}}
}

func failing(name string) *fakeProvider {
	return &fakeProvider{name: name, err: errors.New(name + " down")}
}

func mustNew(t *testing.T, cfg Config, providers ...Provider) *Gateway {
	t.Helper()
	g, err := New(cfg, providers...)
	require.NoError(t, err)
	return g
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{Policy: Policy{Order: []string{"missing"}}}, ok("openai", "x", domain.TokenUsage{}))
	require.ErrorContains(t, err, "unknown provider")

	_, err = New(Config{}, nil)
	require.Error(t, err)
}

func TestGenerate_PrimarySucceeds(t *testing.T) {
	primary := ok(ProviderOpenAI, "hello", domain.TokenUsage{Input: 10, Output: 5, Total: 15})
	alternate := ok(ProviderGemini, "unused", domain.TokenUsage{})
	g := mustNew(t, Config{Policy: FallbackPolicy(ProviderOpenAI)}, primary, alternate)

	res, err := g.Generate(context.Background(), Request{Instruction: "sys", Turns: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	require.Equal(t, "hello", res.Text)
	require.Equal(t, ProviderOpenAI, res.Provider)
	require.Equal(t, 15, res.Usage.Total)
	require.Equal(t, "sys", primary.instr)
	require.Equal(t, 1, primary.calls)
	require.Zero(t, alternate.calls)
}

func TestGenerate_FallsBackOnce(t *testing.T) {
	primary := failing(ProviderOpenAI)
	alternate := ok(ProviderGemini, "from gemini", domain.TokenUsage{})
	g := mustNew(t, Config{Policy: FallbackPolicy(ProviderOpenAI)}, primary, alternate)

	turns := []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}}
	res, err := g.Generate(context.Background(), Request{Turns: turns})
	require.NoError(t, err)
	require.Equal(t, "from gemini", res.Text)
	require.Equal(t, ProviderGemini, res.Provider)
	require.True(t, res.Usage.IsZero(), "providers without usage report zero")
	require.Equal(t, turns, alternate.captured, "alternate receives the same input")
}

func TestGenerate_BothFail(t *testing.T) {
	primary := failing(ProviderGemini)
	alternate := failing(ProviderOpenAI)
	g := mustNew(t, Config{Policy: FallbackPolicy(ProviderGemini)}, primary, alternate)

	_, err := g.Generate(context.Background(), Request{})
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorContains(t, err, "gemini down")
	require.ErrorContains(t, err, "openai down")
	require.Equal(t, 1, primary.calls)
	require.Equal(t, 1, alternate.calls)
}

func TestGenerate_AcceptRejectionTriggersFallback(t *testing.T) {
	primary := ok(ProviderOpenAI, "not json", domain.TokenUsage{})
	alternate := ok(ProviderGemini, `["ok"]`, domain.TokenUsage{})
	g := mustNew(t, Config{Policy: FallbackPolicy(ProviderOpenAI)}, primary, alternate)

	res, err := g.Generate(context.Background(), Request{Accept: func(text string) error {
		if text[0] != '[' {
			return fmt.Errorf("want array")
		}
		return nil
	}})
	require.NoError(t, err)
	require.Equal(t, ProviderGemini, res.Provider)
}

func wantArray(text string) error {
	if text[0] != '[' {
		return fmt.Errorf("want array")
	}
	return nil
}

func TestGenerate_RejectedCompletionsCountTowardUsage(t *testing.T) {
	primary := ok(ProviderOpenAI, "not json", domain.TokenUsage{Input: 1000, Output: 500, Total: 1500})
	alternate := ok(ProviderGemini, `["ok"]`, domain.TokenUsage{Input: 10, Output: 5, Total: 15})
	g := mustNew(t, Config{Policy: FallbackPolicy(ProviderOpenAI)}, primary, alternate)

	res, err := g.Generate(context.Background(), Request{Accept: wantArray})
	require.NoError(t, err)
	require.Equal(t, ProviderGemini, res.Provider)
	require.Equal(t, domain.TokenUsage{Input: 1010, Output: 505, Total: 1515}, res.Usage)
}

func TestGenerate_UnavailableCarriesUsage(t *testing.T) {
	primary := ok(ProviderOpenAI, "not json", domain.TokenUsage{Input: 100, Output: 20, Total: 120})
	alternate := ok(ProviderGemini, "still not json", domain.TokenUsage{Input: 7, Output: 3})
	g := mustNew(t, Config{Policy: FallbackPolicy(ProviderOpenAI)}, primary, alternate)

	_, err := g.Generate(context.Background(), Request{Accept: wantArray})
	require.ErrorIs(t, err, ErrUnavailable)
	var ue *UnavailableError
	require.True(t, errors.As(err, &ue))
	require.Equal(t, domain.TokenUsage{Input: 107, Output: 23, Total: 130}, ue.Usage)
	require.ErrorContains(t, err, "malformed completion")
}

func TestGenerate_EmptyTextIsFailure(t *testing.T) {
	primary := ok(ProviderOpenAI, "   ", domain.TokenUsage{})
	alternate := ok(ProviderGemini, "text", domain.TokenUsage{})
	g := mustNew(t, Config{Policy: FallbackPolicy(ProviderOpenAI)}, primary, alternate)

	res, err := g.Generate(context.Background(), Request{})
	require.NoError(t, err)
	require.Equal(t, "text", res.Text)
}

func TestGenerate_AttemptTimeout(t *testing.T) {
	primary := &fakeProvider{name: ProviderOpenAI, delay: time.Second, out: Completion{Text: "late"}}
	alternate := ok(ProviderGemini, "fast", domain.TokenUsage{})
	g := mustNew(t, Config{Policy: FallbackPolicy(ProviderOpenAI), AttemptTimeout: 20 * time.Millisecond}, primary, alternate)

	res, err := g.Generate(context.Background(), Request{})
	require.NoError(t, err)
	require.Equal(t, "fast", res.Text)
}

func TestGenerate_CapsHistory(t *testing.T) {
	primary := ok(ProviderOpenAI, "ok", domain.TokenUsage{})
	g := mustNew(t, Config{Policy: Policy{Order: []string{ProviderOpenAI}}, HistoryLimit: 3}, primary)

	turns := []domain.ChatMessage{{Role: domain.RoleSystem, Content: "structure"}}
	for i := 0; i < 8; i++ {
		turns = append(turns, domain.ChatMessage{Role: domain.RoleUser, Content: fmt.Sprintf("turn-%d", i)})
	}
	_, err := g.Generate(context.Background(), Request{Turns: turns})
	require.NoError(t, err)
	require.Len(t, primary.captured, 4)
	require.Equal(t, "structure", primary.captured[0].Content)
	require.Equal(t, "turn-5", primary.captured[1].Content)
	require.Equal(t, "turn-7", primary.captured[3].Content)
}

func TestTrimHistory(t *testing.T) {
	turns := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "a"},
		{Role: domain.RoleSystem, Content: "s"},
		{Role: domain.RoleAssistant, Content: "b"},
		{Role: domain.RoleUser, Content: "c"},
	}
	out := TrimHistory(turns, 2)
	require.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "s"},
		{Role: domain.RoleAssistant, Content: "b"},
		{Role: domain.RoleUser, Content: "c"},
	}, out)

	require.Len(t, TrimHistory(turns, 10), 4)
	require.Empty(t, TrimHistory(nil, 2))
}

func TestPolicy(t *testing.T) {
	require.Equal(t, []string{"openai", "gemini"}, FallbackPolicy("openai").Attempts())
	require.Equal(t, []string{"gemini", "openai"}, FallbackPolicy("gemini").Attempts())
	require.Equal(t, []string{"openai", "gemini"}, FallbackPolicy("").Attempts())
	require.Equal(t, []string{"a"}, Policy{Order: []string{"a", "b", "c"}, MaxAttempts: 1}.Attempts())
	require.Equal(t, []string{"a", "b"}, Policy{Order: []string{"a", "b"}, MaxAttempts: 5}.Attempts())
}
