package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"listing-wizard/internal/domain"
	"listing-wizard/internal/gateway"
)

type scripted struct {
	text  string
	err   error
	usage domain.TokenUsage
}

// fakeGenerator replays scripted responses and applies Accept the way the
// gateway does.
type fakeGenerator struct {
	script   []scripted
	requests []gateway.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req gateway.Request) (gateway.Result, error) {
	f.requests = append(f.requests, req)
	if len(f.script) == 0 {
		return gateway.Result{}, errors.New("no scripted response")
	}
	next := f.script[0]
	f.script = f.script[1:]
	if next.err != nil {
		return gateway.Result{}, next.err
	}
	if req.Accept != nil {
		if err := req.Accept(next.text); err != nil {
			return gateway.Result{}, &gateway.UnavailableError{Usage: next.usage, Err: err}
		}
	}
	return gateway.Result{Text: next.text, Usage: next.usage, Provider: gateway.ProviderOpenAI}, nil
}

func (f *fakeGenerator) push(items ...scripted) {
	f.script = append(f.script, items...)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestMachine(t *testing.T) (*Machine, *fakeGenerator) {
	t.Helper()
	gen := &fakeGenerator{}
	m, err := NewMachine(gen)
	require.NoError(t, err)
	m.now = func() time.Time { return fixedNow }
	return m, gen
}

const personaJSON = "```json\n{\"demographics\": \"young family, 30s\", \"motivations\": \"more space\"}\n```"

func jsonList(prefix string, n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("%s %d about the garden and schools?", prefix, i+1)
	}
	raw, _ := json.Marshal(items)
	return string(raw)
}

func step(t *testing.T, m *Machine, c domain.Conversation, msg string, action Action, data StepData) (Result, domain.Conversation) {
	t.Helper()
	res, err := m.Advance(context.Background(), c, Input{Message: msg, Action: action, Data: data})
	require.NoError(t, err)
	return res, res.Conversation
}

// toApproval drives a fresh session to step 6 with a generated persona.
func toApproval(t *testing.T, m *Machine, gen *fakeGenerator) domain.Conversation {
	t.Helper()
	c := Start("s-1", domain.LanguageEN, fixedNow)
	_, c = step(t, m, c, "I want to rent", ActionContinue, StepData{})
	_, c = step(t, m, c, "house", ActionContinue, StepData{})
	_, c = step(t, m, c, "120 m2, 4 bedrooms, built 1998, energy label A", ActionContinue, StepData{})
	_, c = step(t, m, c, "", ActionHighlights, StepData{Highlights: []string{"private garden", "garage"}, UniqueDetail: "original stained glass windows"})
	gen.push(scripted{text: personaJSON, usage: domain.TokenUsage{Input: 100, Output: 50, Total: 150}})
	_, c = step(t, m, c, "family with two kids", ActionContinue, StepData{})
	require.Equal(t, domain.StepApproval, c.CurrentStep)
	return c
}

func TestNewMachine_RequiresGenerator(t *testing.T) {
	_, err := NewMachine(nil)
	require.Error(t, err)
}

func TestStart(t *testing.T) {
	c := Start("abc", domain.LanguageNL, fixedNow)
	require.Equal(t, domain.StepTransaction, c.CurrentStep)
	require.Equal(t, domain.StatusActive, c.Status)
	require.Len(t, c.Messages, 1)
	require.Equal(t, domain.RoleAssistant, c.Messages[0].Role)
	require.Contains(t, c.Messages[0].Text, "Welkom")
}

func TestAdvance_RentScenario(t *testing.T) {
	m, gen := newTestMachine(t)
	c := Start("s-1", domain.LanguageEN, fixedNow)

	res, c := step(t, m, c, "I want to rent", ActionContinue, StepData{})
	require.Equal(t, OutcomeAdvanced, res.Outcome)
	require.Equal(t, domain.TransactionRent, c.Data.Transaction)
	require.Equal(t, domain.StepPropertyType, c.CurrentStep)
	require.Equal(t, "I want to rent", c.Title)

	res, c = step(t, m, c, "apartment", ActionContinue, StepData{})
	require.Equal(t, "apartment", c.Data.PropertyType)
	require.Equal(t, domain.StepFeatures, c.CurrentStep)
	require.Equal(t, propertyHighlights["apartment"], res.Highlights)

	before := c.Data
	res, c = step(t, m, c, "hi", ActionContinue, StepData{})
	require.Equal(t, OutcomeRejected, res.Outcome)
	require.NotEmpty(t, res.ValidationError)
	require.Equal(t, domain.StepFeatures, c.CurrentStep)
	require.Equal(t, before, c.Data)

	_, c = step(t, m, c, "75 m2, 2 bedrooms, balcony facing south", ActionContinue, StepData{})
	require.Equal(t, domain.StepHighlights, c.CurrentStep)
	_, c = step(t, m, c, "", ActionHighlights, StepData{Highlights: []string{"balcony", " elevator ", "balcony"}})
	require.Equal(t, []string{"balcony", "elevator"}, c.Data.Highlights)
	require.Equal(t, domain.StepAudience, c.CurrentStep)

	gen.push(scripted{err: fmt.Errorf("%w: openai down", gateway.ErrUnavailable)})
	res, err := m.Advance(context.Background(), c, Input{Message: "family with two kids", Action: ActionContinue})
	require.ErrorIs(t, err, ErrGeneration)
	require.ErrorIs(t, err, gateway.ErrUnavailable)
	require.Equal(t, OutcomeGenerationFailed, res.Outcome)
	require.Len(t, gen.requests, 1)

	c = res.Conversation
	require.Equal(t, domain.StepAudience, c.CurrentStep)
	require.Equal(t, "family with two kids", c.Data.TargetAudience)
	require.Nil(t, c.Data.Persona)
	require.Contains(t, res.Message, "issue")
}

func TestAdvance_FullRun(t *testing.T) {
	m, gen := newTestMachine(t)
	c := toApproval(t, m, gen)
	require.Equal(t, "young family, 30s", c.Data.Persona["demographics"])
	require.Equal(t, AwaitingPersonaApproval, SubStageOf(c.Data))

	gen.push(scripted{text: jsonList("Question", 12), usage: domain.TokenUsage{Input: 10, Output: 20}})
	res, c := step(t, m, c, "", ActionApprovePersona, StepData{})
	require.Equal(t, OutcomeUpdated, res.Outcome)
	require.Len(t, c.Data.Questions, QuestionCount)
	require.True(t, c.Data.Approved.Persona)
	require.Equal(t, domain.StepApproval, c.CurrentStep)

	gen.push(scripted{text: jsonList("Answer", QuestionCount)})
	_, c = step(t, m, c, "", ActionApproveQuestions, StepData{})
	require.True(t, c.Data.Approved.Questions)
	require.Len(t, c.Data.Answers, len(c.Data.Questions))

	res, c = step(t, m, c, "", ActionApproveAnswers, StepData{})
	require.Equal(t, OutcomeAdvanced, res.Outcome)
	require.Equal(t, domain.StepReady, c.CurrentStep)
	require.True(t, c.Data.Approved.Answers)

	res, c = step(t, m, c, "ok", ActionContinue, StepData{})
	require.Equal(t, OutcomeClarify, res.Outcome)
	require.Equal(t, domain.StepReady, c.CurrentStep)

	listing := "Family home for rent with private garden and garage.\n\n" +
		"This 120 m2 house has 4 bedrooms and energy label A. Built in 1998.\n\n" +
		"Original stained glass windows give it character. Close to schools for the kids.\n\n" +
		"Schedule a viewing today."
	gen.push(scripted{text: listing, usage: domain.TokenUsage{Input: 300, Output: 200, Total: 500}})
	res, c = step(t, m, c, "", ActionGenerateFinal, StepData{})
	require.Equal(t, domain.StepCompleted, c.CurrentStep)
	require.Equal(t, domain.StatusCompleted, c.Status)
	require.Equal(t, listing, c.Data.FinalListing)
	require.NotNil(t, c.Data.Quality)
	require.Len(t, c.Data.Quality.Checks, 6)
	require.Contains(t, res.Message, listing)

	require.Equal(t, domain.TokenUsage{Input: 410, Output: 270, Total: 680}, c.Usage)
	require.Equal(t, gateway.ProviderOpenAI, c.Provider)

	last := c.Messages[len(c.Messages)-1]
	require.Equal(t, domain.RoleAssistant, last.Role)
	require.NotNil(t, last.Usage)
	require.Equal(t, 500, last.Usage.Total)

	for i := 1; i < len(c.Messages); i++ {
		require.GreaterOrEqual(t, c.Messages[i].Step, c.Messages[i-1].Step, "steps never decrease")
	}
}

func TestAdvance_DoesNotMutateInput(t *testing.T) {
	m, gen := newTestMachine(t)
	c := toApproval(t, m, gen)
	msgs := len(c.Messages)

	gen.push(scripted{text: jsonList("Question", QuestionCount)})
	_, err := m.Advance(context.Background(), c, Input{Action: ActionApprovePersona})
	require.NoError(t, err)
	require.False(t, c.Data.Approved.Persona)
	require.Empty(t, c.Data.Questions)
	require.Len(t, c.Messages, msgs)
}

func TestAdvance_ApprovalOrderEnforced(t *testing.T) {
	m, gen := newTestMachine(t)
	c := toApproval(t, m, gen)
	calls := len(gen.requests)

	for _, a := range []Action{ActionApproveQuestions, ActionApproveAnswers, ActionUpdateAnswers, ActionRegenerateAnswers} {
		res, next := step(t, m, c, "", a, StepData{})
		require.Equal(t, OutcomeClarify, res.Outcome, a)
		require.Equal(t, c.Data, next.Data, a)
		require.Equal(t, domain.StepApproval, next.CurrentStep, a)
	}
	require.Len(t, gen.requests, calls, "no provider call for out-of-order actions")
}

func TestAdvance_ApprovePersonaFailureKeepsFlags(t *testing.T) {
	m, gen := newTestMachine(t)
	c := toApproval(t, m, gen)

	gen.push(scripted{text: jsonList("Question", 3)})
	res, err := m.Advance(context.Background(), c, Input{Action: ActionApprovePersona})
	require.ErrorIs(t, err, ErrGeneration)
	require.False(t, res.Conversation.Data.Approved.Persona)
	require.Empty(t, res.Conversation.Data.Questions)
	require.Equal(t, c.Data, res.Conversation.Data)
	require.Len(t, res.Conversation.Messages, len(c.Messages)+2)
}

func TestAdvance_FailedGenerationStillCountsTokens(t *testing.T) {
	m, gen := newTestMachine(t)
	c := toApproval(t, m, gen)
	before := c.Usage

	gen.push(scripted{text: "no list here", usage: domain.TokenUsage{Input: 40, Output: 10, Total: 50}})
	res, err := m.Advance(context.Background(), c, Input{Action: ActionApprovePersona})
	require.ErrorIs(t, err, ErrGeneration)
	require.Equal(t, OutcomeGenerationFailed, res.Outcome)
	require.Equal(t, before.Total+50, res.Conversation.Usage.Total)
	last := res.Conversation.Messages[len(res.Conversation.Messages)-1]
	require.NotNil(t, last.Usage)
	require.Equal(t, 50, last.Usage.Total)
	require.Empty(t, res.Conversation.Data.Questions)
}

func TestAdvance_UpdatesAndRegeneration(t *testing.T) {
	m, gen := newTestMachine(t)
	c := toApproval(t, m, gen)

	res, c := step(t, m, c, "", ActionUpdatePersona, StepData{Persona: domain.Persona{"demographics": "retired couple"}})
	require.Equal(t, OutcomeUpdated, res.Outcome)
	require.Equal(t, "retired couple", c.Data.Persona["demographics"])
	require.False(t, c.Data.Approved.Persona)

	res, c = step(t, m, c, "", ActionUpdatePersona, StepData{})
	require.Equal(t, OutcomeRejected, res.Outcome)
	require.NotEmpty(t, res.ValidationError)
	require.Equal(t, "retired couple", c.Data.Persona["demographics"])

	gen.push(scripted{text: jsonList("Question", QuestionCount)})
	_, c = step(t, m, c, "", ActionApprovePersona, StepData{})
	gen.push(scripted{text: jsonList("Answer", QuestionCount)})
	_, c = step(t, m, c, "", ActionApproveQuestions, StepData{})

	res, c = step(t, m, c, "", ActionUpdateAnswers, StepData{Answers: []string{"only one"}})
	require.Equal(t, OutcomeRejected, res.Outcome)
	require.Len(t, c.Data.Answers, QuestionCount)

	edited := make([]string, QuestionCount)
	for i := range edited {
		edited[i] = fmt.Sprintf("edited %d", i)
	}
	_, c = step(t, m, c, "", ActionUpdateAnswers, StepData{Answers: edited})
	require.Equal(t, edited, c.Data.Answers)

	res, c = step(t, m, c, "", ActionUpdateQuestions, StepData{Questions: []string{"a", "b"}})
	require.Equal(t, OutcomeRejected, res.Outcome)
	require.Len(t, c.Data.Questions, QuestionCount)

	gen.push(scripted{text: jsonList("Fresh question", QuestionCount)})
	action := ParseAction("", "please regenerate the questions")
	require.Equal(t, ActionRegenerateQuestions, action)
	res, c = step(t, m, c, "please regenerate the questions", action, StepData{})
	require.Equal(t, OutcomeUpdated, res.Outcome)
	require.Contains(t, c.Data.Questions[0], "Fresh question")
	require.True(t, c.Data.Approved.Questions)
	require.False(t, c.Data.Approved.Answers)
	require.Equal(t, domain.StepApproval, c.CurrentStep)
	require.Len(t, c.Data.Answers, len(c.Data.Questions))
}

func TestAdvance_UnknownActionInApprovalClarifies(t *testing.T) {
	m, gen := newTestMachine(t)
	c := toApproval(t, m, gen)

	res, next := step(t, m, c, "what now?", ParseAction("dance", "what now?"), StepData{})
	require.Equal(t, OutcomeClarify, res.Outcome)
	require.Equal(t, c.Data, next.Data)
	require.Contains(t, res.Message, "persona")
}

func TestAdvance_ActionsOutsideTheirStepClarify(t *testing.T) {
	m, gen := newTestMachine(t)
	c := Start("s-1", domain.LanguageEN, fixedNow)

	res, next := step(t, m, c, "I want to rent", ParseAction("approve_answers", "I want to rent"), StepData{})
	require.Equal(t, OutcomeClarify, res.Outcome)
	require.Equal(t, domain.StepTransaction, next.CurrentStep)
	require.Empty(t, next.Data.Transaction)
	require.Equal(t, Welcome(domain.LanguageEN), res.Message)
	require.Len(t, next.Messages, len(c.Messages)+2)

	_, c = step(t, m, c, "I want to rent", ActionContinue, StepData{})
	res, next = step(t, m, c, "house", ParseAction("dance", "house"), StepData{})
	require.Equal(t, OutcomeClarify, res.Outcome)
	require.Equal(t, domain.StepPropertyType, next.CurrentStep)
	require.Empty(t, next.Data.PropertyType)

	_, c = step(t, m, c, "house", ActionContinue, StepData{})
	_, c = step(t, m, c, "120 m2, 4 bedrooms, built 1998, energy label A", ActionContinue, StepData{})
	res, next = step(t, m, c, "", Action("dance"), StepData{Highlights: []string{"garage"}})
	require.Equal(t, OutcomeClarify, res.Outcome)
	require.Equal(t, HighlightsFor("house"), res.Highlights)
	require.Empty(t, next.Data.Highlights)

	_, c = step(t, m, c, "", ActionHighlights, StepData{Highlights: []string{"garage"}})
	res, next = step(t, m, c, "family with two kids", ActionGenerateFinal, StepData{})
	require.Equal(t, OutcomeClarify, res.Outcome)
	require.Equal(t, domain.StepAudience, next.CurrentStep)
	require.Empty(t, next.Data.TargetAudience)
	require.Empty(t, gen.requests)
}

func TestAdvance_HighlightsMenuRepeats(t *testing.T) {
	m, _ := newTestMachine(t)
	c := Start("s-1", domain.LanguageEN, fixedNow)
	_, c = step(t, m, c, "for sale", ActionContinue, StepData{})
	_, c = step(t, m, c, "a cosy canal boat", ActionContinue, StepData{})
	require.Equal(t, "a cosy canal boat", c.Data.PropertyType)
	_, c = step(t, m, c, "a floating home with 2 cabins", ActionContinue, StepData{})

	res, c := step(t, m, c, "", ActionContinue, StepData{Highlights: []string{"great view"}})
	require.Equal(t, OutcomeClarify, res.Outcome)
	require.Equal(t, domain.StepHighlights, c.CurrentStep)
	require.Equal(t, propertyHighlights[defaultPropertyType], res.Highlights)
	require.Empty(t, c.Data.Highlights)

	res, c = step(t, m, c, "", ActionHighlights, StepData{})
	require.Equal(t, OutcomeRejected, res.Outcome)
	require.NotEmpty(t, res.Highlights)
	require.Equal(t, domain.StepHighlights, c.CurrentStep)
}

func TestAdvance_TerminalSessions(t *testing.T) {
	m, gen := newTestMachine(t)
	for _, status := range []domain.Status{domain.StatusCompleted, domain.StatusAbandoned} {
		c := Start("s-1", domain.LanguageEN, fixedNow)
		c.Status = status

		res, err := m.Advance(context.Background(), c, Input{Message: "rent", Action: ActionContinue})
		require.NoError(t, err)
		require.Equal(t, OutcomeTerminal, res.Outcome)
		require.False(t, res.Changed())
		require.Equal(t, c, res.Conversation)
		require.Equal(t, AlreadyCompleted(domain.LanguageEN), res.Message)
	}
	require.Empty(t, gen.requests)
}

func TestAdvance_GenerationRequestCarriesHistory(t *testing.T) {
	m, gen := newTestMachine(t)
	c := toApproval(t, m, gen)
	require.NotEmpty(t, c.Messages)

	req := gen.requests[0]
	require.Contains(t, req.Instruction, "buyer persona")
	last := req.Turns[len(req.Turns)-1]
	require.Equal(t, domain.RoleUser, last.Role)
	require.Contains(t, last.Content, "Target audience: family with two kids")
	require.Contains(t, last.Content, "Highlights: private garden, garage")
	require.Equal(t, domain.RoleAssistant, req.Turns[0].Role, "log starts with the welcome message")
}

func TestAdvance_DutchInstructions(t *testing.T) {
	m, gen := newTestMachine(t)
	c := Start("s-1", domain.LanguageNL, fixedNow)
	res, c := step(t, m, c, "Ik wil mijn huis verkopen", ActionContinue, StepData{})
	require.Equal(t, domain.TransactionSale, c.Data.Transaction)
	require.Contains(t, res.Message, "woning")

	c.CurrentStep = domain.StepAudience
	gen.push(scripted{text: personaJSON})
	_, _ = step(t, m, c, "starters", ActionContinue, StepData{})
	require.Contains(t, gen.requests[0].Instruction, "Dutch")
}

func TestTitle(t *testing.T) {
	require.Equal(t, "short", Title("  short "))
	long := "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz"
	require.Equal(t, long[:50]+"...", Title(long))
}
