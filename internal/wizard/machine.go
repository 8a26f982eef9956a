package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"listing-wizard/internal/domain"
	"listing-wizard/internal/gateway"
)

const titleLen = 50

// ErrGeneration wraps a provider failure inside a step handler. The Result
// returned alongside it is still valid and should be persisted.
var ErrGeneration = errors.New("wizard: generation failed")

// Generator is the slice of the provider gateway the wizard needs.
type Generator interface {
	Generate(ctx context.Context, req gateway.Request) (gateway.Result, error)
}

// Input is one step request.
type Input struct {
	Message string
	Action  Action
	Data    StepData
}

type Outcome string

const (
	OutcomeAdvanced         Outcome = "advanced"
	OutcomeUpdated          Outcome = "updated"
	OutcomeRejected         Outcome = "rejected"
	OutcomeClarify          Outcome = "clarify"
	OutcomeGenerationFailed Outcome = "generation_failed"
	OutcomeTerminal         Outcome = "terminal"
)

// Result is the conversation after a step request plus what to show the user.
type Result struct {
	Conversation    domain.Conversation
	Message         string
	Outcome         Outcome
	ValidationError string
	Highlights      []string
}

// Changed reports whether Conversation differs from the input and must be
// saved.
func (r Result) Changed() bool {
	return r.Outcome != OutcomeTerminal
}

// Machine drives a conversation through the eight wizard steps. It holds no
// per-session state; callers serialize requests for the same session.
type Machine struct {
	gen Generator
	now func() time.Time
}

func NewMachine(gen Generator) (*Machine, error) {
	if gen == nil {
		return nil, errors.New("wizard: generator must not be nil")
	}
	return &Machine{gen: gen, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Start returns a new active conversation at step 1 holding the welcome
// message.
func Start(sessionID string, lang domain.Language, now time.Time) domain.Conversation {
	return domain.Conversation{
		SessionID:   sessionID,
		Language:    lang,
		CurrentStep: domain.StepTransaction,
		Status:      domain.StatusActive,
		Messages: []domain.Message{{
			Role:      domain.RoleAssistant,
			Text:      Welcome(lang),
			Step:      domain.StepTransaction,
			Timestamp: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Title derives a session title from the first user message.
func Title(message string) string {
	r := []rune(strings.TrimSpace(message))
	if len(r) <= titleLen {
		return string(r)
	}
	return string(r[:titleLen]) + "..."
}

// reply is a handler's successful result. Data changes on the turn are kept
// only for OutcomeAdvanced and OutcomeUpdated.
type reply struct {
	text       string
	next       domain.Step
	outcome    Outcome
	highlights []string
	gen        *gateway.Result
}

type turn struct {
	lang domain.Language
	in   Input
	msg  string
	conv *domain.Conversation
	data domain.CollectedData
}

// Advance applies one step request to conv and returns the new state. conv is
// not modified. On a provider failure the returned error wraps ErrGeneration
// and the Result carries the logged exchange with no artifact committed.
func (m *Machine) Advance(ctx context.Context, conv domain.Conversation, in Input) (Result, error) {
	if conv.Status.Terminal() || conv.CurrentStep >= domain.StepCompleted {
		return Result{Conversation: conv, Message: AlreadyCompleted(conv.Language), Outcome: OutcomeTerminal}, nil
	}
	if !conv.CurrentStep.Valid() {
		return Result{}, fmt.Errorf("wizard: invalid step %d", conv.CurrentStep)
	}
	if in.Action == "" {
		in.Action = ActionContinue
	}

	work := conv
	work.Data = conv.Data.Clone()
	work.Messages = append(make([]domain.Message, 0, len(conv.Messages)+2), conv.Messages...)
	m.appendUser(&work, in)

	if !fits(work.CurrentStep, in.Action) {
		msg, hl := stepPrompt(work)
		m.appendAssistant(&work, msg, nil)
		return Result{Conversation: work, Message: msg, Outcome: OutcomeClarify, Highlights: hl}, nil
	}

	if v := Validate(work.Language, work.CurrentStep, in.Message, in.Action, in.Data); !v.Accepted {
		res := Result{Message: v.Correction, Outcome: OutcomeRejected, ValidationError: v.Correction}
		if work.CurrentStep == domain.StepHighlights {
			res.Highlights = HighlightsFor(work.Data.PropertyType)
		}
		m.appendAssistant(&work, v.Correction, nil)
		res.Conversation = work
		return res, nil
	}

	t := &turn{
		lang: work.Language,
		in:   in,
		msg:  strings.TrimSpace(in.Message),
		conv: &work,
		data: work.Data.Clone(),
	}
	rep, err := m.dispatch(ctx, t)
	if err != nil {
		if !errors.Is(err, ErrGeneration) {
			return Result{}, err
		}
		msg := text(work.Language, textIssue)
		var usage *domain.TokenUsage
		var ue *gateway.UnavailableError
		if errors.As(err, &ue) && !ue.Usage.IsZero() {
			usage = &ue.Usage
			work.Usage = work.Usage.Add(ue.Usage)
		}
		m.appendAssistant(&work, msg, usage)
		return Result{Conversation: work, Message: msg, Outcome: OutcomeGenerationFailed}, err
	}

	if rep.outcome == OutcomeAdvanced || rep.outcome == OutcomeUpdated {
		work.Data = t.data
	}
	var usage *domain.TokenUsage
	if rep.gen != nil {
		u := rep.gen.Usage
		usage = &u
		work.Usage = work.Usage.Add(u)
		work.Provider = rep.gen.Provider
	}
	if rep.next > work.CurrentStep {
		work.CurrentStep = rep.next
	}
	if work.CurrentStep == domain.StepCompleted {
		work.Status = domain.StatusCompleted
	}
	m.appendAssistant(&work, rep.text, usage)

	res := Result{
		Conversation: work,
		Message:      rep.text,
		Outcome:      rep.outcome,
		Highlights:   rep.highlights,
	}
	if rep.outcome == OutcomeRejected {
		res.ValidationError = rep.text
	}
	return res, nil
}

// fits reports whether a is a known action the step can route. Steps 4, 6
// and 7 route on the action in their handlers; the rest only continue.
func fits(step domain.Step, a Action) bool {
	if !a.Known() {
		return false
	}
	switch step {
	case domain.StepTransaction, domain.StepPropertyType, domain.StepFeatures, domain.StepAudience:
		return a == ActionContinue
	}
	return true
}

// stepPrompt is the question the current step is waiting on.
func stepPrompt(c domain.Conversation) (string, []string) {
	switch c.CurrentStep {
	case domain.StepPropertyType:
		return text(c.Language, textPropertyType), nil
	case domain.StepFeatures:
		return text(c.Language, textFeatures), nil
	case domain.StepHighlights:
		hl := HighlightsFor(c.Data.PropertyType)
		return join(text(c.Language, textHighlights), bulletList(hl)), hl
	case domain.StepAudience:
		return text(c.Language, textAudience), nil
	case domain.StepApproval:
		return SubStageOf(c.Data).prompt(c.Language), nil
	case domain.StepReady:
		return text(c.Language, textReadyHint), nil
	}
	return text(c.Language, textWelcome), nil
}

func (m *Machine) dispatch(ctx context.Context, t *turn) (reply, error) {
	switch t.conv.CurrentStep {
	case domain.StepTransaction:
		return m.transaction(t), nil
	case domain.StepPropertyType:
		return m.propertyType(t), nil
	case domain.StepFeatures:
		return m.features(t), nil
	case domain.StepHighlights:
		return m.highlights(t), nil
	case domain.StepAudience:
		return m.audience(ctx, t)
	case domain.StepApproval:
		return m.approval(ctx, t)
	case domain.StepReady:
		return m.ready(ctx, t)
	}
	return reply{}, fmt.Errorf("wizard: no handler for step %d", t.conv.CurrentStep)
}

func (m *Machine) generate(ctx context.Context, req gateway.Request) (gateway.Result, error) {
	res, err := m.gen.Generate(ctx, req)
	if err != nil {
		return gateway.Result{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return res, nil
}

func (m *Machine) appendUser(c *domain.Conversation, in Input) {
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		if sel := in.Data.Selection(); len(sel) > 0 {
			msg = strings.Join(sel, ", ")
		} else {
			msg = string(in.Action)
		}
	}
	if c.Title == "" {
		c.Title = Title(msg)
	}
	now := m.now()
	c.Messages = append(c.Messages, domain.Message{
		Role:      domain.RoleUser,
		Text:      msg,
		Step:      c.CurrentStep,
		Timestamp: now,
	})
	c.UpdatedAt = now
}

func (m *Machine) appendAssistant(c *domain.Conversation, text string, usage *domain.TokenUsage) {
	now := m.now()
	c.Messages = append(c.Messages, domain.Message{
		Role:      domain.RoleAssistant,
		Text:      text,
		Step:      c.CurrentStep,
		Usage:     usage,
		Timestamp: now,
	})
	c.UpdatedAt = now
}
