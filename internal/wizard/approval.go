package wizard

import (
	"context"
	"fmt"
	"strings"

	"listing-wizard/internal/domain"
	"listing-wizard/internal/gateway"
)

// SubStage is the position inside step 6. It is derived from the approval
// flags, which only ever become true in order.
type SubStage int

const (
	AwaitingPersonaApproval SubStage = iota + 1
	AwaitingQuestionsApproval
	AwaitingAnswersApproval
)

func (s SubStage) String() string {
	switch s {
	case AwaitingPersonaApproval:
		return "awaiting_persona_approval"
	case AwaitingQuestionsApproval:
		return "awaiting_questions_approval"
	case AwaitingAnswersApproval:
		return "awaiting_answers_approval"
	}
	return "unknown"
}

// ApproveAction is the action that completes the sub-stage.
func (s SubStage) ApproveAction() Action {
	switch s {
	case AwaitingQuestionsApproval:
		return ActionApproveQuestions
	case AwaitingAnswersApproval:
		return ActionApproveAnswers
	}
	return ActionApprovePersona
}

func SubStageOf(d domain.CollectedData) SubStage {
	switch {
	case !d.Approved.Persona:
		return AwaitingPersonaApproval
	case !d.Approved.Questions:
		return AwaitingQuestionsApproval
	default:
		return AwaitingAnswersApproval
	}
}

func (s SubStage) prompt(lang domain.Language) string {
	switch s {
	case AwaitingQuestionsApproval:
		return text(lang, textClarifyQuestions)
	case AwaitingAnswersApproval:
		return text(lang, textClarifyAnswers)
	}
	return text(lang, textClarifyPersona)
}

func (m *Machine) approval(ctx context.Context, t *turn) (reply, error) {
	stage := SubStageOf(t.data)
	d := &t.data

	switch t.in.Action {
	case ActionApprovePersona:
		if stage != AwaitingPersonaApproval || len(d.Persona) == 0 {
			return outOfOrder(t.lang, stage), nil
		}
		res, err := m.generate(ctx, questionsRequest(t.lang, t.conv.Messages, *d))
		if err != nil {
			return reply{}, err
		}
		qs, err := parseQuestions(res.Text)
		if err != nil {
			return reply{}, fmt.Errorf("%w: %w", ErrGeneration, err)
		}
		d.Approved.Persona = true
		d.Questions = qs
		d.Answers = nil
		return reply{
			text:    join(text(t.lang, textQuestions), numberedList(qs), AwaitingQuestionsApproval.prompt(t.lang)),
			outcome: OutcomeUpdated,
			gen:     &res,
		}, nil

	case ActionApproveQuestions:
		if stage != AwaitingQuestionsApproval || len(d.Questions) == 0 {
			return outOfOrder(t.lang, stage), nil
		}
		res, as, err := m.answers(ctx, t)
		if err != nil {
			return reply{}, err
		}
		d.Approved.Questions = true
		d.Answers = as
		return reply{
			text:    join(text(t.lang, textAnswers), questionsAndAnswers(d.Questions, as), AwaitingAnswersApproval.prompt(t.lang)),
			outcome: OutcomeUpdated,
			gen:     &res,
		}, nil

	case ActionApproveAnswers:
		if stage != AwaitingAnswersApproval || len(d.Answers) == 0 || len(d.Answers) != len(d.Questions) {
			return outOfOrder(t.lang, stage), nil
		}
		d.Approved.Answers = true
		return reply{
			text:    join(text(t.lang, textReady), text(t.lang, textReadyHint)),
			next:    domain.StepReady,
			outcome: OutcomeAdvanced,
		}, nil

	case ActionUpdatePersona:
		if len(t.in.Data.Persona) == 0 {
			return rejected(t.lang, textRejectPersona), nil
		}
		d.Persona = t.in.Data.Persona.Clone()
		return reply{
			text:    join(text(t.lang, textUpdated), renderPersona(d.Persona), stage.prompt(t.lang)),
			outcome: OutcomeUpdated,
		}, nil

	case ActionUpdateQuestions:
		if len(d.Questions) == 0 {
			return outOfOrder(t.lang, stage), nil
		}
		qs, ok := trimAll(t.in.Data.Questions)
		if !ok || (len(d.Answers) > 0 && len(qs) != len(d.Answers)) {
			return rejected(t.lang, textRejectQuestions), nil
		}
		d.Questions = qs
		return reply{
			text:    join(text(t.lang, textUpdated), numberedList(qs), stage.prompt(t.lang)),
			outcome: OutcomeUpdated,
		}, nil

	case ActionUpdateAnswers:
		if len(d.Answers) == 0 {
			return outOfOrder(t.lang, stage), nil
		}
		as, ok := trimAll(t.in.Data.Answers)
		if !ok || len(as) != len(d.Questions) {
			return rejected(t.lang, textRejectAnswers), nil
		}
		d.Answers = as
		return reply{
			text:    join(text(t.lang, textUpdated), questionsAndAnswers(d.Questions, as), stage.prompt(t.lang)),
			outcome: OutcomeUpdated,
		}, nil

	case ActionRegeneratePersona:
		res, err := m.generate(ctx, personaRequest(t.lang, t.conv.Messages, *d))
		if err != nil {
			return reply{}, err
		}
		p, err := parsePersona(res.Text)
		if err != nil {
			return reply{}, fmt.Errorf("%w: %w", ErrGeneration, err)
		}
		d.Persona = p
		return reply{
			text:    join(text(t.lang, textRegenerated), renderPersona(p), stage.prompt(t.lang)),
			outcome: OutcomeUpdated,
			gen:     &res,
		}, nil

	case ActionRegenerateQuestions:
		if len(d.Questions) == 0 {
			return outOfOrder(t.lang, stage), nil
		}
		res, err := m.generate(ctx, questionsRequest(t.lang, t.conv.Messages, *d))
		if err != nil {
			return reply{}, err
		}
		qs, err := parseQuestions(res.Text)
		if err != nil {
			return reply{}, fmt.Errorf("%w: %w", ErrGeneration, err)
		}
		d.Questions = qs
		return reply{
			text:    join(text(t.lang, textRegenerated), numberedList(qs), stage.prompt(t.lang)),
			outcome: OutcomeUpdated,
			gen:     &res,
		}, nil

	case ActionRegenerateAnswers:
		if len(d.Answers) == 0 {
			return outOfOrder(t.lang, stage), nil
		}
		res, as, err := m.answers(ctx, t)
		if err != nil {
			return reply{}, err
		}
		d.Answers = as
		return reply{
			text:    join(text(t.lang, textRegenerated), questionsAndAnswers(d.Questions, as), stage.prompt(t.lang)),
			outcome: OutcomeUpdated,
			gen:     &res,
		}, nil
	}

	return reply{text: stage.prompt(t.lang), outcome: OutcomeClarify}, nil
}

func (m *Machine) answers(ctx context.Context, t *turn) (res gateway.Result, as []string, err error) {
	res, err = m.generate(ctx, answersRequest(t.lang, t.conv.Messages, t.data))
	if err != nil {
		return res, nil, err
	}
	as, err = parseAnswers(res.Text, len(t.data.Questions))
	if err != nil {
		return res, nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return res, as, nil
}

func outOfOrder(lang domain.Language, stage SubStage) reply {
	return reply{text: join(text(lang, textOutOfOrder), stage.prompt(lang)), outcome: OutcomeClarify}
}

func rejected(lang domain.Language, key textKey) reply {
	return reply{text: text(lang, key), outcome: OutcomeRejected}
}

// trimAll trims every item and fails on an empty list or an empty item, so
// positions stay aligned.
func trimAll(items []string) ([]string, bool) {
	if len(items) == 0 {
		return nil, false
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = strings.TrimSpace(it)
		if out[i] == "" {
			return nil, false
		}
	}
	return out, true
}
