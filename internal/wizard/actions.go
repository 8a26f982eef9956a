package wizard

import (
	"strings"

	"listing-wizard/internal/domain"
)

// Action is the closed set of transition messages a step request may carry.
type Action string

const (
	ActionContinue            Action = "continue"
	ActionHighlights          Action = "highlights"
	ActionApprovePersona      Action = "approve_persona"
	ActionApproveQuestions    Action = "approve_questions"
	ActionApproveAnswers      Action = "approve_answers"
	ActionUpdatePersona       Action = "update_persona"
	ActionUpdateQuestions     Action = "update_questions"
	ActionUpdateAnswers       Action = "update_answers"
	ActionRegeneratePersona   Action = "regenerate_persona"
	ActionRegenerateQuestions Action = "regenerate_questions"
	ActionRegenerateAnswers   Action = "regenerate_answers"
	ActionGenerateFinal       Action = "generate_final"
)

var knownActions = map[Action]struct{}{
	ActionContinue:            {},
	ActionHighlights:          {},
	ActionApprovePersona:      {},
	ActionApproveQuestions:    {},
	ActionApproveAnswers:      {},
	ActionUpdatePersona:       {},
	ActionUpdateQuestions:     {},
	ActionUpdateAnswers:       {},
	ActionRegeneratePersona:   {},
	ActionRegenerateQuestions: {},
	ActionRegenerateAnswers:   {},
	ActionGenerateFinal:       {},
}

func (a Action) Known() bool {
	_, ok := knownActions[a]
	return ok
}

// ParseAction normalizes the raw action of a step request. Free text of the
// form "regenerate <artifact>", in either the action or the message, maps to
// the matching regenerate action. An empty action is ActionContinue. Unknown
// values are returned as-is and fail Known.
func ParseAction(raw, message string) Action {
	a := Action(strings.ToLower(strings.TrimSpace(raw)))
	if a.Known() {
		return a
	}
	if regen, ok := regenerateFromText(string(a)); ok {
		return regen
	}
	if a == "" {
		if regen, ok := regenerateFromText(message); ok {
			return regen
		}
		return ActionContinue
	}
	switch strings.NewReplacer("-", " ", "_", " ").Replace(string(a)) {
	case "generate final", "final", "generate":
		return ActionGenerateFinal
	}
	return a
}

func regenerateFromText(text string) (Action, bool) {
	ws := words(text)
	found := false
	for _, w := range ws {
		if w == "regenerate" || w == "regen" || w == "opnieuw" {
			found = true
			break
		}
	}
	if !found {
		return "", false
	}
	for _, w := range ws {
		switch w {
		case "persona":
			return ActionRegeneratePersona, true
		case "questions", "question", "vragen":
			return ActionRegenerateQuestions, true
		case "answers", "answer", "antwoorden":
			return ActionRegenerateAnswers, true
		}
	}
	return "", false
}

// StepData is the structured payload of a step request.
type StepData struct {
	Highlights        []string       `json:"highlights,omitempty"`
	UniqueDetail      string         `json:"uniqueDetail,omitempty"`
	SecondaryAudience string         `json:"secondaryAudience,omitempty"`
	Persona           domain.Persona `json:"persona,omitempty"`
	Questions         []string       `json:"questions,omitempty"`
	Answers           []string       `json:"answers,omitempty"`
}

// Selection returns the trimmed, de-duplicated highlight selection.
func (d StepData) Selection() []string {
	seen := make(map[string]struct{}, len(d.Highlights))
	out := make([]string, 0, len(d.Highlights))
	for _, h := range d.Highlights {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		key := strings.ToLower(h)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, h)
	}
	return out
}
