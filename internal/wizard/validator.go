package wizard

import (
	"strings"
	"unicode/utf8"

	"listing-wizard/internal/domain"
)

const (
	minPropertyTypeLen = 4
	minFeaturesLen     = 10
	minAudienceLen     = 3
)

// Verdict is the outcome of Validate. Correction is set when Accepted is
// false and is meant for the user.
type Verdict struct {
	Accepted   bool
	Correction string
}

func accept() Verdict { return Verdict{Accepted: true} }

func reject(lang domain.Language, key textKey) Verdict {
	return Verdict{Correction: text(lang, key)}
}

// Validate applies the input rule of step. Steps 6 to 8 have none; their
// handlers route on the action instead.
func Validate(lang domain.Language, step domain.Step, message string, action Action, data StepData) Verdict {
	msg := strings.TrimSpace(message)
	switch step {
	case domain.StepTransaction:
		if _, ok := DetectTransaction(msg); !ok {
			return reject(lang, textRejectTransaction)
		}
	case domain.StepPropertyType:
		if _, ok := MatchPropertyType(msg); !ok && utf8.RuneCountInString(msg) < minPropertyTypeLen {
			return reject(lang, textRejectPropertyType)
		}
	case domain.StepFeatures:
		if utf8.RuneCountInString(msg) < minFeaturesLen {
			return reject(lang, textRejectFeatures)
		}
	case domain.StepHighlights:
		if len(data.Selection()) == 0 {
			return reject(lang, textRejectHighlights)
		}
	case domain.StepAudience:
		if utf8.RuneCountInString(msg) < minAudienceLen {
			return reject(lang, textRejectAudience)
		}
	}
	return accept()
}
