package wizard

import (
	"context"
	"fmt"
	"strings"

	"listing-wizard/internal/domain"
)

func (m *Machine) transaction(t *turn) reply {
	tx, _ := DetectTransaction(t.msg)
	t.data.Transaction = tx
	return reply{
		text:    text(t.lang, textPropertyType),
		next:    domain.StepPropertyType,
		outcome: OutcomeAdvanced,
	}
}

func (m *Machine) propertyType(t *turn) reply {
	pt, ok := MatchPropertyType(t.msg)
	if !ok {
		pt = t.msg
	}
	t.data.PropertyType = pt
	return reply{
		text:       text(t.lang, textFeatures),
		next:       domain.StepFeatures,
		outcome:    OutcomeAdvanced,
		highlights: HighlightsFor(pt),
	}
}

func (m *Machine) features(t *turn) reply {
	t.data.BasicFeatures = t.msg
	hl := HighlightsFor(t.data.PropertyType)
	return reply{
		text:       join(text(t.lang, textHighlights), bulletList(hl)),
		next:       domain.StepHighlights,
		outcome:    OutcomeAdvanced,
		highlights: hl,
	}
}

// highlights only advances on an explicit highlights action; anything else
// shows the menu again.
func (m *Machine) highlights(t *turn) reply {
	hl := HighlightsFor(t.data.PropertyType)
	if t.in.Action != ActionHighlights {
		return reply{
			text:       join(text(t.lang, textHighlights), bulletList(hl)),
			outcome:    OutcomeClarify,
			highlights: hl,
		}
	}
	t.data.Highlights = t.in.Data.Selection()
	t.data.UniqueDetail = strings.TrimSpace(t.in.Data.UniqueDetail)
	return reply{
		text:    text(t.lang, textAudience),
		next:    domain.StepAudience,
		outcome: OutcomeAdvanced,
	}
}

// audience records the target audience on the conversation itself before
// generating, so it survives a failed persona call.
func (m *Machine) audience(ctx context.Context, t *turn) (reply, error) {
	secondary := strings.TrimSpace(t.in.Data.SecondaryAudience)
	t.conv.Data.TargetAudience = t.msg
	t.conv.Data.SecondaryAudience = secondary
	t.data.TargetAudience = t.msg
	t.data.SecondaryAudience = secondary

	res, err := m.generate(ctx, personaRequest(t.lang, t.conv.Messages, t.data))
	if err != nil {
		return reply{}, err
	}
	p, err := parsePersona(res.Text)
	if err != nil {
		return reply{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	t.data.Persona = p
	return reply{
		text:    join(text(t.lang, textPersona), renderPersona(p), text(t.lang, textClarifyPersona)),
		next:    domain.StepApproval,
		outcome: OutcomeAdvanced,
		gen:     &res,
	}, nil
}

// ready waits at step 7 for generate_final.
func (m *Machine) ready(ctx context.Context, t *turn) (reply, error) {
	if t.in.Action != ActionGenerateFinal {
		return reply{text: text(t.lang, textReadyHint), outcome: OutcomeClarify}, nil
	}
	res, err := m.generate(ctx, listingRequest(t.lang, t.conv.Messages, t.data))
	if err != nil {
		return reply{}, err
	}
	listing := strings.TrimSpace(res.Text)
	if listing == "" {
		return reply{}, fmt.Errorf("%w: empty listing", ErrGeneration)
	}
	report := CheckQuality(listing, t.data)
	t.data.FinalListing = listing
	t.data.Quality = &report
	return reply{
		text:    join(text(t.lang, textFinal), listing),
		next:    domain.StepCompleted,
		outcome: OutcomeAdvanced,
		gen:     &res,
	}, nil
}
