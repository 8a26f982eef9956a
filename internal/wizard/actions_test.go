package wizard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	cases := []struct {
		raw, message string
		want         Action
	}{
		{"", "", ActionContinue},
		{"", "just some text", ActionContinue},
		{" Approve_Persona ", "", ActionApprovePersona},
		{"highlights", "", ActionHighlights},
		{"regenerate persona", "", ActionRegeneratePersona},
		{"Regenerate the answers please", "", ActionRegenerateAnswers},
		{"", "can you regenerate the questions?", ActionRegenerateQuestions},
		{"", "vragen opnieuw", ActionRegenerateQuestions},
		{"", "regenerate", ActionContinue},
		{"generate-final", "", ActionGenerateFinal},
		{"generate final", "", ActionGenerateFinal},
		{"dance", "", Action("dance")},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ParseAction(tc.raw, tc.message), "raw=%q message=%q", tc.raw, tc.message)
	}
	require.False(t, Action("dance").Known())
	require.True(t, ActionUpdateAnswers.Known())
}

func TestStepData_Selection(t *testing.T) {
	d := StepData{Highlights: []string{" Balcony", "balcony", "", "Garage "}}
	require.Equal(t, []string{"Balcony", "Garage"}, d.Selection())
	require.Empty(t, StepData{}.Selection())
}
