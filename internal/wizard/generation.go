package wizard

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"listing-wizard/internal/domain"
	"listing-wizard/internal/gateway"
)

// QuestionCount is the number of questions generated for the audience.
const QuestionCount = 10

const (
	personaInstruction = `You are a real estate marketing expert. Create a detailed buyer persona in JSON format based on the provided property and target audience information.

Include these fields:
- demographics (age, income, lifestyle)
- motivations (why they're looking to buy/rent)
- pain_points (concerns and challenges)
- decision_factors (what influences their choice)
- communication_style (how they prefer to receive information)
- timeline (urgency level)

Make the persona specific and actionable for property marketing. Return only valid JSON.`

	questionsInstruction = `You are a real estate expert. Generate exactly 10 questions that the target audience typically asks when considering this type of property.

Focus on:
- Practical concerns (location, transport, costs)
- Lifestyle fit (space, noise, amenities)
- Investment aspects (if relevant)
- Move-in process and timeline
- Neighborhood and local facilities

Return as a JSON array of exactly 10 question strings.`

	answersInstruction = `You are a skilled real estate copywriter. Create compelling answers to the provided questions using the property data.

Guidelines:
- Use the actual property details in answers
- Be specific and factual
- Address concerns proactively
- Include calls to action where appropriate
- Match the tone to the target audience
- Keep answers concise but comprehensive

Return as a JSON array of answer strings in the same order as the questions.`

	listingInstruction = `You are an expert real estate copywriter creating a compelling property listing.

Use ALL provided data including:
- Transaction type (sale/rent)
- Property type and features
- Selected highlights
- Unique details
- Target audience insights
- Generated persona
- Q&A content

Structure the listing with:
1. Compelling headline
2. Property overview
3. Key features (use selected highlights)
4. Unique selling points
5. Lifestyle benefits (persona-driven)
6. Practical information
7. Strong call to action

Write in a professional, engaging tone that speaks directly to the target audience. Include all factual details provided. Make it scannable with bullet points and short paragraphs.

Return only the final listing text, no JSON formatting.`
)

func withLanguage(instruction string, lang domain.Language) string {
	if lang == domain.LanguageNL {
		return instruction + "\n\nWrite all text in Dutch. Keep JSON keys in English."
	}
	return instruction
}

// history maps the session log to provider turns.
func history(msgs []domain.Message) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(msgs)+1)
	for _, m := range msgs {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		out = append(out, domain.ChatMessage{Role: m.Role, Content: m.Text})
	}
	return out
}

// brief renders the collected data as the final user turn of a generation
// request.
func brief(d domain.CollectedData, withPersona, withQA bool) string {
	var b strings.Builder
	line := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	line("Transaction", string(d.Transaction))
	line("Property type", d.PropertyType)
	line("Features", d.BasicFeatures)
	line("Highlights", strings.Join(d.Highlights, ", "))
	line("Unique detail", d.UniqueDetail)
	line("Target audience", d.TargetAudience)
	line("Secondary audience", d.SecondaryAudience)
	if withPersona && len(d.Persona) > 0 {
		raw, _ := json.Marshal(d.Persona)
		line("Persona", string(raw))
	}
	if withQA && len(d.Questions) > 0 {
		b.WriteString("Questions and answers:\n")
		b.WriteString(questionsAndAnswers(d.Questions, d.Answers))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func request(instruction string, lang domain.Language, msgs []domain.Message, prompt string, accept func(string) error) gateway.Request {
	turns := history(msgs)
	turns = append(turns, domain.ChatMessage{Role: domain.RoleUser, Content: prompt})
	return gateway.Request{
		Instruction: withLanguage(instruction, lang),
		Turns:       turns,
		Accept:      accept,
	}
}

func personaRequest(lang domain.Language, msgs []domain.Message, d domain.CollectedData) gateway.Request {
	return request(personaInstruction, lang, msgs, brief(d, false, false), func(s string) error {
		_, err := parsePersona(s)
		return err
	})
}

func questionsRequest(lang domain.Language, msgs []domain.Message, d domain.CollectedData) gateway.Request {
	return request(questionsInstruction, lang, msgs, brief(d, true, false), func(s string) error {
		_, err := parseQuestions(s)
		return err
	})
}

func answersRequest(lang domain.Language, msgs []domain.Message, d domain.CollectedData) gateway.Request {
	prompt := brief(d, true, false) + "\n\nQuestions:\n" + numberedList(d.Questions)
	n := len(d.Questions)
	return request(answersInstruction, lang, msgs, prompt, func(s string) error {
		_, err := parseAnswers(s, n)
		return err
	})
}

func listingRequest(lang domain.Language, msgs []domain.Message, d domain.CollectedData) gateway.Request {
	return request(listingInstruction, lang, msgs, brief(d, true, true), nil)
}

// stripFences removes a surrounding markdown code fence, which models often
// add around JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// enclosed returns the text between the first open and the last close byte.
func enclosed(s string, opening, closing byte) (string, bool) {
	start := strings.IndexByte(s, opening)
	end := strings.LastIndexByte(s, closing)
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func parsePersona(text string) (domain.Persona, error) {
	raw, ok := enclosed(stripFences(text), '{', '}')
	if !ok {
		return nil, errors.New("persona: no JSON object in completion")
	}
	var p domain.Persona
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("persona: %w", err)
	}
	if len(p) == 0 {
		return nil, errors.New("persona: empty object")
	}
	return p, nil
}

func parseStrings(text string) ([]string, error) {
	raw, ok := enclosed(stripFences(text), '[', ']')
	if !ok {
		return nil, errors.New("no JSON array in completion")
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out, nil
}

// parseQuestions accepts at least QuestionCount questions and keeps the first
// QuestionCount.
func parseQuestions(text string) ([]string, error) {
	qs, err := parseStrings(text)
	if err != nil {
		return nil, fmt.Errorf("questions: %w", err)
	}
	if len(qs) < QuestionCount {
		return nil, fmt.Errorf("questions: got %d, want %d", len(qs), QuestionCount)
	}
	return qs[:QuestionCount], nil
}

func parseAnswers(text string, n int) ([]string, error) {
	as, err := parseStrings(text)
	if err != nil {
		return nil, fmt.Errorf("answers: %w", err)
	}
	if len(as) != n {
		return nil, fmt.Errorf("answers: got %d, want %d", len(as), n)
	}
	return as, nil
}

func renderPersona(p domain.Persona) string {
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Sprint(map[string]any(p))
	}
	return string(raw)
}
