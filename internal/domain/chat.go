package domain

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat turn shape used by the wizard
// and the LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage counts tokens consumed by provider calls. Providers that do not
// report usage leave it zero.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// Add returns the sum of u and o. A zero Total on o is derived from its
// input and output counts.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	total := o.Total
	if total == 0 {
		total = o.Input + o.Output
	}
	return TokenUsage{
		Input:  u.Input + o.Input,
		Output: u.Output + o.Output,
		Total:  u.Total + total,
	}
}

func (u TokenUsage) IsZero() bool {
	return u.Input == 0 && u.Output == 0 && u.Total == 0
}
