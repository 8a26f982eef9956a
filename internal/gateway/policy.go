package gateway

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	defaultMaxAttempts = 2
)

// Policy is the ordered provider list plus a cap on how many of them a
// single Generate call may try.
type Policy struct {
	Order       []string
	MaxAttempts int
}

// FallbackPolicy tries primary first and then the other of the two
// supported providers, once each.
func FallbackPolicy(primary string) Policy {
	alternate := ProviderGemini
	if primary == ProviderGemini {
		alternate = ProviderOpenAI
	} else {
		primary = ProviderOpenAI
	}
	return Policy{
		Order:       []string{primary, alternate},
		MaxAttempts: defaultMaxAttempts,
	}
}

// Attempts returns the providers a call will try, in order.
func (p Policy) Attempts() []string {
	n := p.MaxAttempts
	if n <= 0 || n > len(p.Order) {
		n = len(p.Order)
	}
	return p.Order[:n]
}
