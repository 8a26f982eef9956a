package domain

import (
	"encoding/json"
	"time"
)

// Step is one of the eight ordered wizard stages.
type Step int

const (
	StepTransaction  Step = 1
	StepPropertyType Step = 2
	StepFeatures     Step = 3
	StepHighlights   Step = 4
	StepAudience     Step = 5
	StepApproval     Step = 6
	StepReady        Step = 7
	StepCompleted    Step = 8
)

func (s Step) Valid() bool {
	return s >= StepTransaction && s <= StepCompleted
}

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether the status accepts no further step transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

type Language string

const (
	LanguageEN Language = "en"
	LanguageNL Language = "nl"
)

type Transaction string

const (
	TransactionSale Transaction = "sale"
	TransactionRent Transaction = "rent"
)

// Persona is the generated buyer/renter profile. Providers return it as a
// JSON object whose field set is not fixed.
type Persona map[string]any

// Approvals are set true only in the order persona, questions, answers.
type Approvals struct {
	Persona   bool `json:"persona"`
	Questions bool `json:"questions"`
	Answers   bool `json:"answers"`
}

// CollectedData accumulates everything the wizard learns about the listing.
type CollectedData struct {
	Transaction       Transaction    `json:"transaction,omitempty"`
	PropertyType      string         `json:"propertyType,omitempty"`
	BasicFeatures     string         `json:"basicFeatures,omitempty"`
	Highlights        []string       `json:"highlights,omitempty"`
	UniqueDetail      string         `json:"uniqueDetail,omitempty"`
	TargetAudience    string         `json:"targetAudience,omitempty"`
	SecondaryAudience string         `json:"secondaryAudience,omitempty"`
	Persona           Persona        `json:"persona,omitempty"`
	Questions         []string       `json:"questions,omitempty"`
	Answers           []string       `json:"answers,omitempty"`
	Approved          Approvals      `json:"approved"`
	FinalListing      string         `json:"finalListing,omitempty"`
	Quality           *QualityReport `json:"quality,omitempty"`
}

// Clone returns a deep copy so handlers can work on a scratch value and
// discard it on failure.
func (d CollectedData) Clone() CollectedData {
	out := d
	out.Highlights = cloneStrings(d.Highlights)
	out.Questions = cloneStrings(d.Questions)
	out.Answers = cloneStrings(d.Answers)
	out.Persona = d.Persona.Clone()
	if d.Quality != nil {
		q := *d.Quality
		q.Checks = append([]QualityCheck(nil), d.Quality.Checks...)
		out.Quality = &q
	}
	return out
}

// Clone deep-copies the persona through a JSON round trip, which is the
// shape it arrives in.
func (p Persona) Clone() Persona {
	if p == nil {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return p
	}
	var out Persona
	if err := json.Unmarshal(raw, &out); err != nil {
		return p
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

// QualityCheck is the outcome of one rule-based check on the final listing.
type QualityCheck struct {
	Name        string `json:"name"`
	Passed      bool   `json:"passed"`
	Explanation string `json:"explanation"`
}

// QualityReport is advisory metadata attached to the final listing.
type QualityReport struct {
	Checks []QualityCheck `json:"checks"`
	Score  int            `json:"score"`
	Passed bool           `json:"passed"`
}

// Message is one entry of the append-only session log.
type Message struct {
	Role      string      `json:"role"`
	Text      string      `json:"text"`
	Step      Step        `json:"step"`
	Usage     *TokenUsage `json:"usage,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Conversation is the full wizard state of one session.
type Conversation struct {
	SessionID   string        `json:"sessionId"`
	Language    Language      `json:"language"`
	CurrentStep Step          `json:"currentStep"`
	Status      Status        `json:"status"`
	Title       string        `json:"title,omitempty"`
	Data        CollectedData `json:"data"`
	Messages    []Message     `json:"messages"`
	Usage       TokenUsage    `json:"usage"`
	Provider    string        `json:"provider,omitempty"`
	Version     int           `json:"version"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// SessionSummary is the listing view of a conversation.
type SessionSummary struct {
	SessionID   string     `json:"sessionId"`
	Title       string     `json:"title,omitempty"`
	Language    Language   `json:"language"`
	CurrentStep Step       `json:"currentStep"`
	Status      Status     `json:"status"`
	Usage       TokenUsage `json:"usage"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (c Conversation) Summary() SessionSummary {
	return SessionSummary{
		SessionID:   c.SessionID,
		Title:       c.Title,
		Language:    c.Language,
		CurrentStep: c.CurrentStep,
		Status:      c.Status,
		Usage:       c.Usage,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
