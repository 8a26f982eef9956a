package usecase

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"listing-wizard/internal/domain"
	"listing-wizard/internal/observability"
	"listing-wizard/internal/repository"
	"listing-wizard/internal/wizard"
)

const (
	DefaultListLimit  = 20
	maxListLimit      = 100
	defaultMaxMessage = 4000
)

// SessionStore persists conversations. UpdateSession must fail with
// repository.ErrConflict when the stored version is no longer prev.Version.
type SessionStore interface {
	CreateSession(ctx context.Context, conv domain.Conversation) error
	GetSession(ctx context.Context, sessionID string) (domain.Conversation, error)
	UpdateSession(ctx context.Context, prev, next domain.Conversation) error
	ListRecentSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error)
}

type Stepper interface {
	Advance(ctx context.Context, conv domain.Conversation, in wizard.Input) (wizard.Result, error)
}

type WizardService struct {
	store         SessionStore
	machine       Stepper
	locks         *sessionLocks
	maxMessageLen int
	now           func() time.Time
}

type StartOutput struct {
	SessionID    string
	FirstMessage string
	Conversation domain.Conversation
}

type StepInput struct {
	SessionID string
	Message   string
	Action    string
	Data      wizard.StepData
}

// StepOutput is the snapshot returned after one step request.
type StepOutput struct {
	SessionID       string
	Message         string
	CurrentStep     domain.Step
	Status          domain.Status
	Data            domain.CollectedData
	Outcome         wizard.Outcome
	ValidationError string
	Highlights      []string
	Usage           domain.TokenUsage
	Provider        string
}

type Option func(*WizardService)

// WithMaxMessageLen caps the user message length in runes.
func WithMaxMessageLen(n int) Option {
	return func(s *WizardService) {
		if n > 0 {
			s.maxMessageLen = n
		}
	}
}

func NewWizardService(store SessionStore, machine Stepper, opts ...Option) (*WizardService, error) {
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if machine == nil {
		return nil, errors.New("usecase: state machine must not be nil")
	}
	s := &WizardService{
		store:         store,
		machine:       machine,
		locks:         newSessionLocks(),
		maxMessageLen: defaultMaxMessage,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StartSession creates a session at step 1. An empty language means English.
func (s *WizardService) StartSession(ctx context.Context, language string) (StartOutput, error) {
	lang := domain.Language(strings.ToLower(strings.TrimSpace(language)))
	if lang == "" {
		lang = domain.LanguageEN
	}
	if !wizard.SupportedLanguage(lang) {
		return StartOutput{}, newError(ErrorInvalidInput, "unsupported_language", nil)
	}

	conv := wizard.Start(newUUID(), lang, s.now())
	conv.Version = 1
	if err := s.store.CreateSession(ctx, conv); err != nil {
		return StartOutput{}, newError(ErrorInternal, "store_create_error", err)
	}

	observability.LoggerFromContext(ctx).Info("session started",
		"session_id", conv.SessionID,
		"language", conv.Language,
	)
	return StartOutput{
		SessionID:    conv.SessionID,
		FirstMessage: conv.Messages[0].Text,
		Conversation: conv,
	}, nil
}

// AdvanceStep applies one user request to the session. Validation
// rejections and clarifications are successful responses; a provider
// failure persists the logged exchange and returns GENERATION_FAILED.
func (s *WizardService) AdvanceStep(ctx context.Context, in StepInput) (StepOutput, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return StepOutput{}, newError(ErrorInvalidInput, "missing_session_id", nil)
	}
	if utf8.RuneCountInString(in.Message) > s.maxMessageLen {
		return StepOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	conv, err := s.load(ctx, sessionID)
	if err != nil {
		return StepOutput{}, err
	}

	log := observability.LoggerFromContext(ctx).With("session_id", sessionID)
	action := wizard.ParseAction(in.Action, in.Message)
	res, stepErr := s.machine.Advance(ctx, conv, wizard.Input{
		Message: in.Message,
		Action:  action,
		Data:    in.Data,
	})
	if stepErr != nil && !errors.Is(stepErr, wizard.ErrGeneration) {
		return StepOutput{}, newError(ErrorInternal, "state_machine_error", stepErr)
	}

	next := res.Conversation
	if res.Changed() {
		next.Version = conv.Version + 1
		if err := s.save(ctx, conv, next); err != nil {
			return StepOutput{}, err
		}
	}

	log.Info("step processed",
		"step", conv.CurrentStep,
		"next_step", next.CurrentStep,
		"action", action,
		"outcome", res.Outcome,
	)

	out := StepOutput{
		SessionID:       sessionID,
		Message:         res.Message,
		CurrentStep:     next.CurrentStep,
		Status:          next.Status,
		Data:            next.Data,
		Outcome:         res.Outcome,
		ValidationError: res.ValidationError,
		Highlights:      res.Highlights,
		Usage:           next.Usage,
		Provider:        next.Provider,
	}
	if stepErr != nil {
		return out, newError(ErrorGenerationFailed, "providers_unavailable", stepErr)
	}
	return out, nil
}

func (s *WizardService) GetSession(ctx context.Context, sessionID string) (domain.Conversation, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Conversation{}, newError(ErrorInvalidInput, "missing_session_id", nil)
	}
	return s.load(ctx, sessionID)
}

// ListRecentSessions returns summaries newest first. A non-positive limit
// means DefaultListLimit.
func (s *WizardService) ListRecentSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	out, err := s.store.ListRecentSessions(ctx, limit)
	if err != nil {
		return nil, newError(ErrorInternal, "store_list_error", err)
	}
	return out, nil
}

// EndSession marks an active session abandoned. Sessions that are already
// terminal are returned unchanged.
func (s *WizardService) EndSession(ctx context.Context, sessionID string) (domain.Conversation, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Conversation{}, newError(ErrorInvalidInput, "missing_session_id", nil)
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	conv, err := s.load(ctx, sessionID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if conv.Status.Terminal() {
		return conv, nil
	}

	next := conv
	next.Status = domain.StatusAbandoned
	next.Version = conv.Version + 1
	next.UpdatedAt = s.now()
	if err := s.save(ctx, conv, next); err != nil {
		return domain.Conversation{}, err
	}
	observability.LoggerFromContext(ctx).Info("session ended", "session_id", sessionID, "step", next.CurrentStep)
	return next, nil
}

func (s *WizardService) load(ctx context.Context, sessionID string) (domain.Conversation, error) {
	conv, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Conversation{}, newError(ErrorNotFound, "session_not_found", err)
	}
	if err != nil {
		return domain.Conversation{}, newError(ErrorInternal, "store_read_error", err)
	}
	return conv, nil
}

func (s *WizardService) save(ctx context.Context, prev, next domain.Conversation) error {
	err := s.store.UpdateSession(ctx, prev, next)
	if errors.Is(err, repository.ErrConflict) {
		return newError(ErrorConflict, "concurrent_update", err)
	}
	if err != nil {
		return newError(ErrorInternal, "store_write_error", err)
	}
	return nil
}

var newUUID = func() string {
	return uuid.NewString()
}
