package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"listing-wizard/internal/domain"
	"listing-wizard/internal/observability"
	"listing-wizard/internal/usecase"
	"listing-wizard/internal/wizard"
)

const headerCorrelationID = "X-Correlation-Id"

// WizardAPI is the session service as seen by the HTTP layer.
type WizardAPI interface {
	StartSession(ctx context.Context, language string) (usecase.StartOutput, error)
	AdvanceStep(ctx context.Context, in usecase.StepInput) (usecase.StepOutput, error)
	GetSession(ctx context.Context, sessionID string) (domain.Conversation, error)
	ListRecentSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error)
	EndSession(ctx context.Context, sessionID string) (domain.Conversation, error)
}

type Handler struct {
	svc WizardAPI
}

type startRequest struct {
	Language string `json:"language"`
}

type startResponse struct {
	SessionID   string        `json:"sessionId"`
	Message     string        `json:"message"`
	CurrentStep domain.Step   `json:"currentStep"`
	Status      domain.Status `json:"status"`
}

type stepRequest struct {
	Message string          `json:"message"`
	Action  string          `json:"action"`
	Data    wizard.StepData `json:"data"`
}

type stepResponse struct {
	SessionID       string               `json:"sessionId"`
	Message         string               `json:"message"`
	CurrentStep     domain.Step          `json:"currentStep"`
	Status          domain.Status        `json:"status"`
	CollectedData   domain.CollectedData `json:"collectedData"`
	Outcome         wizard.Outcome       `json:"outcome"`
	ValidationError string               `json:"validationError,omitempty"`
	Highlights      []string             `json:"highlights,omitempty"`
	Usage           domain.TokenUsage    `json:"usage"`
	Provider        string               `json:"provider,omitempty"`
}

type listResponse struct {
	Sessions []domain.SessionSummary `json:"sessions"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func NewHandler(svc WizardAPI) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: wizard service must not be nil")
	}
	return &Handler{svc: svc}, nil
}

// Handle routes an API Gateway proxy request to the session service.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	corrID := correlationID(req.Headers)
	ctx = observability.WithCorrelationID(ctx, corrID)

	resp := h.route(ctx, req)
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers["Content-Type"] = "application/json"
	resp.Headers[headerCorrelationID] = corrID

	observability.LoggerFromContext(ctx).Info("request handled",
		"method", req.HTTPMethod,
		"path", req.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (h *Handler) route(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	parts := strings.Split(strings.Trim(req.Path, "/"), "/")
	if parts[0] != "sessions" || len(parts) > 3 || (len(parts) == 3 && parts[2] != "steps" && parts[2] != "end") {
		return writeError(http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "route_not_found"})
	}
	method := strings.ToUpper(req.HTTPMethod)

	switch {
	case len(parts) == 1 && method == http.MethodPost:
		return h.start(ctx, req)
	case len(parts) == 1 && method == http.MethodGet:
		return h.list(ctx, req)
	case len(parts) == 2 && method == http.MethodGet:
		return h.get(ctx, parts[1])
	case len(parts) == 3 && parts[2] == "steps" && method == http.MethodPost:
		return h.step(ctx, parts[1], req)
	case len(parts) == 3 && parts[2] == "end" && method == http.MethodPost:
		return h.end(ctx, parts[1])
	}
	return writeError(http.StatusMethodNotAllowed, errorResponse{Error: "METHOD_NOT_ALLOWED", Reason: method})
}

func (h *Handler) start(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	var body startRequest
	if err := decodeBody(req.Body, &body); err != nil {
		return invalidBody()
	}
	out, err := h.svc.StartSession(ctx, body.Language)
	if err != nil {
		return h.fail(ctx, err)
	}
	return writeJSON(http.StatusCreated, startResponse{
		SessionID:   out.SessionID,
		Message:     out.FirstMessage,
		CurrentStep: out.Conversation.CurrentStep,
		Status:      out.Conversation.Status,
	})
}

func (h *Handler) list(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	limit := 0
	if raw := strings.TrimSpace(req.QueryStringParameters["limit"]); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return writeError(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_limit"})
		}
		limit = n
	}
	sessions, err := h.svc.ListRecentSessions(ctx, limit)
	if err != nil {
		return h.fail(ctx, err)
	}
	if sessions == nil {
		sessions = []domain.SessionSummary{}
	}
	return writeJSON(http.StatusOK, listResponse{Sessions: sessions})
}

func (h *Handler) get(ctx context.Context, sessionID string) events.APIGatewayProxyResponse {
	conv, err := h.svc.GetSession(ctx, sessionID)
	if err != nil {
		return h.fail(ctx, err)
	}
	return writeJSON(http.StatusOK, conv)
}

func (h *Handler) step(ctx context.Context, sessionID string, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	var body stepRequest
	if err := decodeBody(req.Body, &body); err != nil {
		return invalidBody()
	}
	out, err := h.svc.AdvanceStep(ctx, usecase.StepInput{
		SessionID: sessionID,
		Message:   body.Message,
		Action:    body.Action,
		Data:      body.Data,
	})
	if err != nil {
		var ue *usecase.Error
		if errors.As(err, &ue) && ue.Code == usecase.ErrorGenerationFailed {
			observability.LoggerFromContext(ctx).Warn("generation failed", "session_id", sessionID, "err", err)
			return writeError(http.StatusBadGateway, errorResponse{
				Error:     string(ue.Code),
				Reason:    ue.Reason,
				Message:   out.Message,
				Retryable: true,
			})
		}
		return h.fail(ctx, err)
	}
	return writeJSON(http.StatusOK, stepResponse{
		SessionID:       out.SessionID,
		Message:         out.Message,
		CurrentStep:     out.CurrentStep,
		Status:          out.Status,
		CollectedData:   out.Data,
		Outcome:         out.Outcome,
		ValidationError: out.ValidationError,
		Highlights:      out.Highlights,
		Usage:           out.Usage,
		Provider:        out.Provider,
	})
}

func (h *Handler) end(ctx context.Context, sessionID string) events.APIGatewayProxyResponse {
	conv, err := h.svc.EndSession(ctx, sessionID)
	if err != nil {
		return h.fail(ctx, err)
	}
	return writeJSON(http.StatusOK, conv)
}

func (h *Handler) fail(ctx context.Context, err error) events.APIGatewayProxyResponse {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		observability.LoggerFromContext(ctx).Error("unexpected error", "err", err)
		return writeError(http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)})
	}
	status := statusFor(ue.Code)
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(ctx).Error("request failed", "code", ue.Code, "reason", ue.Reason, "err", ue.Err)
	}
	return writeError(status, errorResponse{Error: string(ue.Code), Reason: ue.Reason, Retryable: ue.Retryable()})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorConflict:
		return http.StatusConflict
	case usecase.ErrorGenerationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(raw string, v any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

func invalidBody() events.APIGatewayProxyResponse {
	return writeError(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"})
}

func writeJSON(status int, v any) events.APIGatewayProxyResponse {
	b, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: `{"error":"INTERNAL_ERROR"}`}
	}
	return events.APIGatewayProxyResponse{StatusCode: status, Body: string(b)}
}

func writeError(status int, e errorResponse) events.APIGatewayProxyResponse {
	return writeJSON(status, e)
}

// correlationID returns the caller's X-Correlation-Id, matched
// case-insensitively, or a fresh one.
func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, headerCorrelationID) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}
