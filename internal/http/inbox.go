// Package http exposes the orchestration operations over a JSON API.
// Routing here is thin: every handler validates input, calls one
// orchestrator or store operation, and maps the error taxonomy onto
// status codes.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/inboxpilot/inboxd/internal/delivery"
	"github.com/inboxpilot/inboxd/internal/escalation"
	"github.com/inboxpilot/inboxd/internal/orchestrator"
	"github.com/inboxpilot/inboxd/internal/store"
)

// InboxHandler serves the conversation automation API.
type InboxHandler struct {
	orch        *orchestrator.Orchestrator
	escalations *escalation.Manager
	stores      *store.Stores
	token       string
	limiter     *WebhookRateLimiter
	logger      *slog.Logger
}

func NewInboxHandler(orch *orchestrator.Orchestrator, escalations *escalation.Manager, stores *store.Stores, token string, limiter *WebhookRateLimiter, logger *slog.Logger) *InboxHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InboxHandler{
		orch:        orch,
		escalations: escalations,
		stores:      stores,
		token:       token,
		limiter:     limiter,
		logger:      logger.With("component", "http"),
	}
}

// RegisterRoutes registers all inbox routes on the given mux.
func (h *InboxHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/conversations", h.auth(h.handleCreateConversation))
	mux.HandleFunc("POST /v1/conversations/{id}/inbound", h.auth(h.handleInbound))
	mux.HandleFunc("POST /v1/conversations/{id}/ai-reply", h.auth(h.handleAIReply))
	mux.HandleFunc("POST /v1/conversations/{id}/reply", h.auth(h.handleHumanReply))
	mux.HandleFunc("POST /v1/tickets/{id}/resolve", h.auth(h.handleResolveTicket))
	mux.HandleFunc("GET /v1/workspaces/{id}/tickets", h.auth(h.handleListTickets))
	mux.HandleFunc("GET /v1/workspaces/{id}/reports/daily", h.auth(h.handleDailyReport))
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}

func (h *InboxHandler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" && extractBearerToken(r) != h.token {
			writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		next(w, r)
	}
}

func (h *InboxHandler) pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_id", "invalid id in path")
		return uuid.Nil, false
	}
	return id, true
}

func (h *InboxHandler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkspaceID    uuid.UUID `json:"workspaceId"`
		PlatformUserID string    `json:"platformUserId"`
		PlatformPageID string    `json:"platformPageId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON: "+err.Error())
		return
	}
	if req.WorkspaceID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "bad_request", "workspaceId is required")
		return
	}

	conv := &store.ConversationData{
		WorkspaceID:    req.WorkspaceID,
		PlatformUserID: req.PlatformUserID,
		PlatformPageID: req.PlatformPageID,
	}
	if err := h.stores.Conversations.Create(r.Context(), conv); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *InboxHandler) handleInbound(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(id.String()) {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many inbound messages")
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "text is required")
		return
	}

	msg, err := h.orch.HandleInboundCustomerMessage(r.Context(), id, req.Text)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *InboxHandler) handleAIReply(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}

	outcome, err := h.orch.GenerateAndSendAIReply(r.Context(), id)
	if err != nil {
		h.writeOpError(w, err)
		return
	}

	resp := map[string]any{
		"message":          outcome.Message,
		"escalated":        outcome.Escalated,
		"escalationReason": outcome.EscalationReason,
	}
	if outcome.Delivery != nil && outcome.Delivery.Outcome == delivery.DeliveredNotPersisted {
		resp["success"] = true
		resp["warning"] = outcome.Delivery.Warning
		resp["platformMessageId"] = outcome.Delivery.PlatformMessageID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *InboxHandler) handleHumanReply(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "text is required")
		return
	}

	msg, res, err := h.orch.SendHumanReply(r.Context(), id, req.Text)
	if err != nil {
		h.writeOpError(w, err)
		return
	}

	resp := map[string]any{"message": msg}
	if res != nil && res.Outcome == delivery.DeliveredNotPersisted {
		resp["success"] = true
		resp["warning"] = res.Warning
		resp["platformMessageId"] = res.PlatformMessageID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *InboxHandler) handleResolveTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}

	ticket, err := h.orch.ResolveEscalation(r.Context(), id)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *InboxHandler) handleListTickets(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}

	tickets, err := h.escalations.ListWorkspaceTickets(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

func (h *InboxHandler) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathUUID(w, r)
	if !ok {
		return
	}

	day := r.URL.Query().Get("date")
	if day == "" {
		day = store.DayOf(time.Now())
	}

	report, err := h.stores.Reports.GetDaily(r.Context(), id, day)
	if errors.Is(err, store.ErrNotFound) {
		// No activity that day: an all-zero report, not a 404.
		report = &store.DailyReportData{WorkspaceID: id, Day: day}
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	resp := map[string]any{"report": report}
	if report.FirstResponseTimeCount > 0 {
		resp["avgFirstResponseMs"] = report.FirstResponseTimeSumMs / report.FirstResponseTimeCount
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *InboxHandler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeOpError maps the orchestrator error taxonomy onto HTTP statuses:
// config/input problems are 4xx, upstream failures are 502 with a code
// telling the operator which side to look at.
func (h *InboxHandler) writeOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, orchestrator.ErrAutoReplyDisabled):
		writeError(w, http.StatusConflict, "auto_reply_disabled", err.Error())
	case errors.Is(err, orchestrator.ErrHoldActive):
		writeError(w, http.StatusConflict, "hold_active", err.Error())
	case errors.Is(err, orchestrator.ErrGenerationFailed):
		writeError(w, http.StatusBadGateway, "generation_failed", err.Error())
	case errors.Is(err, orchestrator.ErrDeliveryFailed):
		writeError(w, http.StatusBadGateway, "delivery_failed", err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
