package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kha997/zenanotify/internal/db"
	"github.com/kha997/zenanotify/internal/event"
)

// ruleRequest is the upsert body for PUT /v1/rules. Omitting project_id
// makes the rule system-wide.
type ruleRequest struct {
	ProjectID     *string           `json:"project_id,omitempty"`
	EventKey      string            `json:"event_key"`
	Channels      []string          `json:"channels"`
	ChannelConfig *db.ChannelConfig `json:"channel_config,omitempty"`
	IsEnabled     *bool             `json:"is_enabled,omitempty"`
}

// ListRules handles GET /v1/rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	rules, err := h.repo.ListRulesByUser(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list rules", zap.Error(err), zap.String("user_id", userID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list rules", "")
		return
	}

	if rules == nil {
		rules = []*db.NotificationRule{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// UpsertRule handles PUT /v1/rules. One rule exists per
// (user, project, event_key) tuple; a second upsert replaces the stored
// channels and config rather than creating a duplicate.
func (h *Handler) UpsertRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if !event.Known(req.EventKey) {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Unknown event key", req.EventKey)
		return
	}

	if len(req.Channels) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing channels", "at least one channel is required")
		return
	}
	for _, ch := range req.Channels {
		if !db.ValidChannel(ch) {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid channel", "channel must be inapp, email, or webhook")
			return
		}
	}

	rule := &db.NotificationRule{
		UserID:    userID,
		EventKey:  req.EventKey,
		Channels:  req.Channels,
		IsEnabled: true,
	}
	if req.IsEnabled != nil {
		rule.IsEnabled = *req.IsEnabled
	}

	if req.ProjectID != nil {
		pid, err := uuid.Parse(*req.ProjectID)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid project_id", "project_id must be a valid UUID")
			return
		}
		rule.ProjectID = &pid
	}

	if req.ChannelConfig != nil {
		raw, err := json.Marshal(req.ChannelConfig)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid channel_config", err.Error())
			return
		}
		rule.ChannelConfig = raw
	}

	if err := h.repo.UpsertRule(ctx, rule); err != nil {
		h.logger.Error("failed to upsert rule", zap.Error(err), zap.String("user_id", userID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to save rule", "")
		return
	}

	h.writeJSON(w, http.StatusOK, rule)
}

// ToggleRule handles POST /v1/rules/{id}/toggle.
func (h *Handler) ToggleRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid rule ID", "ID must be a valid UUID")
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	err = h.repo.SetRuleEnabled(ctx, id, userID, req.Enabled)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Rule not found", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to toggle rule", zap.Error(err), zap.String("rule_id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to toggle rule", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"id": id.String(), "enabled": req.Enabled})
}

// DeleteRule handles DELETE /v1/rules/{id}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid rule ID", "ID must be a valid UUID")
		return
	}

	err = h.repo.DeleteRule(ctx, id, userID)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Rule not found", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete rule", zap.Error(err), zap.String("rule_id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to delete rule", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
