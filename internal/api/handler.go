// Package api exposes the REST surface of the notification gateway.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kha997/zenanotify/internal/db"
	"github.com/kha997/zenanotify/internal/event"
)

// Repository defines the database operations the handlers use.
type Repository interface {
	GetNotification(ctx context.Context, id, userID uuid.UUID) (*db.Notification, error)
	ListNotificationsByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*db.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)

	UpsertRule(ctx context.Context, rule *db.NotificationRule) error
	ListRulesByUser(ctx context.Context, userID uuid.UUID) ([]*db.NotificationRule, error)
	SetRuleEnabled(ctx context.Context, id, userID uuid.UUID, enabled bool) error
	DeleteRule(ctx context.Context, id, userID uuid.UUID) error

	ListDeadLetteredDeliveries(ctx context.Context, limit, offset int) ([]*db.Delivery, error)
	RetryDeadLettered(ctx context.Context, id uuid.UUID) (*db.Delivery, error)
	DiscardDeadLettered(ctx context.Context, id uuid.UUID) error
}

// Notifier is the pipeline entry point the event ingest endpoint calls.
type Notifier interface {
	EvaluateAndNotify(ctx context.Context, ev *event.Event) ([]uuid.UUID, error)
}

// UnreadCache is the optional redis-backed unread counter.
type UnreadCache interface {
	Get(ctx context.Context, userID uuid.UUID) (int64, bool, error)
	Set(ctx context.Context, userID uuid.UUID, count int64) error
	Invalidate(ctx context.Context, userID uuid.UUID)
}

// ErrorResponse represents an error in problem+json format.
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers.
type Handler struct {
	logger   *zap.Logger
	repo     Repository
	notifier Notifier
	unread   UnreadCache // nil if Redis not configured
}

// NewHandler creates a new API handler. unread may be nil.
func NewHandler(logger *zap.Logger, repo Repository, notifier Notifier, unread UnreadCache) *Handler {
	return &Handler{
		logger:   logger,
		repo:     repo,
		notifier: notifier,
		unread:   unread,
	}
}

// eventRequest is the ingest body for POST /v1/events.
type eventRequest struct {
	EventKey      string         `json:"event_key"`
	ActorID       string         `json:"actor_id"`
	ProjectID     *string        `json:"project_id,omitempty"`
	EntityID      string         `json:"entity_id"`
	ChangedFields []string       `json:"changed_fields,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

// eventResponse reports the notification rows the event produced.
type eventResponse struct {
	NotificationIDs []string `json:"notification_ids"`
}

// IngestEvent handles POST /v1/events. Domain services post their events
// here; the response is best-effort, so a malformed event still returns
// 202 with an empty id list (and a logged warning) rather than failing
// the caller's business action.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	ev := &event.Event{
		Key:           req.EventKey,
		ChangedFields: req.ChangedFields,
		Data:          req.Data,
	}
	// IDs parse leniently: bad UUIDs leave the zero value and fall out as
	// a validation drop inside the pipeline, matching its fire-and-forget
	// contract.
	ev.ActorID, _ = uuid.Parse(req.ActorID)
	ev.EntityID, _ = uuid.Parse(req.EntityID)
	if req.ProjectID != nil {
		if pid, err := uuid.Parse(*req.ProjectID); err == nil {
			ev.ProjectID = &pid
		}
	}

	ids, err := h.notifier.EvaluateAndNotify(ctx, ev)
	if err != nil {
		h.logger.Error("event processing failed",
			zap.Error(err),
			zap.String("event_key", req.EventKey),
		)
		h.writeError(w, http.StatusInternalServerError, "pipeline_error", "Failed to process event", "")
		return
	}

	resp := eventResponse{NotificationIDs: make([]string, 0, len(ids))}
	for _, id := range ids {
		resp.NotificationIDs = append(resp.NotificationIDs, id.String())
	}

	h.writeJSON(w, http.StatusAccepted, resp)
}

// ListNotifications handles GET /v1/notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	notifications, err := h.repo.ListNotificationsByUser(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		h.logger.Error("failed to list notifications", zap.Error(err), zap.String("user_id", userID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list notifications", "")
		return
	}

	if notifications == nil {
		notifications = []*db.Notification{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

// GetNotification handles GET /v1/notifications/{id}.
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification ID", "ID must be a valid UUID")
		return
	}

	notif, err := h.repo.GetNotification(ctx, id, userID)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to get notification", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get notification", "")
		return
	}

	h.writeJSON(w, http.StatusOK, notif)
}

// MarkRead handles POST /v1/notifications/{id}/read. Idempotent: marking
// an already-read notification succeeds without touching read_at.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification ID", "ID must be a valid UUID")
		return
	}

	marked, err := h.repo.MarkRead(ctx, id, userID)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to mark notification read", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to mark notification read", "")
		return
	}

	if marked && h.unread != nil {
		h.unread.Invalidate(ctx, userID)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"marked": marked})
}

// MarkAllRead handles POST /v1/notifications/read-all.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	count, err := h.repo.MarkAllRead(ctx, userID)
	if err != nil {
		h.logger.Error("failed to mark all read", zap.Error(err), zap.String("user_id", userID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to mark all read", "")
		return
	}

	if h.unread != nil {
		h.unread.Invalidate(ctx, userID)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"marked": count})
}

// UnreadCount handles GET /v1/notifications/unread-count. Served from the
// redis cache when warm; otherwise from Postgres, warming the cache.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	if h.unread != nil {
		if count, hit, err := h.unread.Get(ctx, userID); err == nil && hit {
			h.writeJSON(w, http.StatusOK, map[string]any{"unread": count})
			return
		}
	}

	count, err := h.repo.UnreadCount(ctx, userID)
	if err != nil {
		h.logger.Error("failed to count unread", zap.Error(err), zap.String("user_id", userID.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to count unread notifications", "")
		return
	}

	if h.unread != nil {
		if err := h.unread.Set(ctx, userID, count); err != nil {
			h.logger.Debug("failed to warm unread cache", zap.Error(err))
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"unread": count})
}

// requireUser extracts the authenticated user from the X-User-ID header.
// Authentication itself happens at the platform edge; the gateway trusts
// the header the edge injects.
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil || userID == uuid.Nil {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated", "Missing or invalid X-User-ID header", "")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
