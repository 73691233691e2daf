package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kha997/zenanotify/internal/db"
)

// ListDeadLetteredDeliveries handles GET /v1/deliveries/dead-letter.
// Operational endpoint for inspecting channel sends that exhausted their
// retries.
func (h *Handler) ListDeadLetteredDeliveries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	deliveries, err := h.repo.ListDeadLetteredDeliveries(ctx, limit, offset)
	if err != nil {
		h.logger.Error("failed to list dead-lettered deliveries", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list dead-lettered deliveries", "")
		return
	}

	if deliveries == nil {
		deliveries = []*db.Delivery{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"deliveries": deliveries})
}

// RetryDelivery handles POST /v1/deliveries/{id}/retry.
func (h *Handler) RetryDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid delivery ID", "ID must be a valid UUID")
		return
	}

	delivery, err := h.repo.RetryDeadLettered(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Delivery not found or not dead-lettered", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to retry delivery", zap.Error(err), zap.String("delivery_id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to retry delivery", "")
		return
	}

	h.writeJSON(w, http.StatusOK, delivery)
}

// DiscardDelivery handles POST /v1/deliveries/{id}/discard.
func (h *Handler) DiscardDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid delivery ID", "ID must be a valid UUID")
		return
	}

	err = h.repo.DiscardDeadLettered(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Delivery not found or not dead-lettered", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to discard delivery", zap.Error(err), zap.String("delivery_id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to discard delivery", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
