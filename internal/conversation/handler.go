package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rsm-platform/rsm/internal/api"
	"github.com/rsm-platform/rsm/internal/auth"
)

// Handler handles conversation HTTP endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

// List returns a page of a session's messages.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	offset := 0
	limit := 50
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	sessionID := chi.URLParam(r, "sessionID")
	msgs, total, err := h.svc.List(r.Context(), claims.OrganizationID, sessionID, offset, limit)
	if err != nil {
		writeServiceError(w, "listing messages", err)
		return
	}

	api.JSONPaginated(w, http.StatusOK, msgs, total, offset, limit)
}

// Append adds messages to a session.
func (h *Handler) Append(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req AppendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	length, err := h.svc.Append(r.Context(), claims.OrganizationID, sessionID, req.Messages)
	if err != nil {
		writeServiceError(w, "appending messages", err)
		return
	}

	api.JSON(w, http.StatusCreated, map[string]int{"length": length})
}

func writeServiceError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, ErrInvalidInput) {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Warn(action, "error", err)
		api.HandleError(w, api.ErrServiceUnavailable)
		return
	}
	slog.Error(action, "error", err)
	api.HandleError(w, api.ErrInternalServer)
}
