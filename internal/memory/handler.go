package memory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rsm-platform/rsm/internal/api"
	"github.com/rsm-platform/rsm/internal/auth"
)

// ContextRequest is the body of the context endpoint.
type ContextRequest struct {
	Message string `json:"message" validate:"required,max=8000"`
}

// Handler handles memory HTTP endpoints.
type Handler struct {
	retriever *Retriever
	validate  *validator.Validate
}

func NewHandler(retriever *Retriever) *Handler {
	return &Handler{
		retriever: retriever,
		validate:  validator.New(),
	}
}

// Context returns the conversation context for a new user message.
func (h *Handler) Context(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req ContextRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	out, err := h.retriever.RetrieveContext(r.Context(), Request{
		OrganizationID: claims.OrganizationID,
		SessionID:      chi.URLParam(r, "sessionID"),
		Message:        req.Message,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			api.HandleError(w, api.NewValidationError(err.Error()))
			return
		}
		// A tenant database that cannot answer in time is transient.
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("retrieving memory context", "error", err)
			api.HandleError(w, api.ErrServiceUnavailable)
			return
		}
		slog.Error("retrieving memory context", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, out)
}
