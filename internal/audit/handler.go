package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Store Store
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		Store:       store,
	}
}

type ListResponse struct {
	Entries []*Entry `json:"entries"`
}

// ListConfirmations handles GET /api/v1/admin/payments/confirmations?user_id=&limit=
func (h *Handler) ListConfirmations(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.HandleError(w, internal.NewValidationFieldError("limit", "limit must be a positive integer", internal.ErrCodeValidationFailed))
			return
		}
		limit = parsed
	}

	ctx, cancel := internal.WithTimeout(r.Context(), 0)
	defer cancel()

	var (
		entries []*Entry
		err     error
	)
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		entries, err = h.Store.ListByUser(ctx, userID, limit)
	} else {
		entries, err = h.Store.ListRecent(ctx, limit)
	}
	if err != nil {
		h.HandleServiceError(w, r, "list confirmations", internal.ErrStoreUnavailable.WithCause(err))
		return
	}

	if entries == nil {
		entries = []*Entry{}
	}
	h.WriteJSON(w, http.StatusOK, ListResponse{Entries: entries})
}
