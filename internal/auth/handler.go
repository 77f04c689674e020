package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/transport"
	"github.com/frahmantamala/payment-gate/pkg/logger"
)

type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

type Handler struct {
	*transport.BaseHandler
	Tokens   TokenValidator
	Sesskeys *SesskeyIssuer
}

func NewHandler(tokens TokenValidator, sesskeys *SesskeyIssuer, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Tokens:      tokens,
		Sesskeys:    sesskeys,
	}
}

// SessionResponse tells the frontend who it is and which sesskey to echo.
type SessionResponse struct {
	UserID      string   `json:"user_id"`
	SessionID   string   `json:"session_id"`
	Permissions []string `json:"permissions"`
	Sesskey     string   `json:"sesskey"`
}

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, internal.ErrAuthenticationFailed)
		return
	}

	perms := user.Permissions
	if perms == nil {
		perms = []string{}
	}
	h.WriteJSON(w, http.StatusOK, SessionResponse{
		UserID:      user.ID,
		SessionID:   user.SessionID,
		Permissions: perms,
		Sesskey:     h.Sesskeys.Issue(user.ID, user.SessionID),
	})
}

func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.Logger.WarnContext(r.Context(), "auth middleware: missing authorization token", "path", r.URL.Path)
			h.HandleError(w, internal.ErrAuthenticationFailed.WithMessage("missing authorization token"))
			return
		}

		claims, err := h.Tokens.ValidateToken(token)
		if err != nil {
			h.Logger.WarnContext(r.Context(), "token validation failed", "error", err)
			if errors.Is(err, ErrTokenExpired) {
				h.HandleError(w, internal.ErrTokenExpired)
				return
			}
			h.HandleError(w, internal.ErrInvalidToken)
			return
		}

		user := &User{
			ID:          claims.UserID,
			SessionID:   claims.SessionID,
			Permissions: claims.Permissions,
		}

		ctx := ContextWithUser(r.Context(), user)
		ctx = internal.ContextWithUserID(ctx, user.ID)
		ctx = internal.ContextWithSessionID(ctx, user.SessionID)
		ctx = logger.With(ctx, "user_id", user.ID)

		h.Logger.DebugContext(ctx, "auth middleware: token validated", "user_id", user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeAppError(w http.ResponseWriter, err error) {
	transport.NewBaseHandler(nil).HandleError(w, err)
}
