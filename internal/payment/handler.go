package payment

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/transport"
)

const SesskeyHeader = "X-Sesskey"

type SesskeyIssuer interface {
	Issue(userID, sessionID string) string
}

type CheckoutConfig struct {
	Price          decimal.Decimal
	Currency       string
	PayPalClientID string
	ConfirmURL     string
}

type Handler struct {
	*transport.BaseHandler
	Gate           GateAPI
	Receiver       *Receiver
	Sesskeys       SesskeyIssuer
	CheckoutConfig CheckoutConfig
}

func NewHandler(gate GateAPI, receiver *Receiver, sesskeys SesskeyIssuer, checkout CheckoutConfig, logger *slog.Logger) *Handler {
	if checkout.ConfirmURL == "" {
		checkout.ConfirmURL = "/api/v1/payment/confirm"
	}
	return &Handler{
		BaseHandler:    transport.NewBaseHandler(logger),
		Gate:           gate,
		Receiver:       receiver,
		Sesskeys:       sesskeys,
		CheckoutConfig: checkout,
	}
}

func callerFrom(r *http.Request) Caller {
	return Caller{
		UserID:    internal.UserIDFromContext(r.Context()),
		SessionID: internal.SessionIDFromContext(r.Context()),
	}
}

// Confirm handles POST /api/v1/payment/confirm with a JSON or form body.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeConfirmation(r)
	if err != nil {
		h.Logger.WarnContext(r.Context(), "Confirm: failed to parse request body", "error", err)
		result := errorResult(err)
		h.WriteJSON(w, result.HTTPStatus, result)
		return
	}

	sesskey := r.Header.Get(SesskeyHeader)
	if sesskey == "" {
		sesskey = req.Sesskey
	}

	result := h.Receiver.Receive(r.Context(), callerFrom(r), sesskey, req)
	if result.HTTPStatus == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	h.WriteJSON(w, result.HTTPStatus, result)
}

func (h *Handler) decodeConfirmation(r *http.Request) (ConfirmationRequest, error) {
	var req ConfirmationRequest
	if transport.IsJSONRequest(r) {
		if err := h.DecodeJSON(r, &req); err != nil {
			return req, err
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, internal.NewValidationError("invalid form body", internal.ErrCodeValidationFailed).WithCause(err)
	}

	req.ExternalPaymentID = r.PostForm.Get("external_payment_id")
	req.Status = r.PostForm.Get("status")
	req.Currency = r.PostForm.Get("currency")
	req.Sesskey = r.PostForm.Get("sesskey")
	if raw := strings.TrimSpace(r.PostForm.Get("amount")); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return req, internal.NewValidationFieldError("amount", "amount must be a decimal number", internal.ErrCodeInvalidAmount)
		}
		req.Amount = &amount
	}
	return req, nil
}

// Entitlement handles GET /api/v1/payment/entitlement
func (h *Handler) Entitlement(w http.ResponseWriter, r *http.Request) {
	userID := internal.UserIDFromContext(r.Context())
	if userID == "" {
		h.HandleError(w, internal.ErrAuthenticationFailed)
		return
	}

	entitled, err := h.Gate.IsEntitled(r.Context(), userID)
	if err != nil {
		h.HandleServiceError(w, r, "is entitled", err)
		return
	}

	h.WriteJSON(w, http.StatusOK, EntitlementResponse{UserID: userID, Entitled: entitled})
}

// Checkout handles POST /api/v1/payment/checkout. It records the intent to
// pay and hands the browser what it needs to render the processor button.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if caller.UserID == "" {
		h.HandleError(w, internal.ErrAuthenticationFailed)
		return
	}

	record, err := h.Gate.Initialize(r.Context(), caller.UserID)
	if err != nil {
		h.HandleServiceError(w, r, "initialize", err)
		return
	}

	entitled, err := h.Gate.IsEntitled(r.Context(), caller.UserID)
	if err != nil {
		h.HandleServiceError(w, r, "is entitled", err)
		return
	}

	h.WriteJSON(w, http.StatusOK, CheckoutResponse{
		Status:         record.Status,
		Entitled:       entitled,
		Price:          h.CheckoutConfig.Price.StringFixed(2),
		Currency:       h.CheckoutConfig.Currency,
		DisplayPrice:   DisplayPrice(h.CheckoutConfig.Price, h.CheckoutConfig.Currency),
		PayPalClientID: h.CheckoutConfig.PayPalClientID,
		Sesskey:        h.Sesskeys.Issue(caller.UserID, caller.SessionID),
		ConfirmURL:     h.CheckoutConfig.ConfirmURL,
	})
}

// Status handles GET /api/v1/payment/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID := internal.UserIDFromContext(r.Context())
	if userID == "" {
		h.HandleError(w, internal.ErrAuthenticationFailed)
		return
	}

	record, err := h.Gate.Status(r.Context(), userID)
	if err != nil {
		h.HandleServiceError(w, r, "status", err)
		return
	}
	h.WriteJSON(w, http.StatusOK, record)
}

// GetUserPayment handles GET /api/v1/admin/payments/{userID}
func (h *Handler) GetUserPayment(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		h.HandleError(w, internal.NewValidationFieldError("userID", "user id is required", internal.ErrCodeValidationFailed))
		return
	}

	record, err := h.Gate.Status(r.Context(), userID)
	if err != nil {
		h.HandleServiceError(w, r, "admin status", err)
		return
	}
	if record.Status == StatusNone && record.CreatedAt.IsZero() {
		h.HandleError(w, internal.ErrPaymentNotFound)
		return
	}
	h.WriteJSON(w, http.StatusOK, record)
}
