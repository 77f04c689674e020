package payment

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/audit"
	gatewaytypes "github.com/frahmantamala/payment-gate/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/payment-gate/pkg/logger"
)

// DefaultSuccessStatuses are the processor statuses that count as a paid order.
var DefaultSuccessStatuses = []string{"COMPLETED", "CAPTURED"}

type SesskeyVerifier interface {
	Verify(userID, sessionID, key string) bool
}

type OrderVerifier interface {
	VerifyOrder(ctx context.Context, req gatewaytypes.VerificationRequest) error
}

type AuditRecorder interface {
	Record(entry *audit.Entry)
}

// Caller is the authenticated session a confirmation arrives on.
type Caller struct {
	UserID    string
	SessionID string
}

type ReceiverConfig struct {
	SuccessStatuses []string
}

// Receiver validates confirmations relayed by the browser before they reach
// the gate. The user always comes from the session, never from the payload.
type Receiver struct {
	gate          GateAPI
	sesskeys      SesskeyVerifier
	verifier      OrderVerifier
	recorder      AuditRecorder
	successTokens []string
	logger        *slog.Logger
}

func NewReceiver(gate GateAPI, sesskeys SesskeyVerifier, config ReceiverConfig, logger *slog.Logger) *Receiver {
	tokens := config.SuccessStatuses
	if len(tokens) == 0 {
		tokens = DefaultSuccessStatuses
	}
	return &Receiver{
		gate:          gate,
		sesskeys:      sesskeys,
		successTokens: tokens,
		logger:        logger,
	}
}

// WithOrderVerifier cross-checks every confirmation with the processor.
func (r *Receiver) WithOrderVerifier(v OrderVerifier) *Receiver {
	r.verifier = v
	return r
}

func (r *Receiver) WithAuditRecorder(rec AuditRecorder) *Receiver {
	r.recorder = rec
	return r
}

// Receive never returns a Go error; every outcome is a Result. HTTPStatus
// tells the transport how to frame it.
func (r *Receiver) Receive(ctx context.Context, caller Caller, sesskey string, req ConfirmationRequest) Result {
	log := logger.FromOr(ctx, r.logger).With(
		"user_id", caller.UserID,
		"external_payment_id", req.ExternalPaymentID,
		"processor_status", req.Status)

	result := r.receive(ctx, log, caller, sesskey, req)
	r.audit(caller, req, result)
	return result
}

func (r *Receiver) receive(ctx context.Context, log *slog.Logger, caller Caller, sesskey string, req ConfirmationRequest) Result {
	if caller.UserID == "" {
		log.Warn("confirmation without an authenticated user")
		return errorResult(internal.ErrAuthenticationFailed)
	}
	if !r.sesskeys.Verify(caller.UserID, caller.SessionID, strings.TrimSpace(sesskey)) {
		log.Warn("confirmation rejected, sesskey mismatch")
		return errorResult(internal.ErrInvalidSesskey)
	}

	if err := req.Validate(); err != nil {
		log.Info("confirmation rejected, malformed payload", "error", err)
		return errorResult(err)
	}

	outcome := req.Outcome(r.successTokens)

	if r.verifier != nil && outcome == OutcomeSuccess {
		err := r.verifier.VerifyOrder(ctx, gatewaytypes.VerificationRequest{
			OrderID:  req.ExternalPaymentID,
			Status:   string(gatewaytypes.OrderStatusCompleted),
			Amount:   *req.Amount,
			Currency: req.Currency,
		})
		if err != nil {
			log.Warn("confirmation rejected by processor verification", "error", err)
			return errorResult(err)
		}
	}

	record, err := r.gate.Confirm(ctx, Confirmation{
		UserID:            caller.UserID,
		ExternalPaymentID: req.ExternalPaymentID,
		Amount:            *req.Amount,
		Currency:          req.Currency,
		Outcome:           outcome,
		ProcessorStatus:   req.Status,
	})
	if err != nil {
		return errorResult(err)
	}

	if record.Status != StatusCompleted {
		return Result{
			Status:     ResultError,
			Message:    "payment was not completed",
			Payment:    record,
			HTTPStatus: http.StatusOK,
		}
	}

	return Result{
		Status:     ResultSuccess,
		Message:    "payment completed",
		Payment:    record,
		HTTPStatus: http.StatusOK,
	}
}

func (r *Receiver) audit(caller Caller, req ConfirmationRequest, result Result) {
	if r.recorder == nil || caller.UserID == "" {
		return
	}

	entry := &audit.Entry{
		UserID:            caller.UserID,
		ExternalPaymentID: truncate(strings.TrimSpace(req.ExternalPaymentID), 128),
		ProcessorStatus:   truncate(strings.TrimSpace(req.Status), 32),
		Currency:          truncate(strings.ToUpper(strings.TrimSpace(req.Currency)), 3),
		Result:            result.Status,
		ErrorCode:         string(result.Code),
		Message:           result.Message,
	}
	if req.Amount != nil {
		entry.Amount = decimal.NewNullDecimal(*req.Amount)
	}
	r.recorder.Record(entry)
}

// errorResult frames a failure. Business rejections are a 200 with
// status error; only malformed, unauthenticated and unavailable calls change
// the HTTP status.
func errorResult(err error) Result {
	appErr, ok := internal.IsAppError(err)
	if !ok {
		appErr = internal.NewInternalError("internal server error", err)
	}

	status := http.StatusOK
	switch {
	case errors.Is(appErr, internal.ErrInvalidConfirmation),
		errors.Is(appErr, internal.ErrProcessorMismatch),
		appErr.Type == internal.ErrorTypeConflict:
	case appErr.Type == internal.ErrorTypeValidation:
		status = http.StatusBadRequest
	default:
		status = appErr.StatusCode
	}

	return Result{
		Status:     ResultError,
		Message:    appErr.Message,
		Code:       appErr.Code,
		HTTPStatus: status,
	}
}

// truncate caps s at max bytes without splitting a rune, so the result is
// always storable as text.
func truncate(s string, max int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
