package rest

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/frahmantamala/payment-gate/internal"
	"github.com/frahmantamala/payment-gate/internal/transport"
)

// Headers the feature upstream trusts to identify the caller. Incoming
// copies are dropped so a client cannot set them.
const (
	HeaderForwardedUser    = "X-Forwarded-User"
	HeaderForwardedSession = "X-Forwarded-Session"
)

// NewFeatureProxy forwards requests under prefix to the recovery feature
// upstream, after authentication and the entitlement check have passed.
func NewFeatureProxy(upstream, prefix string, logger *slog.Logger) (http.Handler, error) {
	target, err := url.Parse(upstream)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid feature upstream %q", upstream)
	}

	base := transport.NewBaseHandler(logger)
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()

			tail := strings.TrimPrefix(pr.In.URL.Path, prefix)
			pr.Out.URL.Path = strings.TrimRight(target.Path, "/") + "/" + strings.TrimLeft(tail, "/")
			pr.Out.URL.RawPath = ""

			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del(HeaderForwardedUser)
			pr.Out.Header.Del(HeaderForwardedSession)
			pr.Out.Header.Set(HeaderForwardedUser, internal.UserIDFromContext(pr.In.Context()))
			pr.Out.Header.Set(HeaderForwardedSession, internal.SessionIDFromContext(pr.In.Context()))
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			base.Logger.ErrorContext(r.Context(), "feature upstream failed", "error", err, "path", r.URL.Path)
			base.HandleError(w, internal.NewExternalError("recovery feature unavailable", err))
		},
	}
	return proxy, nil
}

// FeatureLanding answers when no upstream is configured, so clients can
// still observe that the gate let them through.
type FeatureLanding struct {
	*transport.BaseHandler
}

func NewFeatureLanding(logger *slog.Logger) *FeatureLanding {
	return &FeatureLanding{BaseHandler: transport.NewBaseHandler(logger)}
}

type FeatureAccessResponse struct {
	Feature string `json:"feature"`
	UserID  string `json:"user_id"`
	Access  bool   `json:"access"`
}

func (h *FeatureLanding) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, FeatureAccessResponse{
		Feature: "failed_questions_recovery",
		UserID:  internal.UserIDFromContext(r.Context()),
		Access:  true,
	})
}
