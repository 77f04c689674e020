package middleware

import (
	"net/http"
	"strings"
)

// CORS allows the LMS frontend to call the API from the browser. The
// sesskey travels in X-Sesskey, so it is listed as an allowed header.
// allowedOrigins is a comma separated list; "*" or empty allows any origin.
func CORS(allowedOrigins string) func(http.Handler) http.Handler {
	allowAny, allowed := parseOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAny || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join([]string{
					http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
				}, ", "))
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-Id, X-Sesskey")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseOrigins(raw string) (bool, map[string]bool) {
	allowed := make(map[string]bool)
	for _, origin := range strings.Split(raw, ",") {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			return true, nil
		default:
			allowed[strings.TrimRight(origin, "/")] = true
		}
	}
	return len(allowed) == 0, allowed
}
