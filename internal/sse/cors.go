package sse

import (
	"net/http"
	"slices"
	"strings"
)

var (
	corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsHeaders = []string{"Accept", "Cache-Control", "Content-Type", "Last-Event-ID", "X-Request-ID"}
)

// cors echoes allowed origins and answers preflight requests. A "*" entry
// allows every origin; with credentials enabled the request origin is echoed
// instead of the wildcard.
type cors struct {
	origins     []string
	credentials bool
}

func (c cors) allowAll() bool {
	return slices.Contains(c.origins, "*")
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when the origin is not allowed.
func (c cors) allowOrigin(origin string) string {
	switch {
	case c.allowAll() && (origin == "" || !c.credentials):
		return "*"
	case origin == "":
		return ""
	case c.allowAll(), slices.Contains(c.origins, origin):
		return origin
	default:
		return ""
	}
}

func (c cors) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed := c.allowOrigin(r.Header.Get("Origin"))
		if allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			if allowed != "*" {
				w.Header().Add("Vary", "Origin")
			}
			if c.credentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if r.Method == http.MethodOptions {
			if allowed == "" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(corsMethods, ", "))
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(corsHeaders, ", "))
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
