package auth

import (
	"context"
	"net/http"
	"strings"
)

// Middleware attaches the asserted user to the request context. Requests
// without credentials continue unauthenticated; scripts decide what to do
// with them via req:getUser().
func (m *Middleware) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Dev bypass for local testing (NEVER enable in prod)
			if m.devBypass {
				if u := devUserFromHeaders(r); u.Username != "" {
					ctx := context.WithValue(r.Context(), userCtxKey, u)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			raw := bearerToken(r)
			if raw == "" {
				if ac, _ := r.Cookie(m.assertCookieName); ac != nil {
					raw = ac.Value
				}
			}
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			u, err := m.validateAssertion(raw)
			if err != nil || u.Username == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), userCtxKey, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
