package daemon

import (
	"net/http"
	"strings"
)

// bearerAuth validates "Authorization: Bearer <token>" headers. An empty
// configured token disables authentication for the wrapped routes.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientID extracts the caller identity from the X-Client-ID header.
func clientID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get("X-Client-ID"))
	if id == "" {
		return "anonymous"
	}
	return id
}
