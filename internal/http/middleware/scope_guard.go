package middleware

import (
	"net/http"

	"github.com/noah-isme/backend-telco/internal/tenant"
)

// RequireScope ensures a company scope exists in the request context before
// any tax endpoint runs.
func RequireScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := tenant.From(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"MISSING_SCOPE","message":"company scope header is required"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
