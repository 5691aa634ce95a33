package tenant

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

// DefaultHeader is the request header carrying the company scope.
const DefaultHeader = "X-Company-ID"

// With stores the company scope on the context.
func With(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, contextKey{}, strings.TrimSpace(scope))
}

// From extracts the company scope from the context if present.
func From(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	scope, ok := ctx.Value(contextKey{}).(string)
	if !ok || scope == "" {
		return "", false
	}
	return scope, true
}

// Resolver resolves the company scope from incoming requests. The scope is
// HTTP plumbing only: handlers read it once and pass it to the engine as an
// explicit parameter.
type Resolver struct {
	HeaderName   string
	DefaultScope string
}

// Middleware injects the resolved scope into the request context.
func (r Resolver) Middleware(next http.Handler) http.Handler {
	header := r.HeaderName
	if header == "" {
		header = DefaultHeader
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		scope := strings.TrimSpace(req.Header.Get(header))
		if scope == "" {
			scope = r.DefaultScope
		}
		if scope != "" {
			req = req.WithContext(With(req.Context(), scope))
		}
		next.ServeHTTP(w, req)
	})
}
