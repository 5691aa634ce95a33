package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-telco/internal/common"
)

// Bearer guards admin endpoints with an HS256 bearer token.
type Bearer struct {
	Secret    []byte
	Validator TokenValidator
	Now       func() time.Time
}

// Middleware rejects requests without a valid bearer token.
func (b Bearer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(b.Secret) == 0 {
			common.JSONError(w, http.StatusServiceUnavailable, "AUTH_DISABLED", "admin authentication is not configured", nil)
			return
		}
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(raw, "Bearer ") {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "bearer token required", nil)
			return
		}
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))

		tok, err := jwt.ParseString(raw, jwt.WithKey(jwa.HS256, b.Secret), jwt.WithValidate(false))
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil)
			return
		}
		alg, err := tokenAlgorithm(raw)
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil)
			return
		}
		now := time.Now()
		if b.Now != nil {
			now = b.Now()
		}
		if err := b.Validator.Validate(tok, alg, now); err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tokenAlgorithm(raw string) (jwa.SignatureAlgorithm, error) {
	msg, err := jws.ParseString(raw)
	if err != nil {
		return "", err
	}
	sigs := msg.Signatures()
	if len(sigs) == 0 {
		return "", errors.New("auth: token has no signature")
	}
	return sigs[0].ProtectedHeaders().Algorithm(), nil
}
