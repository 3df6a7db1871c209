package httpapi

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/seismonet/pipeline/internal/config"
)

// authMiddleware validates a bearer JWT against the configured issuer,
// audience, and HMAC key. An empty HMACKey disables auth entirely, for
// local development and the genmock fixture server.
func authMiddleware(cfg config.AuthConfig, next http.Handler) http.Handler {
	if cfg.HMACKey == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		tokenStr, ok := strings.CutPrefix(authz, "Bearer ")
		if !ok || tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims := jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
			return []byte(cfg.HMACKey), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
			writeError(w, http.StatusUnauthorized, "unexpected token issuer")
			return
		}
		if cfg.Audience != "" && !audienceList(claims.Audience).Has(cfg.Audience) {
			writeError(w, http.StatusUnauthorized, "unexpected token audience")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Has reports whether aud contains target; jwt.ClaimStrings is already a
// []string under the hood, this is a small readability helper.
type audienceList []string

func (a audienceList) Has(target string) bool {
	for _, v := range a {
		if v == target {
			return true
		}
	}
	return false
}
