package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthConfig selects the accepted credentials. With both fields empty,
// authentication is disabled.
type AuthConfig struct {
	APIKey    string // operator key, sent as a Bearer token or X-API-Key
	JWTSecret string // HS256 secret for participant tokens
}

// publicPaths bypass authentication.
var publicPaths = map[string]bool{
	"/api/health": true,
}

// Auth returns middleware that authenticates API requests and stores the
// caller Identity in the request context. The operator API key maps to the
// operator role; a valid token maps to its subject and role.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// If no credentials are configured, authentication is disabled.
			if (cfg.APIKey == "" && cfg.JWTSecret == "") || publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing authentication token")
				return
			}

			// Constant-time comparison to prevent timing attacks.
			if cfg.APIKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(cfg.APIKey)) == 1 {
				recordSubject(r.Context(), RoleOperator)
				ctx := WithIdentity(r.Context(), Identity{Subject: RoleOperator, Role: RoleOperator})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if cfg.JWTSecret != "" {
				if id, err := ParseToken(cfg.JWTSecret, token); err == nil {
					recordSubject(r.Context(), id.Subject)
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
					return
				}
			}

			writeUnauthorized(w, "invalid authentication token")
		})
	}
}

// extractToken looks for a token in the Authorization header (Bearer scheme),
// in the X-API-Key header, or in the token query parameter of a WebSocket
// upgrade (browsers cannot set headers there).
func extractToken(r *http.Request) string {
	// Check Authorization: Bearer <token>
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// Check X-API-Key header.
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}

	if r.URL.Path == "/ws" {
		return strings.TrimSpace(r.URL.Query().Get("token"))
	}

	return ""
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
