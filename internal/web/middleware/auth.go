package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/studydata/internal/config"
	"github.com/JonMunkholm/studydata/internal/core"
)

// APIKeyAuth returns middleware that resolves the X-API-Key header to the
// configured user and stores it in the request context as a core.Actor.
//
// If RequireAPIKey is false, requests without a key pass through as an
// anonymous actor; a key that is sent must still be valid.
func APIKeyAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	keys := cfg.ParsedAPIKeys()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				if !cfg.RequireAPIKey {
					next.ServeHTTP(w, r.WithContext(core.ContextWithActor(r.Context(), core.Actor{})))
					return
				}
				slog.Warn("auth: missing API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusUnauthorized, "missing API key", "AUTH_MISSING_KEY")
				return
			}

			key, ok := lookupAPIKey(apiKey, keys)
			if !ok {
				slog.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusForbidden, "invalid API key", "AUTH_INVALID_KEY")
				return
			}

			actor := core.Actor{Username: key.User, Staff: key.Staff}
			noteUser(r.Context(), actor.Username)
			next.ServeHTTP(w, r.WithContext(core.ContextWithActor(r.Context(), actor)))
		})
	}
}

// lookupAPIKey finds the entry for key.
// Uses constant-time comparison and checks ALL keys to prevent timing attacks.
func lookupAPIKey(key string, keys []config.APIKey) (config.APIKey, bool) {
	var match config.APIKey
	found := 0
	for _, k := range keys {
		eq := subtle.ConstantTimeCompare([]byte(key), []byte(k.Key))
		if eq == 1 && found == 0 {
			match = k
		}
		found |= eq
	}
	return match, found == 1
}

func writeAuthError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `","code":"` + code + `"}`))
}
