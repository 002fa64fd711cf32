// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyAuth authenticates requests with a bearer API key checked against
// bcrypt hashes. Keys never appear in config or logs in the clear.
type APIKeyAuth struct {
	hashes [][]byte
	logger *slog.Logger
}

// NewAPIKeyAuth creates the middleware from bcrypt hashes of the accepted
// keys. With no hashes configured, authentication is disabled.
func NewAPIKeyAuth(hashes []string, logger *slog.Logger) *APIKeyAuth {
	byteHashes := make([][]byte, 0, len(hashes))
	for _, h := range hashes {
		if h != "" {
			byteHashes = append(byteHashes, []byte(h))
		}
	}
	return &APIKeyAuth{hashes: byteHashes, logger: logger}
}

// Enabled reports whether any keys are configured.
func (a *APIKeyAuth) Enabled() bool {
	return len(a.hashes) > 0
}

// HashAPIKey produces a bcrypt hash suitable for the config file. Keys
// longer than 72 bytes are pre-hashed with SHA-256 to fit bcrypt's input
// limit.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(normalizeKey(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func normalizeKey(key string) []byte {
	if len(key) <= 72 {
		return []byte(key)
	}
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}

// Wrap enforces authentication on all routes except health and metrics.
func (a *APIKeyAuth) Wrap(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		key := bearerToken(r)
		if key == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "missing API key", http.StatusUnauthorized)
			return
		}

		if !a.match(key) {
			a.logger.Warn("rejected API key", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			http.Error(w, "invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *APIKeyAuth) match(key string) bool {
	normalized := normalizeKey(key)
	for _, hash := range a.hashes {
		if bcrypt.CompareHashAndPassword(hash, normalized) == nil {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) {
		return ""
	}
	if subtle.ConstantTimeCompare([]byte(auth[:len(prefix)]), []byte(prefix)) != 1 {
		return ""
	}
	return auth[len(prefix):]
}
