/**
 * @description
 * This file contains custom middleware for the HTTP router.
 */

package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// InternalAuthMiddleware guards internal endpoints with a shared-secret
// X-Internal-API-Key header. An empty configured key rejects every request;
// internal endpoints are never left open by accident.
func InternalAuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	expected := strings.TrimSpace(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				http.Error(w, "internal API disabled", http.StatusForbidden)
				return
			}
			provided := strings.TrimSpace(r.Header.Get("X-Internal-API-Key"))
			if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
				http.Error(w, "invalid internal API key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
