// ABOUTME: Bearer token authentication middleware for API routes.
// ABOUTME: Constant-time comparison; anonymous callers fall through to the quota path.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// authedKey marks a request that presented a valid bearer token.
type contextKey string

const authedKey contextKey = "authed"

// AuthMiddleware returns middleware that validates bearer tokens on /api/*
// routes. An empty configured token disables token auth entirely. Requests
// without a token are not rejected; they proceed as anonymous and are
// subject to the quota path instead. A present-but-wrong token is rejected.
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	expected := "Bearer " + token
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				// Anonymous: quota middleware takes over.
				next.ServeHTTP(w, r)
				return
			}

			if subtle.ConstantTimeCompare([]byte(auth), []byte(expected)) == 1 {
				next.ServeHTTP(w, MarkAuthed(r))
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		})
	}
}

// MarkAuthed flags the request context as token-authenticated.
func MarkAuthed(r *http.Request) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), authedKey, true))
}

// IsAuthed reports whether the request presented a valid bearer token.
// Authenticated callers bypass the anonymous daily quota.
func IsAuthed(r *http.Request) bool {
	v, _ := r.Context().Value(authedKey).(bool)
	return v
}
