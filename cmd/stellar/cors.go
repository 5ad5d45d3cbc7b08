package main

import (
	"net/http"
	"slices"
)

// corsMiddleware sets CORS headers on every response, error responses
// included. With no allowed origins any origin is accepted; otherwise only
// a listed request origin is echoed back.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin, ok := allowOrigin(origins, r.Header.Get("Origin")); ok {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if len(origins) > 0 {
			w.Header().Add("Vary", "Origin")
		}

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func allowOrigin(origins []string, origin string) (string, bool) {
	if len(origins) == 0 {
		return "*", true
	}
	if origin != "" && slices.Contains(origins, origin) {
		return origin, true
	}
	return "", false
}
