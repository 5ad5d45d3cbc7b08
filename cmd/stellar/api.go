package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-mediacore/internal/domain/artwork"
	"github.com/edumarques81/stellar-mediacore/internal/domain/player"
	"github.com/edumarques81/stellar-mediacore/internal/domain/router"
	"github.com/edumarques81/stellar-mediacore/internal/events"
	"github.com/edumarques81/stellar-mediacore/internal/version"
)

const apiTimeout = 5 * time.Second

// apiCore is what the REST endpoints read from the core.
type apiCore interface {
	Status(ctx context.Context) (*player.State, error)
	Backends() []router.BackendStatus
	Subscribers() []events.SubscriberInfo
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

// newMux registers the REST endpoints. art may be nil when no local media
// directories are configured.
func newMux(c apiCore, art *artwork.Resolver) *http.ServeMux {
	mux := http.NewServeMux()

	// Health check: the core answers and at least one backend is up.
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
		defer cancel()

		if _, err := c.Status(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "error": err.Error()})
			return
		}
		available := 0
		for _, b := range c.Backends() {
			if b.Available {
				available++
			}
		}
		if available == 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "error", "backends": 0})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "backends": available})
	})

	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, version.GetInfo())
	})

	// Basic state endpoint (REST fallback)
	mux.HandleFunc("/api/v1/getState", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
		defer cancel()

		state, err := c.Status(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, state.ToJSON())
	})

	// Album art endpoint
	if art != nil {
		mux.HandleFunc("/albumart", func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Query().Get("path")
			if path == "" {
				http.Error(w, "path parameter required", http.StatusBadRequest)
				return
			}
			img, err := art.Resolve(path)
			if err != nil {
				log.Debug().Err(err).Str("path", path).Msg("Album art not found")
				http.Error(w, "album art not found", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", img.MimeType)
			w.Header().Set("Cache-Control", "public, max-age=86400") // Cache for 1 day
			w.Write(img.Data)
		})
	}

	mux.HandleFunc("/api/v1/backends", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c.Backends())
	})

	mux.HandleFunc("/api/v1/listeners", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c.Subscribers())
	})

	return mux
}
