package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// Stats is the relay snapshot served on /stats.
type Stats struct {
	Connections  int  `json:"connections"`
	Participants int  `json:"participants"`
	HasState     bool `json:"hasState"`
}

type Options struct {
	WebSocket      http.Handler
	Metrics        http.Handler
	Stats          func() Stats
	AllowedOrigins []string
}

// NewRouter mounts the relay endpoints. Unknown paths fall through to
// chi's 404.
func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", healthHandler)
	if opts.WebSocket != nil {
		r.Handle("/ws", opts.WebSocket)
	}
	if opts.Stats != nil {
		r.Get("/stats", statsHandler(opts.Stats))
	}
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	return cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(r)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func statsHandler(stats func() Stats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats())
	}
}
