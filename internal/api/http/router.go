package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	CORSOrigins []string
	Timeout     time.Duration
	// Ready reports whether backing stores are reachable; nil means always.
	Ready func(ctx context.Context) error
}

// NewRouter wires the middleware stack, health checks, /analyses and /events.
func NewRouter(svc *Service, opts RouterOptions) chi.Router {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(opts.Timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Location"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil {
			if err := opts.Ready(r.Context()); err != nil {
				http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(200)
	})

	r.Route("/analyses", func(ar chi.Router) {
		MountAnalyses(ar, svc)
	})
	r.Get("/events", EventsHandler(svc))
	return r
}

func requestID(r *http.Request) string { return middleware.GetReqID(r.Context()) }
