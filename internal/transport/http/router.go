package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ekyc/pkg/platform/middleware/auth"
	"ekyc/pkg/platform/middleware/request"
)

// Registrar is implemented by every module handler.
type Registrar interface {
	Register(r chi.Router)
}

// RegistrarFunc adapts a plain registration function to Registrar.
type RegistrarFunc func(r chi.Router)

func (f RegistrarFunc) Register(r chi.Router) { f(r) }

// Routes groups the module handlers mounted by NewRouter.
type Routes struct {
	// Public routes are reachable without a bearer token.
	Public []Registrar
	// Authenticated routes sit behind RequireAuth.
	Authenticated []Registrar
}

// NewRouter wires the middleware stack and mounts every handler.
func NewRouter(routes Routes, validator auth.JWTValidator, metrics *request.Metrics, requestTimeout time.Duration, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(request.ClientIP)
	r.Use(request.Logger(logger))
	r.Use(request.Latency(metrics))
	if requestTimeout > 0 {
		r.Use(request.Timeout(requestTimeout))
	}

	r.Handle("/metrics", promhttp.Handler())
	for _, h := range routes.Public {
		h.Register(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(validator, logger))
		for _, h := range routes.Authenticated {
			h.Register(r)
		}
	})

	return r
}
