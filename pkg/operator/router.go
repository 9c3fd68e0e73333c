package operator

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/pipelineguard/remediator/pkg/breaker"
	"github.com/pipelineguard/remediator/pkg/playbook"
)

// NewRouter wires the three operator endpoints behind panic recovery,
// request IDs, a request timeout, and a permissive CORS policy suitable
// for an internal operator dashboard.
func NewRouter(registry *playbook.Registry, fabric *breaker.Fabric, log *logrus.Entry) http.Handler {
	h := NewHandler(registry, fabric, log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api/circuit-breakers", h.ListCircuitBreakers)
	r.Post("/api/circuit-breakers/{key}/reset", h.ResetCircuitBreaker)
	r.Get("/api/supported-error-types", h.ListSupportedErrorTypes)

	return r
}
