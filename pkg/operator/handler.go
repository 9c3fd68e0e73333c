package operator

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/pipelineguard/remediator/pkg/breaker"
	"github.com/pipelineguard/remediator/pkg/playbook"
	"github.com/pipelineguard/remediator/pkg/shared/logging"
)

// Handler serves the operator HTTP surface against a live registry and
// breaker fabric. It holds no mutable state of its own.
type Handler struct {
	registry *playbook.Registry
	fabric   *breaker.Fabric
	log      *logrus.Entry
}

// NewHandler builds a Handler.
func NewHandler(registry *playbook.Registry, fabric *breaker.Fabric, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{registry: registry, fabric: fabric, log: log}
}

// ListCircuitBreakers handles GET /api/circuit-breakers.
func (h *Handler) ListCircuitBreakers(w http.ResponseWriter, r *http.Request) {
	states := h.fabric.SnapshotAll()
	views := make([]BreakerView, 0, len(states))
	for _, s := range states {
		views = append(views, toBreakerView(s))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Key < views[j].Key })
	writeJSON(w, http.StatusOK, views)
}

// ResetCircuitBreaker handles POST /api/circuit-breakers/{key}/reset.
func (h *Handler) ResetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		writeProblem(w, http.StatusBadRequest, "missing-key", "Missing Required Field", "key path parameter is required")
		return
	}
	h.fabric.Reset(key)
	h.log.WithFields(logging.BreakerFields(key, string(breaker.StateClosed)).ToLogrus()).
		Info("circuit breaker reset by operator")
	writeJSON(w, http.StatusOK, toBreakerView(breaker.CircuitState{Key: key, State: breaker.StateClosed}))
}

// ListSupportedErrorTypes handles GET /api/supported-error-types.
func (h *Handler) ListSupportedErrorTypes(w http.ResponseWriter, r *http.Request) {
	errorTypes := h.registry.List()
	sort.Strings(errorTypes)

	views := make([]PlaybookView, 0, len(errorTypes))
	for _, errorType := range errorTypes {
		cfg, ok := h.registry.Get(errorType)
		if !ok {
			continue
		}
		views = append(views, PlaybookView{
			ErrorType:       cfg.ErrorType,
			Action:          string(cfg.Action),
			FallbackAction:  string(cfg.FallbackAction),
			ChainedPlaybook: cfg.ChainedPlaybook,
			Description:     cfg.Description,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeProblem(w http.ResponseWriter, status int, typ, title, detail string) {
	writeJSON(w, status, problem{Type: typ, Title: title, Detail: detail})
}
