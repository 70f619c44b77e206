package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sync"

	"github.com/wpsim/hairpin/src/internal/log"
	"github.com/wpsim/hairpin/src/internal/service"
	"github.com/wpsim/hairpin/src/internal/utils"
)

// Handler manages all API endpoints and dependencies.
type Handler struct {
	svc      Reconciler
	metrics  *Metrics
	lockFile string

	// run serializes reconcile requests; a second caller gets 409 instead of waiting.
	run sync.Mutex
}

// NewHandler creates the API handler. When lockFile is set, every reconcile
// also takes the host run lock shared with CLI invocations.
func NewHandler(svc Reconciler, metrics *Metrics, lockFile string) *Handler {
	return &Handler{svc: svc, metrics: metrics, lockFile: lockFile}
}

// TryReconcile runs Apply unless another run is in progress, in which case
// it returns false without doing anything.
func (h *Handler) TryReconcile(ctx context.Context) (*service.Report, bool) {
	if !h.run.TryLock() {
		return nil, false
	}
	defer h.run.Unlock()

	if h.lockFile != "" {
		lock, err := utils.TryLock(h.lockFile)
		if stderrors.Is(err, utils.ErrLocked) {
			return nil, false
		}
		if err != nil {
			report := &service.Report{Outcome: service.OutcomeFatal, Error: err.Error()}
			h.metrics.ObserveRun(report)
			return report, true
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				log.Warnf("Failed to release run lock: %v", err)
			}
		}()
	}

	report := h.svc.Apply(ctx)
	h.metrics.ObserveRun(report)
	report.Log()
	return report, true
}

// GetStatus runs the read-only self-check.
// GET /api/v1/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	report := h.svc.Status(r.Context())
	h.metrics.ObserveIdentities(report)
	writeJSONData(w, report)
}

// GetIdentities returns the identity pool with per-identity status.
// GET /api/v1/identities
func (h *Handler) GetIdentities(w http.ResponseWriter, r *http.Request) {
	report := h.svc.Status(r.Context())
	if report.Outcome == service.OutcomeFatal {
		WriteInternalError(w, report.Error)
		return
	}
	writeJSONData(w, IdentitiesResponse{Identities: report.Identities})
}

// GetBindings returns the proxy endpoints of the identities holding an address.
// GET /api/v1/proxy/bindings
func (h *Handler) GetBindings(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.svc.Bindings()
	if err != nil {
		WriteInternalError(w, "Failed to discover identities: "+err.Error())
		return
	}
	writeJSONData(w, BindingsResponse{Bindings: bindings})
}

// GetProxyConfig returns the generated proxy configuration as plain text.
// GET /api/v1/proxy/config
func (h *Handler) GetProxyConfig(w http.ResponseWriter, r *http.Request) {
	content, err := h.svc.ProxyConfig()
	if err != nil {
		WriteInternalError(w, "Failed to render proxy configuration: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(content))
}

// Reconcile runs provisioning and routing.
// POST /api/v1/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	log.Infof("Reconcile requested by %s", r.RemoteAddr)
	report, ok := h.TryReconcile(r.Context())
	if !ok {
		WriteBusy(w, "A reconcile run is already in progress")
		return
	}

	if report.Outcome == service.OutcomeFatal {
		WriteError(w, http.StatusInternalServerError,
			NewAPIError(ErrCodeRunFailed, report.Error).WithDetails(map[string]interface{}{"report": report}))
		return
	}
	writeJSONData(w, report)
}

// CheckHealth reports liveness.
// GET /api/v1/health
func (h *Handler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	busy := !h.run.TryLock()
	if !busy {
		h.run.Unlock()
	}
	writeJSONData(w, HealthResponse{Healthy: true, Busy: busy})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(DataResponse{Data: data})
}

// writeJSONData writes a successful JSON response with data.
func writeJSONData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, data)
}
