package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/harhit22/new-auto-attendace/internal/web/middleware"
)

// errInvalidForm is a shared error message for unparsable multipart requests.
const errInvalidForm = "failed to parse multipart form"

var validate = validator.New(validator.WithRequiredStructEnabled())

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// requestID returns the ID assigned by the request ID middleware.
func requestID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

// HealthCheck is one named dependency probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler reports process and dependency health.
type HealthHandler struct {
	checks  []HealthCheck
	gallery Gallery
	models  func() map[string]bool
	timeout time.Duration
}

// NewHealthHandler creates a health handler. gallery and models may be nil.
// Models load lazily, so a model that is not ready yet does not fail the check.
func NewHealthHandler(gallery Gallery, models func() map[string]bool, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks, gallery: gallery, models: models, timeout: 2 * time.Second}
}

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status      string            `json:"status"`
	Checks      map[string]string `json:"checks,omitempty"`
	Models      map[string]bool   `json:"models,omitempty"`
	Identities  int               `json:"identities"`
	Descriptors int               `json:"descriptors"`
}

// Get runs every check. Any failure turns the status into "degraded" and the
// response code into 503.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			resp.Checks[c.Name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	if h.models != nil {
		resp.Models = h.models()
	}
	if h.gallery != nil {
		snap := h.gallery.Snapshot()
		resp.Identities = snap.Len()
		resp.Descriptors = snap.Descriptors()
	}
	respondJSON(w, status, resp)
}
