package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"
)

// BuildInfo describes the running binary for health payloads.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// ReadinessProbe verifies one backing dependency. A nil error means ready.
type ReadinessProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandlers serves liveness and readiness endpoints for monitoring.
type HealthHandlers struct {
	build  BuildInfo
	probes []ReadinessProbe
	clock  func() time.Time
}

// HealthOption customises the health handlers before construction.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo attaches build metadata to health payloads.
func WithHealthBuildInfo(build BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthProbes registers readiness probes evaluated by Readyz.
func WithHealthProbes(probes ...ReadinessProbe) HealthOption {
	return func(h *HealthHandlers) {
		h.probes = append(h.probes, probes...)
	}
}

// WithHealthClock overrides the time source, primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs health handlers with the provided options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Healthz reports liveness along with build metadata.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	payload := map[string]any{
		"status":    healthStatusOK,
		"timestamp": now.Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	if !h.build.StartedAt.IsZero() {
		payload["uptime"] = now.Sub(h.build.StartedAt).String()
	}
	writeJSON(w, http.StatusOK, payload)
}

// Readyz evaluates every registered probe and reports per-dependency status.
// Any failing probe degrades the overall status to 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.clock().UTC()

	status := healthStatusOK
	checks := make(map[string]map[string]any, len(h.probes))
	var details []string
	for _, probe := range h.probes {
		if probe.Check == nil {
			continue
		}
		started := h.clock()
		err := probe.Check(ctx)
		entry := map[string]any{
			"status":    healthStatusOK,
			"latency":   h.clock().Sub(started).String(),
			"checkedAt": now.Format(time.RFC3339),
		}
		if err != nil {
			status = healthStatusDegraded
			entry["status"] = healthStatusDegraded
			entry["error"] = err.Error()
			details = append(details, probe.Name+": "+err.Error())
		}
		checks[probe.Name] = entry
	}
	sort.Strings(details)

	code := http.StatusOK
	if status != healthStatusOK {
		code = http.StatusServiceUnavailable
	}
	payload := map[string]any{
		"status":      status,
		"generatedAt": now.Format(time.RFC3339),
		"checks":      checks,
	}
	if len(details) > 0 {
		payload["details"] = details
	}
	writeJSON(w, code, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
