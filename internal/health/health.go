// Package health serves the liveness and readiness probes of the NutriVision
// server.
//
//   - GET /healthz answers 200 as long as the process serves HTTP.
//   - GET /readyz runs every registered [Checker] and answers 503 if any of
//     them fails.
//
// Both respond with a JSON object carrying a "status" of "ok" or "fail" and,
// for /readyz, the per-check outcome under "checks".
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/MrWong99/nutrivision/internal/resilience"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the dependency
// can serve traffic.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probes. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates checkers, in order, on each
// readiness probe.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is the readiness probe. Each check gets its own [checkTimeout]
// deadline derived from the request.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}
	writeJSON(w, status, res)
}

// Register mounts the probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// ── Checkers ────────────────────────────────────────────────────────────────

// Breakers fails while any of the given circuit breakers is open. Half-open
// breakers pass: they are already letting probe traffic through.
func Breakers(name string, breakers map[string]*resilience.CircuitBreaker) Checker {
	names := make([]string, 0, len(breakers))
	for n := range breakers {
		names = append(names, n)
	}
	sort.Strings(names)

	return Checker{Name: name, Check: func(context.Context) error {
		for _, n := range names {
			if breakers[n].State() == resilience.StateOpen {
				return fmt.Errorf("%s: %w", n, resilience.ErrCircuitOpen)
			}
		}
		return nil
	}}
}

// Configured fails when configured reports false, e.g. because no refinement
// provider was set up.
func Configured(name string, configured func() bool) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if !configured() {
			return fmt.Errorf("%s not configured", name)
		}
		return nil
	}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
