package metricx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"go.eggybyte.com/o11y/core/log"
)

// HealthResult is the outcome of one health check.
type HealthResult struct {
	Healthy bool
	Message string
	Err     error
}

// HealthyResult returns a healthy result with an optional message.
func HealthyResult(msg string) HealthResult {
	return HealthResult{Healthy: true, Message: msg}
}

// UnhealthyResult returns an unhealthy result carrying err.
func UnhealthyResult(err error) HealthResult {
	r := HealthResult{Err: err}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

// HealthCheck probes one dependency.
// Implementations should perform quick checks and honor context deadlines.
type HealthCheck interface {
	Check(ctx context.Context) (HealthResult, error)
}

// HealthCheckFunc adapts a function to HealthCheck.
type HealthCheckFunc func(ctx context.Context) (HealthResult, error)

// Check calls f.
func (f HealthCheckFunc) Check(ctx context.Context) (HealthResult, error) { return f(ctx) }

// HealthRegistry holds named health checks.
type HealthRegistry struct {
	logger log.Logger
	mu     sync.RWMutex
	checks map[string]HealthCheck
}

// NewHealthRegistry creates an empty HealthRegistry.
func NewHealthRegistry(logger log.Logger) *HealthRegistry {
	if logger == nil {
		logger = log.Nop()
	}
	return &HealthRegistry{logger: logger, checks: make(map[string]HealthCheck)}
}

// Register adds check under name, replacing any previous check.
func (h *HealthRegistry) Register(name string, check HealthCheck) {
	if check == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Unregister removes the check registered under name.
func (h *HealthRegistry) Unregister(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.checks, name)
}

// Names returns the registered check names in sorted order.
func (h *HealthRegistry) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunHealthChecks runs every check sequentially.
// A check that returns an error or panics is reported unhealthy.
func (h *HealthRegistry) RunHealthChecks(ctx context.Context) map[string]HealthResult {
	h.mu.RLock()
	checks := make(map[string]HealthCheck, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()

	results := make(map[string]HealthResult, len(checks))
	for name, check := range checks {
		result := runCheck(ctx, check)
		if !result.Healthy {
			h.logger.Warn("health check failed", log.Str("check", name), log.Str("message", result.Message))
		}
		results[name] = result
	}
	return results
}

// Healthy reports whether every check passes.
func (h *HealthRegistry) Healthy(ctx context.Context) bool {
	for _, r := range h.RunHealthChecks(ctx) {
		if !r.Healthy {
			return false
		}
	}
	return true
}

func runCheck(ctx context.Context, check HealthCheck) (result HealthResult) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("health check panicked: %v", r)
			}
			result = UnhealthyResult(err)
		}
	}()
	res, err := check.Check(ctx)
	if err != nil {
		return UnhealthyResult(err)
	}
	return res
}

type checkBody struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type healthBody struct {
	Status string               `json:"status"`
	Checks map[string]checkBody `json:"checks"`
}

// Handler serves the check results as JSON, 200 when all pass and 503 otherwise.
func (h *HealthRegistry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body := healthBody{Status: "healthy", Checks: map[string]checkBody{}}
		for name, res := range h.RunHealthChecks(r.Context()) {
			cb := checkBody{Healthy: res.Healthy, Message: res.Message}
			if res.Err != nil {
				cb.Error = res.Err.Error()
			}
			if !res.Healthy {
				body.Status = "unhealthy"
			}
			body.Checks[name] = cb
		}

		w.Header().Set("Content-Type", "application/json")
		if body.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			h.logger.Error(err, "failed to write health response")
		}
	})
}
