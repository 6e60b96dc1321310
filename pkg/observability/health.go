package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// HealthStatus is the reported service health.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is a single named probe.
type HealthCheck struct {
	Name      string
	CheckFunc func(context.Context) error
	Timeout   time.Duration
	Critical  bool
}

// HealthChecker runs registered probes on demand.
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]*HealthCheck
	start  time.Time
}

// CheckStatus is the outcome of one probe.
type CheckStatus struct {
	Status   HealthStatus `json:"status"`
	Message  string       `json:"message,omitempty"`
	Duration string       `json:"duration,omitempty"`
}

// HealthResponse is the full /health payload.
type HealthResponse struct {
	Status     HealthStatus           `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Uptime     string                 `json:"uptime"`
	Checks     map[string]CheckStatus `json:"checks"`
	Goroutines int                    `json:"num_goroutines"`
}

// NewHealthChecker creates an empty health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]*HealthCheck),
		start:  time.Now(),
	}
}

// RegisterCheck adds a probe.
func (hc *HealthChecker) RegisterCheck(check *HealthCheck) {
	if check.Timeout == 0 {
		check.Timeout = 5 * time.Second
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name] = check
}

// Check runs all probes and aggregates the overall status.
func (hc *HealthChecker) Check(ctx context.Context) HealthResponse {
	hc.mu.RLock()
	checks := make([]*HealthCheck, 0, len(hc.checks))
	for _, c := range hc.checks {
		checks = append(checks, c)
	}
	hc.mu.RUnlock()

	results := make(map[string]CheckStatus, len(checks))
	overall := HealthStatusHealthy

	for _, check := range checks {
		status := runCheck(ctx, check)
		results[check.Name] = status

		if status.Status == HealthStatusUnhealthy && check.Critical {
			overall = HealthStatusUnhealthy
		} else if status.Status != HealthStatusHealthy && overall == HealthStatusHealthy {
			overall = HealthStatusDegraded
		}
	}

	return HealthResponse{
		Status:     overall,
		Timestamp:  time.Now(),
		Uptime:     time.Since(hc.start).String(),
		Checks:     results,
		Goroutines: runtime.NumGoroutine(),
	}
}

func runCheck(ctx context.Context, check *HealthCheck) CheckStatus {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- check.CheckFunc(checkCtx) }()

	var err error
	select {
	case err = <-errCh:
	case <-checkCtx.Done():
		err = checkCtx.Err()
	}

	status := CheckStatus{Duration: time.Since(start).String()}
	switch {
	case err == nil:
		status.Status = HealthStatusHealthy
		status.Message = "OK"
	case check.Critical:
		status.Status = HealthStatusUnhealthy
		status.Message = err.Error()
	default:
		status.Status = HealthStatusDegraded
		status.Message = err.Error()
	}
	return status
}

// Handler returns the /health endpoint handler.
func (hc *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := hc.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if response.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(response)
	}
}

// PingCheck is a trivial always-healthy probe.
func PingCheck() *HealthCheck {
	return &HealthCheck{
		Name:      "ping",
		CheckFunc: func(context.Context) error { return nil },
		Timeout:   time.Second,
	}
}

// RedisCheck probes the result cache backend.
func RedisCheck(ping func(context.Context) error) *HealthCheck {
	return &HealthCheck{
		Name:      "redis",
		CheckFunc: ping,
		Timeout:   5 * time.Second,
	}
}
