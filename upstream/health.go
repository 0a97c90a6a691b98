package upstream

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Status describes the reachability of one upstream service.
type Status string

const (
	// StatusHealthy means the service answered its ping endpoint.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy means the service answered with a non-OK status.
	StatusUnhealthy Status = "unhealthy"
	// StatusUnreachable means the ping failed at the transport level.
	StatusUnreachable Status = "unreachable"
	// StatusConfigured means the service has a URL whose health has not
	// been checked yet.
	StatusConfigured Status = "configured"
	// StatusNotConfigured means no URL is set for the service.
	StatusNotConfigured Status = "not_configured"
)

// OK reports whether the status counts as available for readiness purposes.
func (s Status) OK() bool {
	return s == StatusHealthy || s == StatusConfigured
}

// Report is the health snapshot for all three services.
type Report struct {
	Planner  Status `json:"llm1"`
	Decision Status `json:"decision_engine"`
	Answerer Status `json:"llm2"`
}

// AllOK reports whether every service is available.
func (r Report) AllOK() bool {
	return r.Planner.OK() && r.Decision.OK() && r.Answerer.OK()
}

// pingTimeout bounds a single health probe.
const pingTimeout = 3 * time.Second

// Check pings each configured service. A service whose circuit is
// currently open reports unhealthy without a network round trip; recent
// calls are failing no matter what its ping endpoint says.
func (c *Client) Check(ctx context.Context) Report {
	return Report{
		Planner:  c.serviceStatus(ctx, c.cfg.Planner),
		Decision: c.serviceStatus(ctx, c.cfg.Decision),
		Answerer: c.serviceStatus(ctx, c.cfg.Answerer),
	}
}

func (c *Client) serviceStatus(ctx context.Context, svc ServiceConfig) Status {
	if svc.URL == "" {
		return StatusNotConfigured
	}
	if h := c.ServiceHealthSnapshot(svc.Name); h != nil && !h.Available {
		return StatusUnhealthy
	}
	return c.ping(ctx, svc)
}

// ping performs GET {url}/ping with a short deadline.
func (c *Client) ping(ctx context.Context, svc ServiceConfig) Status {
	if svc.URL == "" {
		return StatusNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.URL+"/ping", nil)
	if err != nil {
		return StatusUnreachable
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StatusUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return StatusUnhealthy
	}
	return StatusHealthy
}

// --- Circuit breaker ---------------------------------------------------------

// ServiceHealth tracks the recent failure history of one service.
type ServiceHealth struct {
	// Available indicates if the service is currently usable.
	Available bool `json:"available"`

	// LastSuccess is the time of the last successful call.
	LastSuccess time.Time `json:"last_success,omitempty"`

	// LastFailure is the time of the last failed call.
	LastFailure time.Time `json:"last_failure,omitempty"`

	// FailureCount is the number of consecutive failures.
	FailureCount int `json:"failure_count"`

	// CircuitOpen indicates if the circuit breaker has tripped.
	CircuitOpen bool `json:"circuit_open"`

	// CircuitOpenedAt is when the circuit was opened.
	CircuitOpenedAt time.Time `json:"circuit_opened_at,omitempty"`
}

// HealthConfig configures circuit-breaker behavior.
type HealthConfig struct {
	// FailureThreshold is the number of failures before opening the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long to wait before probing a failed service again.
	RecoveryTimeout time.Duration
}

// DefaultHealthConfig returns sensible defaults for failure tracking.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}
}

// healthState stores per-service failure history.
type healthState struct {
	mu       sync.Mutex
	config   HealthConfig
	statuses map[string]*ServiceHealth
}

func newHealthState(cfg HealthConfig) *healthState {
	return &healthState{
		config:   cfg,
		statuses: make(map[string]*ServiceHealth),
	}
}

func (h *healthState) getOrCreate(name string) *ServiceHealth {
	if status, ok := h.statuses[name]; ok {
		return status
	}
	status := &ServiceHealth{Available: true}
	h.statuses[name] = status
	return status
}

// markSuccess records a successful call, closing any open circuit.
func (h *healthState) markSuccess(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := h.getOrCreate(name)
	status.LastSuccess = time.Now()
	status.FailureCount = 0
	status.Available = true
	status.CircuitOpen = false
}

// markFailure records a failed call, opening the circuit past the threshold.
func (h *healthState) markFailure(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := h.getOrCreate(name)
	status.LastFailure = time.Now()
	status.FailureCount++

	if status.FailureCount >= h.config.FailureThreshold {
		status.CircuitOpen = true
		status.CircuitOpenedAt = time.Now()
		status.Available = false
	}
}

// available reports whether calls to the service should proceed. An open
// circuit allows a probe call once the recovery timeout has passed.
func (h *healthState) available(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	status, ok := h.statuses[name]
	if !ok || !status.CircuitOpen {
		return true
	}

	// Half-open: let one request through after the recovery window.
	return time.Since(status.CircuitOpenedAt) > h.config.RecoveryTimeout
}

// ServiceHealthSnapshot returns a copy of the tracked health for a service,
// or nil when the service has never been called.
func (c *Client) ServiceHealthSnapshot(name string) *ServiceHealth {
	c.health.mu.Lock()
	defer c.health.mu.Unlock()

	status, ok := c.health.statuses[name]
	if !ok {
		return nil
	}
	snapshot := *status
	return &snapshot
}

// String implements fmt.Stringer for diagnostics.
func (s *ServiceHealth) String() string {
	return fmt.Sprintf("available=%t failures=%d circuit_open=%t", s.Available, s.FailureCount, s.CircuitOpen)
}
