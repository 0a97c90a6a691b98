package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthState_CircuitOpensAfterThreshold(t *testing.T) {
	h := newHealthState(HealthConfig{FailureThreshold: 3, RecoveryTimeout: time.Hour})

	h.markFailure("planner")
	h.markFailure("planner")
	assert.True(t, h.available("planner"), "below threshold stays available")

	h.markFailure("planner")
	assert.False(t, h.available("planner"), "third failure opens the circuit")

	h.markSuccess("planner")
	assert.True(t, h.available("planner"), "success closes the circuit")
}

func TestHealthState_HalfOpenAfterRecovery(t *testing.T) {
	h := newHealthState(HealthConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})

	h.markFailure("answerer")
	assert.False(t, h.available("answerer"))

	time.Sleep(20 * time.Millisecond)
	assert.True(t, h.available("answerer"), "recovery window allows a probe")
}

func TestClient_Check(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ping", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer unhealthy.Close()

	cfg := Config{
		Planner:  ServiceConfig{Name: ServicePlanner, URL: healthy.URL},
		Decision: ServiceConfig{Name: ServiceDecision, URL: healthy.URL},
		Answerer: ServiceConfig{Name: ServiceAnswerer, URL: unhealthy.URL},
	}
	client := NewClient(cfg)

	report := client.Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Planner)
	assert.Equal(t, StatusHealthy, report.Decision)
	assert.Equal(t, StatusUnhealthy, report.Answerer)
	assert.False(t, report.AllOK())
}

func TestClient_Check_OpenCircuitReportsUnhealthy(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	cfg := Config{
		Planner:  ServiceConfig{Name: ServicePlanner, URL: healthy.URL},
		Decision: ServiceConfig{Name: ServiceDecision, URL: healthy.URL},
		Answerer: ServiceConfig{Name: ServiceAnswerer, URL: healthy.URL},
	}
	client := NewClient(cfg)

	// Trip the decision breaker; its ping still answers, but recent
	// calls are failing, so the report must say unhealthy.
	for i := 0; i < DefaultHealthConfig().FailureThreshold; i++ {
		client.health.markFailure(ServiceDecision)
	}

	report := client.Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Planner)
	assert.Equal(t, StatusUnhealthy, report.Decision)
	assert.Equal(t, StatusHealthy, report.Answerer)
	assert.False(t, report.AllOK())
}

func TestClient_Check_UnreachableAndUnconfigured(t *testing.T) {
	// A closed server yields a connection error.
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	cfg := Config{
		Planner:  ServiceConfig{Name: ServicePlanner, URL: deadURL},
		Decision: ServiceConfig{Name: ServiceDecision, URL: ""},
		Answerer: ServiceConfig{Name: ServiceAnswerer, URL: ""},
	}
	client := NewClient(cfg)

	report := client.Check(context.Background())
	assert.Equal(t, StatusUnreachable, report.Planner)
	assert.Equal(t, StatusNotConfigured, report.Decision)
	assert.Equal(t, StatusNotConfigured, report.Answerer)
}

func TestClient_CircuitBreaker_SkipsCalls(t *testing.T) {
	client := NewClient(Config{
		Planner: ServiceConfig{
			Name:    ServicePlanner,
			URL:     "http://planner.invalid",
			Timeout: time.Second,
			Retry:   RetryPolicy{MaxAttempts: 1, BackoffBase: time.Millisecond, BackoffMultiplier: 2},
		},
	}, WithSleep(noopSleep))

	// Trip the breaker directly.
	for i := 0; i < DefaultHealthConfig().FailureThreshold; i++ {
		client.health.markFailure(ServicePlanner)
	}

	_, err := client.Act(context.Background(), &ActRequest{
		Query: []Message{{Role: "user", Content: "hello"}},
	})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "circuit open")
}

func noopSleep(ctx context.Context, d time.Duration) error { return nil }
