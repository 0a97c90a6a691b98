package upstream_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fasalsetu/agrichat/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noSleep skips backoff delays in tests.
func noSleep(ctx context.Context, d time.Duration) error {
	return nil
}

func testConfig(url string) upstream.Config {
	stage := func(name string, attempts int) upstream.ServiceConfig {
		return upstream.ServiceConfig{
			Name:    name,
			URL:     url,
			Timeout: 5 * time.Second,
			Retry: upstream.RetryPolicy{
				MaxAttempts:       attempts,
				BackoffBase:       time.Second,
				BackoffMultiplier: 2.0,
				MaxBackoff:        30 * time.Second,
			},
		}
	}
	return upstream.Config{
		Planner:  stage(upstream.ServicePlanner, 2),
		Decision: stage(upstream.ServiceDecision, 2),
		Answerer: stage(upstream.ServiceAnswerer, 3),
	}
}

func TestClient_Act_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/act", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req upstream.ActRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "public_advisor", req.Mode)
		require.Len(t, req.Query, 1)
		assert.Equal(t, "user", req.Query[0].Role)

		resp := map[string]any{
			"intent":            "irrigation_decision",
			"decision_template": "irrigation_now_or_wait",
			"missing":           nil,
			"tool_calls": []map[string]any{
				{"tool": "weather_outlook", "args": map[string]any{"district": "Pune"}},
			},
			"facts": map[string]any{"crop": "wheat"},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := upstream.NewClient(testConfig(server.URL), upstream.WithSleep(noSleep))

	result, err := client.Act(context.Background(), &upstream.ActRequest{
		Query: []upstream.Message{{Role: "user", Content: "should I water my wheat?"}},
		Mode:  "public_advisor",
	})
	require.NoError(t, err)

	assert.Equal(t, "irrigation_decision", result.Intent)
	assert.Equal(t, "irrigation_now_or_wait", result.DecisionTemplate)
	assert.NotNil(t, result.Missing, "nil missing list should be normalized")
	assert.Empty(t, result.Missing)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "weather_outlook", result.ToolCalls[0].Tool)
	assert.True(t, result.NeedsDecision())
}

func TestClient_Act_SchemaViolation_NotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		// Decodes fine but misses intent entirely.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"facts": map[string]any{}})
	}))
	defer server.Close()

	client := upstream.NewClient(testConfig(server.URL), upstream.WithSleep(noSleep))

	_, err := client.Act(context.Background(), &upstream.ActRequest{
		Query: []upstream.Message{{Role: "user", Content: "hello"}},
	})
	require.Error(t, err)
	assert.True(t, upstream.IsSchema(err))
	assert.True(t, upstream.IsFatal(err))
	assert.Equal(t, int32(1), calls.Load(), "schema violations must not be retried")
}

func TestClient_Retry_BackoffDoubles(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"message": "rest the field", "cards": []any{}})
	}))
	defer server.Close()

	var delays []time.Duration
	client := upstream.NewClient(testConfig(server.URL), upstream.WithSleep(func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}))

	result, err := client.Format(context.Background(), &upstream.FormatRequest{
		StructuredDecision: map[string]any{},
	})
	require.NoError(t, err)
	assert.Equal(t, "rest the field", result.Message)

	require.Len(t, delays, 2)
	assert.Equal(t, 1*time.Second, delays[0])
	assert.Equal(t, 2*time.Second, delays[1])
}

func TestClient_Retry_Exhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := upstream.NewClient(testConfig(server.URL), upstream.WithSleep(noSleep))

	_, err := client.Act(context.Background(), &upstream.ActRequest{
		Query: []upstream.Message{{Role: "user", Content: "hello"}},
	})
	require.Error(t, err)
	assert.True(t, upstream.IsTransient(err))
	assert.Equal(t, int32(2), calls.Load(), "planner gets two attempts")
}

func TestClient_Call_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Planner.Timeout = 50 * time.Millisecond

	client := upstream.NewClient(cfg, upstream.WithSleep(noSleep))

	start := time.Now()
	_, err := client.Act(context.Background(), &upstream.ActRequest{
		Query: []upstream.Message{{Role: "user", Content: "hello"}},
	})
	require.Error(t, err)
	assert.True(t, upstream.IsTimeout(err))
	assert.Less(t, time.Since(start), time.Second, "deadline must cut the call short")
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server can detect the client disconnect
		// and cancel the request context; otherwise Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := upstream.NewClient(testConfig(server.URL), upstream.WithSleep(noSleep))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.Act(ctx, &upstream.ActRequest{
		Query: []upstream.Message{{Role: "user", Content: "hello"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Decide_PropagatesRequestID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/decision", r.URL.Path)
		assert.Equal(t, "req-42", r.Header.Get("X-Request-ID"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"request_id":        "req-42",
			"intent":            "irrigation_decision",
			"decision_template": "irrigation_now_or_wait",
			"status":            "ok",
			"result":            map[string]any{"action": "irrigate"},
			"timestamp":         "2026-08-28T00:00:00Z",
		})
	}))
	defer server.Close()

	client := upstream.NewClient(testConfig(server.URL), upstream.WithSleep(noSleep))

	act := &upstream.ActResult{
		Intent:           "irrigation_decision",
		DecisionTemplate: "irrigation_now_or_wait",
		Facts:            map[string]any{"crop": "wheat"},
	}
	result, err := client.Decide(context.Background(), upstream.DecisionRequestFromAct("req-42", act))
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, "irrigate", result.Result["action"])
}

func TestClient_Format_EmptyMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"message": "", "cards": []any{}})
	}))
	defer server.Close()

	client := upstream.NewClient(testConfig(server.URL), upstream.WithSleep(noSleep))

	_, err := client.Format(context.Background(), &upstream.FormatRequest{
		StructuredDecision: map[string]any{},
	})
	require.Error(t, err)
	assert.True(t, upstream.IsSchema(err))
}

func TestClient_NotConfigured(t *testing.T) {
	cfg := testConfig("")
	client := upstream.NewClient(cfg, upstream.WithSleep(noSleep))

	_, err := client.Act(context.Background(), &upstream.ActRequest{
		Query: []upstream.Message{{Role: "user", Content: "hello"}},
	})
	require.Error(t, err)
	assert.True(t, upstream.IsFatal(err))
}

func TestActResult_NeedsDecision(t *testing.T) {
	tests := []struct {
		name   string
		result upstream.ActResult
		want   bool
	}{
		{
			name:   "resolved intent, nothing missing",
			result: upstream.ActResult{Intent: "irrigation_decision", Missing: []string{}},
			want:   true,
		},
		{
			name:   "intent other",
			result: upstream.ActResult{Intent: "other", Missing: []string{}},
			want:   false,
		},
		{
			name:   "missing fields",
			result: upstream.ActResult{Intent: "variety_selection", Missing: []string{"soil_type"}},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.NeedsDecision())
		})
	}
}
