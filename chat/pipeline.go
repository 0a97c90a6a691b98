// Package chat orchestrates the advisory pipeline and exposes it over HTTP.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fasalsetu/agrichat/upstream"
)

// Request is one advisory turn entering the pipeline.
type Request struct {
	// Conversation is the full history, newest user message last.
	Conversation []upstream.Message

	// Profile carries farmer/crop context in my_farm mode.
	Profile map[string]any

	// Mode is "public_advisor" or "my_farm".
	Mode string

	// QueryText is the raw user message, kept for the fallback cascade.
	QueryText string
}

// Timings records per-stage wall time in milliseconds. A skipped or
// unreached stage stays at zero.
type Timings struct {
	PlannerMS  int64 `json:"planner_ms"`
	DecisionMS int64 `json:"decision_ms"`
	AnswererMS int64 `json:"answerer_ms"`
	TotalMS    int64 `json:"total_ms"`
}

// PipelineResult is the merged outcome of a pipeline run.
type PipelineResult struct {
	RequestID string

	// Answer is always non-empty: the answerer's text, or the fallback's.
	Answer string

	// Planner is the validated planner output.
	Planner *upstream.ActResult

	// Decision is the decision engine's result, the error marker when the
	// stage failed, or nil when the stage was skipped.
	Decision any

	// UsedFallback reports that Answer came from the rule cascade.
	UsedFallback bool

	Timings Timings
}

// Orchestrator sequences the three reasoning services for one turn:
// planner (required), decision (conditional), answerer (always, with
// fallback). It never aborts because a non-planner stage failed.
type Orchestrator struct {
	client *upstream.Client
	logger *slog.Logger
}

// NewOrchestrator creates a pipeline orchestrator.
func NewOrchestrator(client *upstream.Client, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{client: client, logger: logger}
}

// Run executes one advisory turn. The only errors it returns are planner
// failures; everything downstream degrades into the result instead.
func (o *Orchestrator) Run(ctx context.Context, req *Request) (*PipelineResult, error) {
	res := &PipelineResult{RequestID: uuid.New().String()}
	start := time.Now()

	// Planner is required: without an interpretation there is nothing to
	// decide on or phrase.
	stageStart := time.Now()
	act, err := o.client.Act(ctx, &upstream.ActRequest{
		Query:   req.Conversation,
		Profile: req.Profile,
		Mode:    req.Mode,
	})
	res.Timings.PlannerMS = time.Since(stageStart).Milliseconds()
	if err != nil {
		stageDuration.WithLabelValues("planner", "error").Observe(time.Since(stageStart).Seconds())
		o.logger.Error("planner stage failed",
			"request_id", res.RequestID,
			"duration_ms", res.Timings.PlannerMS,
			"error", err)
		return nil, fmt.Errorf("planner: %w", err)
	}
	stageDuration.WithLabelValues("planner", "ok").Observe(time.Since(stageStart).Seconds())
	res.Planner = act

	// Decision runs only when the intent resolved and no fields are
	// missing. Its failures are recovered locally: the answerer still gets
	// called, with an explicit error marker in place of the result.
	if act.NeedsDecision() {
		stageStart = time.Now()
		dec, err := o.client.Decide(ctx, upstream.DecisionRequestFromAct(res.RequestID, act))
		res.Timings.DecisionMS = time.Since(stageStart).Milliseconds()
		if err != nil {
			stageDuration.WithLabelValues("decision", "error").Observe(time.Since(stageStart).Seconds())
			o.logger.Warn("decision stage failed, continuing without it",
				"request_id", res.RequestID,
				"intent", act.Intent,
				"duration_ms", res.Timings.DecisionMS,
				"error", err)
			res.Decision = decisionErrorMarker(time.Now())
		} else {
			stageDuration.WithLabelValues("decision", "ok").Observe(time.Since(stageStart).Seconds())
			res.Decision = dec
		}
	}

	// Answerer always runs. When it fails after retries, the rule-based
	// fallback produces the answer instead of failing the request.
	stageStart = time.Now()
	formatted, err := o.client.Format(ctx, &upstream.FormatRequest{
		StructuredDecision: structuredDecision(req, act, res.Decision),
		AudienceHints:      map[string]any{"mode": req.Mode},
	})
	res.Timings.AnswererMS = time.Since(stageStart).Milliseconds()
	if err != nil {
		stageDuration.WithLabelValues("answerer", "error").Observe(time.Since(stageStart).Seconds())
		o.logger.Warn("answerer stage failed, using fallback",
			"request_id", res.RequestID,
			"duration_ms", res.Timings.AnswererMS,
			"error", err)
		res.Answer = Synthesize(req.QueryText, act)
		res.UsedFallback = true
		fallbackTotal.Inc()
	} else {
		stageDuration.WithLabelValues("answerer", "ok").Observe(time.Since(stageStart).Seconds())
		res.Answer = formatted.Message
	}

	res.Timings.TotalMS = time.Since(start).Milliseconds()
	return res, nil
}

// structuredDecision assembles the answerer's input from everything the
// earlier stages produced.
func structuredDecision(req *Request, act *upstream.ActResult, decision any) map[string]any {
	return map[string]any{
		"intent":            act.Intent,
		"decision_template": act.DecisionTemplate,
		"missing":           act.Missing,
		"facts":             act.Facts,
		"decision":          decision,
		"conversation":      req.Conversation,
	}
}

// decisionErrorMarker is the explicit stand-in for a failed decision stage.
// Downstream consumers see a value, never a hole, when decision falls over.
func decisionErrorMarker(now time.Time) map[string]any {
	return map[string]any{
		"error":     true,
		"message":   "decision engine unavailable",
		"timestamp": now.UTC().Format(time.RFC3339),
	}
}
