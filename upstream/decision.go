package upstream

import "context"

// DecisionRequest is the decision-engine request body for POST /decision.
// It forwards the planner's interpretation verbatim.
type DecisionRequest struct {
	RequestID        string         `json:"request_id,omitempty"`
	Intent           string         `json:"intent"`
	DecisionTemplate string         `json:"decision_template"`
	ToolCalls        []ToolCall     `json:"tool_calls"`
	Facts            map[string]any `json:"facts"`
}

// DecisionRequestFromAct builds a decision request from a planner result.
func DecisionRequestFromAct(requestID string, act *ActResult) *DecisionRequest {
	return &DecisionRequest{
		RequestID:        requestID,
		Intent:           act.Intent,
		DecisionTemplate: act.DecisionTemplate,
		ToolCalls:        act.ToolCalls,
		Facts:            act.Facts,
	}
}

// DecisionResult is the decision engine's canonical response envelope.
// Status values like "invalid_input" or "handler_not_found" are data, not
// transport errors: the engine answered, it just could not decide.
type DecisionResult struct {
	RequestID        string         `json:"request_id"`
	Intent           string         `json:"intent"`
	DecisionTemplate string         `json:"decision_template"`
	Status           string         `json:"status"`
	Notes            string         `json:"notes,omitempty"`
	Result           map[string]any `json:"result"`
	Confidence       *float64       `json:"confidence,omitempty"`
	Timestamp        string         `json:"timestamp"`
}

// Decide calls the decision engine with a planner interpretation. The
// request ID is propagated as X-Request-ID, matching the engine's contract.
func (c *Client) Decide(ctx context.Context, req *DecisionRequest) (*DecisionResult, error) {
	headers := map[string]string{}
	if req.RequestID != "" {
		headers["X-Request-ID"] = req.RequestID
	}

	var result DecisionResult
	if err := c.call(ctx, c.cfg.Decision, "/decision", headers, req, &result); err != nil {
		return nil, err
	}

	return &result, nil
}
