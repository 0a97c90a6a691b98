package upstream

import (
	"context"
	"fmt"
)

// Message is one turn of conversation history sent to the planner.
type Message struct {
	Role    string `json:"role"`    // "user" or "assistant"
	Content string `json:"content"` // Message text
}

// ActRequest is the planner request body for POST /act.
type ActRequest struct {
	// Query is the full conversation, newest message last.
	Query []Message `json:"query"`

	// Profile carries farmer/crop context in my_farm mode.
	Profile map[string]any `json:"profile,omitempty"`

	// Mode is "public_advisor" or "my_farm".
	Mode string `json:"mode,omitempty"`
}

// ToolCall is a tool invocation the planner wants executed downstream.
type ToolCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ActResult is the planner's structured interpretation of the conversation.
type ActResult struct {
	// Intent is the resolved user intent, or "other" when unresolved.
	Intent string `json:"intent"`

	// DecisionTemplate names the decision-engine template to apply.
	DecisionTemplate string `json:"decision_template"`

	// Missing lists required fields the user has not yet supplied.
	Missing []string `json:"missing"`

	// ToolCalls are data lookups the decision engine should run.
	ToolCalls []ToolCall `json:"tool_calls"`

	// Facts are the slot values extracted so far.
	Facts map[string]any `json:"facts"`
}

// validate checks the structural contract the pipeline depends on.
// A planner answer that decodes but misses required fields is a schema
// violation, fatal for the current turn.
func (r *ActResult) validate() error {
	if r.Intent == "" {
		return fmt.Errorf("intent is empty")
	}
	if r.DecisionTemplate == "" {
		return fmt.Errorf("decision_template is empty")
	}
	if r.Facts == nil {
		return fmt.Errorf("facts object is missing")
	}
	return nil
}

// normalize replaces nil list fields with empty ones so downstream code can
// range without nil checks. The planner legitimately omits both.
func (r *ActResult) normalize() {
	if r.Missing == nil {
		r.Missing = []string{}
	}
	if r.ToolCalls == nil {
		r.ToolCalls = []ToolCall{}
	}
}

// NeedsDecision reports whether the decision engine should run for this
// planner result. Unresolved intents and incomplete slot sets skip it.
func (r *ActResult) NeedsDecision() bool {
	return r.Intent != "other" && len(r.Missing) == 0
}

// Act calls the planner service with the conversation and returns its
// structured interpretation.
func (c *Client) Act(ctx context.Context, req *ActRequest) (*ActResult, error) {
	var result ActResult
	if err := c.call(ctx, c.cfg.Planner, "/act", nil, req, &result); err != nil {
		return nil, err
	}

	if err := result.validate(); err != nil {
		return nil, NewSchemaError(ServicePlanner, err.Error())
	}
	result.normalize()

	return &result, nil
}
