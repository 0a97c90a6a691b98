package upstream

import "context"

// FormatRequest is the answerer request body for POST /format.
type FormatRequest struct {
	// StructuredDecision carries the planner output, the decision output (or
	// its error marker), and the conversation for the answerer to phrase.
	StructuredDecision map[string]any `json:"structuredDecision"`

	// AudienceHints optionally steers tone and language.
	AudienceHints map[string]any `json:"audienceHints,omitempty"`
}

// FormatResult is the answerer's natural-language rendering.
type FormatResult struct {
	// Message is the advisory text shown to the farmer.
	Message string `json:"message"`

	// Cards are optional structured UI attachments.
	Cards []map[string]any `json:"cards"`
}

// Format calls the answerer service to turn structured pipeline output into
// advisory text. An empty message is a schema violation: the service
// answered but produced nothing the farmer can read.
func (c *Client) Format(ctx context.Context, req *FormatRequest) (*FormatResult, error) {
	var result FormatResult
	if err := c.call(ctx, c.cfg.Answerer, "/format", nil, req, &result); err != nil {
		return nil, err
	}

	if result.Message == "" {
		return nil, NewSchemaError(ServiceAnswerer, "message is empty")
	}
	if result.Cards == nil {
		result.Cards = []map[string]any{}
	}

	return &result, nil
}
