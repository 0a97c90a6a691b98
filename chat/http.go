package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fasalsetu/agrichat/store"
	"github.com/fasalsetu/agrichat/upstream"
)

// maxChatBodySize limits request bodies to prevent DoS.
const maxChatBodySize = 1 << 20 // 1 MB

// Chat modes.
const (
	ModePublicAdvisor = "public_advisor"
	ModeMyFarm        = "my_farm"
)

// Handler serves the chat API: /chat, /chat/health, /crop-sim/chat and
// /metrics.
type Handler struct {
	orch   *Orchestrator
	turns  *TurnService
	client *upstream.Client
	convs  *store.ConversationStore
	logger *slog.Logger
}

// NewHandler creates the HTTP handler. convs may be nil; conversation
// persistence is then disabled.
func NewHandler(orch *Orchestrator, turns *TurnService, client *upstream.Client,
	convs *store.ConversationStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		orch:   orch,
		turns:  turns,
		client: client,
		convs:  convs,
		logger: logger,
	}
}

// RegisterRoutes registers the chat endpoints on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.handleChat)
	mux.HandleFunc("GET /chat/health", h.handleHealth)
	mux.HandleFunc("POST /crop-sim/chat", h.handleCropSim)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message        string             `json:"message"`
	Mode           string             `json:"mode,omitempty"`
	Profile        map[string]any     `json:"profile,omitempty"`
	Conversation   []upstream.Message `json:"conversation,omitempty"`
	ConversationID string             `json:"conversationId,omitempty"`
}

// plannerSummary is the llm1 section of the chat response.
type plannerSummary struct {
	Intent           string         `json:"intent"`
	DecisionTemplate string         `json:"decision_template"`
	Missing          []string       `json:"missing"`
	Facts            map[string]any `json:"facts"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Validation failures return before any upstream call.
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		h.writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	switch req.Mode {
	case "":
		req.Mode = ModePublicAdvisor
	case ModePublicAdvisor, ModeMyFarm:
	default:
		h.writeError(w, http.StatusBadRequest, "mode must be public_advisor or my_farm")
		return
	}

	conversation := append(req.Conversation, upstream.Message{Role: "user", Content: req.Message})

	res, err := h.orch.Run(r.Context(), &Request{
		Conversation: conversation,
		Profile:      req.Profile,
		Mode:         req.Mode,
		QueryText:    req.Message,
	})
	if err != nil {
		turnsTotal.WithLabelValues("chat", "error").Inc()
		h.writeError(w, http.StatusInternalServerError, userMessage(err))
		return
	}
	turnsTotal.WithLabelValues("chat", "ok").Inc()

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = store.NewConversationID()
	}
	h.appendTurns(r.Context(), conversationID, req.Mode, req.Message, res.Answer)

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"answer": res.Answer,
			"llm1": plannerSummary{
				Intent:           res.Planner.Intent,
				DecisionTemplate: res.Planner.DecisionTemplate,
				Missing:          res.Planner.Missing,
				Facts:            res.Planner.Facts,
			},
			"decision": res.Decision,
			"_meta": map[string]any{
				"requestId": res.RequestID,
				"timings":   res.Timings,
				"mode":      req.Mode,
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			},
			"conversationId": conversationID,
		},
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := h.client.Check(r.Context())

	status := http.StatusOK
	if !report.AllOK() {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, map[string]any{
		"success": report.AllOK(),
		"data":    report,
	})
}

// CropSimRequest is the body of POST /crop-sim/chat.
type CropSimRequest struct {
	Message     string         `json:"message"`
	CropID      string         `json:"cropId"`
	FarmContext map[string]any `json:"farmContext,omitempty"`
}

func (h *Handler) handleCropSim(w http.ResponseWriter, r *http.Request) {
	var req CropSimRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		h.writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.CropID == "" {
		h.writeError(w, http.StatusBadRequest, "cropId is required")
		return
	}

	res, err := h.turns.Run(r.Context(), req.CropID, req.Message, req.FarmContext)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "crop not found")
			return
		}
		turnsTotal.WithLabelValues("crop_sim", "error").Inc()
		h.logger.Error("crop-sim turn failed", "crop_id", req.CropID, "error", err)
		h.writeError(w, http.StatusInternalServerError, userMessage(err))
		return
	}
	turnsTotal.WithLabelValues("crop_sim", "ok").Inc()

	data := map[string]any{
		"answer":    res.Answer,
		"crop":      res.Crop,
		"detection": res.Detection,
	}
	if res.Growth != nil {
		data["growth"] = res.Growth
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    data,
	})
}

// appendTurns persists the exchange. Failures are logged and swallowed.
func (h *Handler) appendTurns(ctx context.Context, conversationID, mode, userMsg, answer string) {
	if h.convs == nil {
		return
	}
	now := time.Now()
	err := h.convs.Append(ctx, conversationID, "", mode,
		store.Turn{Role: "user", Content: userMsg, Timestamp: now},
		store.Turn{Role: "assistant", Content: answer, Timestamp: now},
	)
	if err != nil {
		h.logger.Warn("failed to persist conversation turn",
			"conversation_id", conversationID, "error", err)
	}
}

// userMessage maps an internal pipeline error to user-safe text. Raw
// upstream errors never reach a client response.
func userMessage(err error) string {
	switch {
	case upstream.IsTimeout(err):
		return "This is taking longer than usual. Please try again in a moment."
	case upstream.IsSchema(err):
		return "I could not make sense of that. Please rephrase your question."
	case upstream.IsTransient(err):
		return "Our advisory services are temporarily unavailable. Please try again shortly."
	default:
		return "Something went wrong while preparing your advice. Please try again."
	}
}

func decodeBody(r *http.Request, out any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxChatBodySize))
	return dec.Decode(out)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}
