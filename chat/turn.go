package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fasalsetu/agrichat/cropsim"
	"github.com/fasalsetu/agrichat/store"
	"github.com/fasalsetu/agrichat/upstream"
)

// turnWriteAttempts bounds the read-apply-write retries when two turns
// race on the same crop document.
const turnWriteAttempts = 3

// Detection is the classifier outcome surfaced in the crop-sim response.
type Detection struct {
	HasEvent      bool              `json:"hasEvent"`
	EventType     cropsim.EventType `json:"eventType,omitempty"`
	HasQuery      bool              `json:"hasQuery"`
	WasRestricted bool              `json:"wasRestricted"`
	Confidence    float64           `json:"confidence"`
}

// TurnResult is the assembled outcome of one crop-sim chat turn.
type TurnResult struct {
	Answer    string
	Crop      *cropsim.CropState
	Detection Detection

	// Growth is set only when an event was detected, permitted, and applied.
	Growth *cropsim.GrowthResult
}

// TurnService runs a crop-sim chat turn end to end: classify the message,
// gate the event on the cooldown, apply growth, and fetch advisory text
// for any query. Persistence of the transcript is best effort; the growth
// write is not.
type TurnService struct {
	orch     *Orchestrator
	detector cropsim.Classifier
	engine   *cropsim.Engine
	crops    *store.CropStore
	convs    *store.ConversationStore
	logger   *slog.Logger
}

// NewTurnService wires the turn service. convs may be nil; transcripts are
// then not persisted.
func NewTurnService(orch *Orchestrator, detector cropsim.Classifier, engine *cropsim.Engine,
	crops *store.CropStore, convs *store.ConversationStore, logger *slog.Logger) *TurnService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TurnService{
		orch:     orch,
		detector: detector,
		engine:   engine,
		crops:    crops,
		convs:    convs,
		logger:   logger,
	}
}

// Run handles one message against one crop. It returns store.ErrNotFound
// unwrapped when the crop does not exist.
func (s *TurnService) Run(ctx context.Context, cropID, message string, farmContext map[string]any) (*TurnResult, error) {
	cls := s.detector.Classify(message)
	det := Detection{
		HasEvent:   cls.HasEvent,
		EventType:  cls.EventType,
		HasQuery:   cls.HasQuery,
		Confidence: cls.Confidence,
	}

	now := time.Now()
	var parts []string
	var growth *cropsim.GrowthResult

	var state *cropsim.CropState
	var err error

	if cls.HasEvent {
		state, growth, err = s.recordEvent(ctx, cropID, cls.EventType, now)
		if err != nil {
			return nil, err
		}
		if growth == nil {
			// Cooldown rejected the event; the verdict message explains when
			// the next action is due.
			det.WasRestricted = true
			verdict := cropsim.CheckCooldown(state, now)
			parts = append(parts, verdict.Message)
			cropEventsTotal.WithLabelValues(string(cls.EventType), "rejected").Inc()
		} else {
			parts = append(parts, eventSummary(state, growth))
			cropEventsTotal.WithLabelValues(string(cls.EventType), "applied").Inc()
		}
	} else {
		state, _, err = s.crops.Get(ctx, cropID)
		if err != nil {
			return nil, err
		}
	}

	if cls.HasQuery {
		parts = append(parts, s.advisoryAnswer(ctx, message, farmContext))
	}

	res := &TurnResult{
		Answer:    strings.Join(parts, "\n\n"),
		Crop:      state,
		Detection: det,
		Growth:    growth,
	}

	s.appendTranscript(ctx, cropID, message, res.Answer)
	return res, nil
}

// recordEvent runs the read-check-apply-write cycle with optimistic
// concurrency. On a revision conflict it reloads and retries, so a turn
// that lost the race re-evaluates the cooldown against the winner's write.
// A nil GrowthResult with a nil error means the cooldown rejected the event.
func (s *TurnService) recordEvent(ctx context.Context, cropID string, event cropsim.EventType, now time.Time) (*cropsim.CropState, *cropsim.GrowthResult, error) {
	var lastErr error
	for attempt := 0; attempt < turnWriteAttempts; attempt++ {
		state, rev, err := s.crops.Get(ctx, cropID)
		if err != nil {
			return nil, nil, err
		}

		verdict := cropsim.CheckCooldown(state, now)
		if !verdict.Permitted {
			return state, nil, nil
		}

		result := s.engine.Apply(state, event, now)
		if err := s.crops.Update(ctx, state, rev); err != nil {
			if errors.Is(err, store.ErrConflict) {
				s.logger.Debug("crop write conflict, retrying turn",
					"crop_id", cropID,
					"attempt", attempt+1)
				lastErr = err
				continue
			}
			return nil, nil, err
		}
		return state, &result, nil
	}

	return nil, nil, fmt.Errorf("record %s after %d attempts: %w", event, turnWriteAttempts, lastErr)
}

// advisoryAnswer fetches advisory text through the pipeline. A crop-sim
// turn never fails because the reasoning services are down; the fallback
// cascade answers instead.
func (s *TurnService) advisoryAnswer(ctx context.Context, message string, farmContext map[string]any) string {
	res, err := s.orch.Run(ctx, &Request{
		Conversation: []upstream.Message{{Role: "user", Content: message}},
		Profile:      farmContext,
		Mode:         ModeMyFarm,
		QueryText:    message,
	})
	if err != nil {
		s.logger.Warn("advisory pipeline failed during crop turn", "error", err)
		return Synthesize(message, nil)
	}
	return res.Answer
}

// eventSummary phrases an applied event for the farmer.
func eventSummary(state *cropsim.CropState, res *cropsim.GrowthResult) string {
	msg := fmt.Sprintf("Noted, %s done. Your %s is now at %.2f%% growth (%s stage).",
		res.Event, state.Name, state.GrowthPercent, state.Stage())
	if state.NextEvent != nil {
		msg += fmt.Sprintf(" Next up: %s in %d day(s), %s.",
			state.NextEvent.Type, state.NextEvent.DaysUntil, state.NextEvent.Description)
	}
	return msg
}

// appendTranscript persists the turn's two messages. Failures are logged
// and swallowed: a lost transcript must never fail the chat response.
func (s *TurnService) appendTranscript(ctx context.Context, cropID, userMsg, answer string) {
	if s.convs == nil {
		return
	}
	now := time.Now()
	err := s.convs.Append(ctx, "crop-"+cropID, "", ModeMyFarm,
		store.Turn{Role: "user", Content: userMsg, Timestamp: now},
		store.Turn{Role: "assistant", Content: answer, Timestamp: now},
	)
	if err != nil {
		s.logger.Warn("failed to persist conversation turn", "crop_id", cropID, "error", err)
	}
}
