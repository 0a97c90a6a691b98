package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agrichat",
		Name:      "stage_duration_seconds",
		Help:      "Latency of each pipeline stage.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"stage", "outcome"})

	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agrichat",
		Name:      "turns_total",
		Help:      "Chat turns handled, by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	fallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agrichat",
		Name:      "fallback_answers_total",
		Help:      "Answers produced by the rule-based fallback instead of the answerer service.",
	})

	cropEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agrichat",
		Name:      "crop_events_total",
		Help:      "Detected farming events, by type and cooldown verdict.",
	}, []string{"event", "verdict"})
)
