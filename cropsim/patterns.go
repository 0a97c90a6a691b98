package cropsim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EventPatterns is one ordered pattern group: lexical stems that signal a
// particular farming event in a chat message.
type EventPatterns struct {
	Type  EventType `yaml:"type"`
	Stems []string  `yaml:"stems"`
}

// PatternTable is the versioned lexicon the event detector matches against.
// Groups are evaluated in order; the first matching group wins.
type PatternTable struct {
	Version int `yaml:"version"`

	// Events are the ordered per-event pattern groups.
	Events []EventPatterns `yaml:"events"`

	// ActionMarkers are past-tense/completion cues that raise event
	// confidence (the farmer reports a done action, not a plan).
	ActionMarkers []string `yaml:"action_markers"`

	// QueryMarkers are interrogative and help/advice cues.
	QueryMarkers []string `yaml:"query_markers"`
}

// DefaultPatternTable returns the built-in lexicon.
func DefaultPatternTable() *PatternTable {
	return &PatternTable{
		Version: 1,
		Events: []EventPatterns{
			{
				Type:  EventIrrigation,
				Stems: []string{"water", "irrigat", "sprinkl", "drip", "flood the field"},
			},
			{
				Type:  EventFertilization,
				Stems: []string{"fertili", "urea", "npk", "dap", "manure", "compost", "nutrient"},
			},
			{
				Type:  EventPestCheck,
				Stems: []string{"pest", "insect", "disease", "fungus", "spray", "inspect", "scout", "weed"},
			},
			{
				Type:  EventHarvest,
				Stems: []string{"harvest", "reap", "cut the crop", "threshing"},
			},
		},
		ActionMarkers: []string{
			"did", "done", "completed", "finished", "just", "already",
			"yesterday", "today", "applied", "gave", "watered", "sprayed",
		},
		QueryMarkers: []string{
			"?", "how", "what", "when", "why", "which", "where",
			"should", "can i", "could", "advice", "advise", "help",
			"suggest", "recommend", "tell me",
		},
	}
}

// Validate checks that the table is usable.
func (t *PatternTable) Validate() error {
	if t.Version < 1 {
		return fmt.Errorf("pattern table version must be at least 1")
	}
	if len(t.Events) == 0 {
		return fmt.Errorf("pattern table has no event groups")
	}
	for _, g := range t.Events {
		if g.Type == "" {
			return fmt.Errorf("pattern group missing event type")
		}
		if len(g.Stems) == 0 {
			return fmt.Errorf("pattern group %s has no stems", g.Type)
		}
	}
	return nil
}

// LoadPatternTable reads a pattern table from a YAML file.
func LoadPatternTable(path string) (*PatternTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}

	var table PatternTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse pattern file: %w", err)
	}

	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pattern table: %w", err)
	}

	return &table, nil
}
