package brain

import (
	"fmt"
	"math"
	"strings"

	"basegraph.app/concierge/internal/model"
)

const DefaultConfidenceThreshold = 0.70

// DefaultUrgentSignals are matched case-insensitively as substrings of the
// user's message.
var DefaultUrgentSignals = []string{
	"urgent",
	"emergency",
	"asap",
	"immediately",
	"deadline is today",
	"deadline is tomorrow",
	"deadline is in",
	"due today",
	"due tomorrow",
	"due in 1 hour",
	"in 1 hour",
	"right now",
}

const (
	reasonUrgent           = "urgent keyword detected"
	reasonHandled          = "handled with sufficient confidence"
	reasonAlreadyEscalated = "already escalated"
)

type EscalationConfig struct {
	ConfidenceThreshold float64
	UrgentSignals       []string

	// SkipWhenAlreadyEscalated suppresses repeat low-confidence escalations on
	// a conversation that has already been handed to a human. Urgent messages
	// still escalate.
	SkipWhenAlreadyEscalated bool
}

// EscalationEngine decides whether a turn needs a human. It holds no state
// and is safe for concurrent use.
type EscalationEngine struct {
	threshold                float64
	signals                  []string
	skipWhenAlreadyEscalated bool
	lowConfidenceReason      string
}

// NewEscalationEngine builds an engine from cfg. A zero threshold or empty
// signal list falls back to the defaults.
func NewEscalationEngine(cfg EscalationConfig) *EscalationEngine {
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 || math.IsNaN(threshold) {
		threshold = DefaultConfidenceThreshold
	}

	source := cfg.UrgentSignals
	if len(source) == 0 {
		source = DefaultUrgentSignals
	}
	signals := make([]string, 0, len(source))
	for _, s := range source {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			signals = append(signals, s)
		}
	}

	return &EscalationEngine{
		threshold:                threshold,
		signals:                  signals,
		skipWhenAlreadyEscalated: cfg.SkipWhenAlreadyEscalated,
		lowConfidenceReason:      fmt.Sprintf("low confidence (<%.2f)", threshold),
	}
}

// Evaluate applies the rules in order: urgent wording, then low confidence,
// then no escalation. NaN confidence counts as 0.
func (e *EscalationEngine) Evaluate(messageText string, confidence float64, priorEscalated bool) model.EscalationVerdict {
	if e.isUrgent(messageText) {
		return model.EscalationVerdict{
			ShouldEscalate: true,
			Priority:       model.PriorityUrgent,
			Reason:         reasonUrgent,
		}
	}

	if math.IsNaN(confidence) {
		confidence = 0
	}

	if confidence < e.threshold {
		if e.skipWhenAlreadyEscalated && priorEscalated {
			return model.EscalationVerdict{
				ShouldEscalate: false,
				Priority:       model.PriorityNormal,
				Reason:         reasonAlreadyEscalated,
			}
		}
		return model.EscalationVerdict{
			ShouldEscalate: true,
			Priority:       model.PriorityNormal,
			Reason:         e.lowConfidenceReason,
		}
	}

	return model.EscalationVerdict{
		ShouldEscalate: false,
		Priority:       model.PriorityNormal,
		Reason:         reasonHandled,
	}
}

func (e *EscalationEngine) Threshold() float64 {
	return e.threshold
}

func (e *EscalationEngine) isUrgent(text string) bool {
	lower := strings.ToLower(text)
	for _, s := range e.signals {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
