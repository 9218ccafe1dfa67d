package vitality

import (
	"fmt"
	"math"

	"cloud.google.com/go/civil"

	"habitPulseAPI/internal/habit"
	"habitPulseAPI/internal/ledger"
	"habitPulseAPI/utils"
)

const (
	MinHealth = 0
	MaxHealth = 100

	DefaultRecovery = 10
	DefaultDecay    = 15

	ThrivingThreshold = 80
	// AtRiskThreshold is also the cut-off for "habits at risk" counts.
	AtRiskThreshold = 50
)

type State string

const (
	StateThriving State = "thriving"
	StateSteady   State = "steady"
	StateAtRisk   State = "at_risk"
)

func StateOf(health float64) State {
	switch {
	case health >= ThrivingThreshold:
		return StateThriving
	case health >= AtRiskThreshold:
		return StateSteady
	default:
		return StateAtRisk
	}
}

func AtRisk(health float64) bool {
	return StateOf(health) == StateAtRisk
}

// Model applies the once-per-day health update. A met due day heals by
// Recovery, a missed one costs Decay.
type Model struct {
	Recovery float64
	Decay    float64
}

func DefaultModel() Model {
	return Model{Recovery: DefaultRecovery, Decay: DefaultDecay}
}

func NewModel(recovery, decay float64) (Model, error) {
	if recovery <= 0 || decay <= 0 {
		return Model{}, fmt.Errorf("recovery and decay must be positive (got %v, %v)", recovery, decay)
	}
	return Model{Recovery: recovery, Decay: decay}, nil
}

// Pending is the window of days the next update for today will evaluate.
// ok is false when the habit is already up to date.
func (m Model) Pending(h habit.Habit, today civil.Date) (ledger.DateRange, bool) {
	if h.LastHealthCheckAt != nil && !h.LastHealthCheckAt.Before(today) {
		return ledger.DateRange{}, false
	}
	start := h.StartDate
	if h.LastHealthCheckAt != nil {
		start = utils.MaxDate(start, h.LastHealthCheckAt.AddDays(1))
	}
	if start.After(today) {
		return ledger.DateRange{Start: today, End: today}, true
	}
	return ledger.DateRange{Start: start, End: today}, true
}

// Apply walks every due day of the pending window and returns the updated
// habit with LastHealthCheckAt set to today. counts must cover the window.
// Calling it again for the same today is a no-op.
func (m Model) Apply(h habit.Habit, today civil.Date, counts ledger.CountIndex) habit.Habit {
	window, ok := m.Pending(h, today)
	if !ok {
		return h
	}

	health := clamp(h.Health)
	for d := window.Start; !d.After(window.End); d = d.AddDays(1) {
		if !h.IsDue(d) {
			continue
		}
		if h.Met(counts.CountFor(h.ID, d)) {
			health = clamp(health + m.Recovery)
		} else {
			health = clamp(health - m.Decay)
		}
	}

	checked := today
	h.Health = health
	h.LastHealthCheckAt = &checked
	return h
}

// Settle applies every due day before today and stamps yesterday. Today is
// left open so completions recorded later in the day still count.
func (m Model) Settle(h habit.Habit, today civil.Date, counts ledger.CountIndex) habit.Habit {
	return m.Apply(h, today.AddDays(-1), counts)
}

// Current is the health shown today for a settled habit. A met due today
// adds Recovery; an unmet one is not a miss until the day is over.
func (m Model) Current(settled habit.Habit, today civil.Date, counts ledger.CountIndex) float64 {
	health := clamp(settled.Health)
	if settled.LastHealthCheckAt != nil && !settled.LastHealthCheckAt.Before(today) {
		return health
	}
	if settled.IsDue(today) && settled.Met(counts.CountFor(settled.ID, today)) {
		return clamp(health + m.Recovery)
	}
	return health
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return MinHealth
	}
	return math.Max(MinHealth, math.Min(MaxHealth, v))
}
