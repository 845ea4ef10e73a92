package attendance

import (
	"fmt"
	"time"

	"campusevents/internal/domain"
)

// Thresholds are the eligibility fractions per strategy. They are
// deployment configuration, not constants.
type Thresholds struct {
	SessionBased   float64 `yaml:"session_based" json:"session_based"`
	DayBased       float64 `yaml:"day_based" json:"day_based"`
	Continuous     float64 `yaml:"continuous" json:"continuous"`
	MilestoneBased float64 `yaml:"milestone_based" json:"milestone_based"`
	SingleMark     float64 `yaml:"single_mark" json:"single_mark"`
}

// DefaultThresholds: 75% of sessions, 80% of days, 90% of checkpoints,
// every mandatory milestone, and the one mark of a single-mark event.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SessionBased:   0.75,
		DayBased:       0.80,
		Continuous:     0.90,
		MilestoneBased: 1.0,
		SingleMark:     1.0,
	}
}

// For returns the threshold of kind.
func (t Thresholds) For(kind domain.StrategyKind) float64 {
	switch kind {
	case domain.StrategySessionBased:
		return t.SessionBased
	case domain.StrategyDayBased:
		return t.DayBased
	case domain.StrategyContinuous:
		return t.Continuous
	case domain.StrategyMilestoneBased:
		return t.MilestoneBased
	default:
		return t.SingleMark
	}
}

// Validate rejects fractions outside (0, 1].
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"session_based":   t.SessionBased,
		"day_based":       t.DayBased,
		"continuous":      t.Continuous,
		"milestone_based": t.MilestoneBased,
		"single_mark":     t.SingleMark,
	} {
		if v <= 0 || v > 1 {
			return domain.Invalid("thresholds."+name, fmt.Sprintf("%v is outside (0, 1]", v))
		}
	}
	return nil
}

// Resolver picks the attendance strategy from an event's shape.
type Resolver struct{}

// Resolve applies the rule table, first match wins:
//   - engagement tracking flag         => continuous
//   - declared milestones              => milestone_based
//   - agenda with two or more segments => session_based
//   - spans more than a day with daily check-in => day_based
//   - anything else                    => single_mark
func (Resolver) Resolve(evt domain.Event) domain.StrategyKind {
	shape := evt.Shape
	switch {
	case shape.EngagementTracking:
		return domain.StrategyContinuous
	case len(shape.Milestones) > 0:
		return domain.StrategyMilestoneBased
	case len(shape.Agenda) > 1:
		return domain.StrategySessionBased
	case shape.DailyCheckIn && evt.Windows.EndsAt.Sub(evt.Windows.StartsAt) > 24*time.Hour:
		return domain.StrategyDayBased
	default:
		return domain.StrategySingleMark
	}
}
