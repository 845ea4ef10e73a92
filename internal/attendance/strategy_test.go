package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"campusevents/internal/domain"
)

func TestResolverRules(t *testing.T) {
	start := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	slot := domain.AgendaSlot{StartsAt: start, EndsAt: start.Add(time.Hour)}
	ms := domain.Milestone{StartsAt: start, EndsAt: start.Add(time.Hour)}

	tests := []struct {
		name  string
		shape domain.Shape
		span  time.Duration
		want  domain.StrategyKind
	}{
		{"plain talk", domain.Shape{}, 2 * time.Hour, domain.StrategySingleMark},
		{"engagement wins over milestones", domain.Shape{EngagementTracking: true, Milestones: []domain.Milestone{ms}}, 2 * time.Hour, domain.StrategyContinuous},
		{"milestones win over agenda", domain.Shape{Milestones: []domain.Milestone{ms}, Agenda: []domain.AgendaSlot{slot, slot}}, 2 * time.Hour, domain.StrategyMilestoneBased},
		{"agenda of two", domain.Shape{Agenda: []domain.AgendaSlot{slot, slot}}, 2 * time.Hour, domain.StrategySessionBased},
		{"agenda of one is single", domain.Shape{Agenda: []domain.AgendaSlot{slot}}, 2 * time.Hour, domain.StrategySingleMark},
		{"multi-day check-in", domain.Shape{DailyCheckIn: true}, 50 * time.Hour, domain.StrategyDayBased},
		{"check-in within a day", domain.Shape{DailyCheckIn: true}, 24 * time.Hour, domain.StrategySingleMark},
		{"multi-day without check-in", domain.Shape{}, 72 * time.Hour, domain.StrategySingleMark},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := domain.Event{
				Windows: domain.Windows{StartsAt: start, EndsAt: start.Add(tt.span)},
				Shape:   tt.shape,
			}
			assert.Equal(t, tt.want, Resolver{}.Resolve(evt))
		})
	}
}

func TestThresholds(t *testing.T) {
	th := DefaultThresholds()
	assert.NoError(t, th.Validate())
	assert.Equal(t, 0.75, th.For(domain.StrategySessionBased))
	assert.Equal(t, 0.80, th.For(domain.StrategyDayBased))
	assert.Equal(t, 0.90, th.For(domain.StrategyContinuous))
	assert.Equal(t, 1.0, th.For(domain.StrategyMilestoneBased))
	assert.Equal(t, 1.0, th.For(domain.StrategySingleMark))

	th.DayBased = 0
	var verr *domain.ValidationError
	assert.ErrorAs(t, th.Validate(), &verr)

	th = DefaultThresholds()
	th.Continuous = 1.2
	assert.Error(t, th.Validate())
}
