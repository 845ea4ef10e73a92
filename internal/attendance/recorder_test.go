package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"campusevents/internal/domain"
)

func threeSessions() []domain.AttendanceSession {
	return []domain.AttendanceSession{
		{SessionID: "s1", IsMandatory: true},
		{SessionID: "s2", IsMandatory: true},
		{SessionID: "s3", IsMandatory: true},
	}
}

func marks(ids ...string) map[string]time.Time {
	m := make(map[string]time.Time, len(ids))
	for _, id := range ids {
		m[id] = base
	}
	return m
}

func TestAggregate(t *testing.T) {
	sessions := threeSessions()
	assert.Equal(t, 0.0, Aggregate(marks(), sessions))
	assert.InDelta(t, 66.667, Aggregate(marks("s1", "s2"), sessions), 0.001)
	assert.Equal(t, 100.0, Aggregate(marks("s1", "s2", "s3"), sessions))

	withOptional := append(threeSessions(), domain.AttendanceSession{SessionID: "extra"})
	assert.InDelta(t, 33.333, Aggregate(marks("s1", "extra"), withOptional), 0.001, "optional sessions do not count")

	optionalOnly := []domain.AttendanceSession{{SessionID: "o1"}}
	assert.Equal(t, 100.0, Aggregate(marks("o1"), optionalOnly))
	assert.Equal(t, 0.0, Aggregate(marks(), optionalOnly))
}

func TestEligibility(t *testing.T) {
	four := append(threeSessions(), domain.AttendanceSession{SessionID: "s4", IsMandatory: true})

	tests := []struct {
		name      string
		marks     map[string]time.Time
		sessions  []domain.AttendanceSession
		threshold float64
		want      domain.FinalStatus
	}{
		{"no marks", marks(), threeSessions(), 0.75, domain.FinalAbsent},
		{"two of three", marks("s1", "s2"), threeSessions(), 0.75, domain.FinalPartial},
		{"all three", marks("s1", "s2", "s3"), threeSessions(), 0.75, domain.FinalPresent},
		{"exactly at threshold", marks("s1", "s2", "s3"), four, 0.75, domain.FinalPresent},
		{"one short of all milestones", marks("s1", "s2"), threeSessions(), 1.0, domain.FinalPartial},
		{"two thirds against two thirds", marks("s1", "s2"), threeSessions(), 2.0 / 3.0, domain.FinalPresent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Eligibility(tt.marks, tt.sessions, tt.threshold))
		})
	}
}
