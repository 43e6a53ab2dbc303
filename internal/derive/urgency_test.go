package derive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"obras/internal/models"
)

func TestClassify(t *testing.T) {
	loc := time.FixedZone("ART", -3*60*60)
	today := time.Date(2024, 6, 10, 15, 45, 0, 0, loc)

	tests := []struct {
		name      string
		target    time.Time
		completed bool
		want      Urgency
	}{
		{"yesterday is overdue", time.Date(2024, 6, 9, 23, 0, 0, 0, loc), false, UrgencyOverdue},
		{"same day early morning", time.Date(2024, 6, 10, 0, 5, 0, 0, loc), false, UrgencyDueToday},
		{"same day late evening", time.Date(2024, 6, 10, 23, 59, 0, 0, loc), false, UrgencyDueToday},
		{"two days ahead", time.Date(2024, 6, 12, 8, 0, 0, 0, loc), false, UrgencyDueSoon},
		{"three days ahead", time.Date(2024, 6, 13, 23, 0, 0, 0, loc), false, UrgencyDueSoon},
		{"four days ahead", time.Date(2024, 6, 14, 0, 0, 0, 0, loc), false, UrgencyNormal},
		{"ten days ahead", time.Date(2024, 6, 20, 0, 0, 0, 0, loc), false, UrgencyNormal},
		{"completed overdue", time.Date(2024, 1, 1, 0, 0, 0, 0, loc), true, UrgencyCompleted},
		{"completed future", time.Date(2030, 1, 1, 0, 0, 0, 0, loc), true, UrgencyCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.target, today, tt.completed))
		})
	}
}

func TestClassifyIgnoresTimeOfDay(t *testing.T) {
	target := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)
	for _, hour := range []int{0, 6, 12, 23} {
		today := time.Date(2024, 6, 10, hour, 30, 0, 0, time.UTC)
		assert.Equal(t, UrgencyDueSoon, Classify(target.Add(time.Duration(hour)*time.Hour), today, false))
	}
}

func TestClassifyUsesLocationOfToday(t *testing.T) {
	loc := time.FixedZone("ART", -3*60*60)
	today := time.Date(2024, 6, 10, 12, 0, 0, 0, loc)
	// 01:00 UTC on the 11th is still the 10th in ART.
	target := time.Date(2024, 6, 11, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, UrgencyDueToday, Classify(target, today, false))
}

func TestStageUrgencyWithoutDate(t *testing.T) {
	today := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, Urgency(""), StageUrgency(models.Stage{}, today))

	end := time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, UrgencyOverdue, StageUrgency(models.Stage{EstimatedEndDate: &end}, today))
	assert.Equal(t, UrgencyCompleted, StageUrgency(models.Stage{EstimatedEndDate: &end, IsCompleted: true}, today))
}

func TestProjectUrgency(t *testing.T) {
	today := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	deadline := time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC)

	assert.Equal(t, Urgency(""), ProjectUrgency(models.Project{}, today))
	assert.Equal(t, UrgencyDueToday, ProjectUrgency(models.Project{Deadline: &deadline, Status: models.ProjectActive}, today))
	assert.Equal(t, UrgencyCompleted, ProjectUrgency(models.Project{Deadline: &deadline, Status: models.ProjectCompleted}, today))
}
