package derive

import (
	"math"
	"time"

	"obras/internal/models"
)

// Urgency is the deadline tier shown next to a date.
type Urgency string

const (
	UrgencyCompleted Urgency = "completed"
	UrgencyOverdue   Urgency = "overdue"
	UrgencyDueToday  Urgency = "due-today"
	UrgencyDueSoon   Urgency = "due-soon"
	UrgencyNormal    Urgency = "normal"
)

// DueSoonDays is the inclusive horizon of the due-soon tier.
const DueSoonDays = 3

const day = 24 * time.Hour

// Midnight truncates t to the start of its calendar day in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DaysUntil is the ceiling of whole days between the midnights of today and target,
// both taken in the location of today.
func DaysUntil(target, today time.Time) int {
	loc := today.Location()
	diff := Midnight(target, loc).Sub(Midnight(today, loc))
	return int(math.Ceil(float64(diff) / float64(day)))
}

// Classify places target into exactly one urgency tier relative to today.
func Classify(target, today time.Time, completed bool) Urgency {
	if completed {
		return UrgencyCompleted
	}
	days := DaysUntil(target, today)
	switch {
	case days < 0:
		return UrgencyOverdue
	case days == 0:
		return UrgencyDueToday
	case days <= DueSoonDays:
		return UrgencyDueSoon
	default:
		return UrgencyNormal
	}
}

// StageUrgency classifies the estimated end date of a stage, or returns "" when it has none.
func StageUrgency(s models.Stage, today time.Time) Urgency {
	if s.EstimatedEndDate == nil {
		return ""
	}
	return Classify(*s.EstimatedEndDate, today, s.IsCompleted)
}

// ProjectUrgency classifies the deadline of a project, or returns "" when it has none.
func ProjectUrgency(p models.Project, today time.Time) Urgency {
	if p.Deadline == nil {
		return ""
	}
	return Classify(*p.Deadline, today, p.Status == models.ProjectCompleted)
}
