// Package lifecycle holds the rules that govern how stages are seeded,
// numbered, completed and reopened inside a project.
package lifecycle

import (
	"errors"
	"sort"
	"time"

	"obras/internal/models"
)

var (
	// ErrPreviousStageIncomplete rejects a new stage while the one before it is still open.
	ErrPreviousStageIncomplete = errors.New("the previous stage must be completed before creating a new one")
	// ErrAlreadyStarted is returned when a start is requested for a stage that already has a start date.
	// The store cannot tell it apart from a missing stage.
	ErrAlreadyStarted = errors.New("stage already started or does not exist")
	// ErrEmptyReorder rejects a reorder request without assignments.
	ErrEmptyReorder = errors.New("reorder requires at least one assignment")
	// ErrInvalidOrder rejects order numbers below one.
	ErrInvalidOrder = errors.New("order numbers must be positive")
)

// Clock supplies the current time for start, completion and urgency dates.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// PlanStages turns the global template set into the initial stages of a project.
// Only the first stage is started. Estimated end dates accumulate the durations of
// every template up to and including the current one; a template without a
// duration yields a stage without an estimated end date.
func PlanStages(projectID int64, templates []models.StageTemplate, now time.Time) []models.Stage {
	ordered := make([]models.StageTemplate, len(templates))
	copy(ordered, templates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OrderNumber < ordered[j].OrderNumber
	})

	stages := make([]models.Stage, 0, len(ordered))
	elapsed := 0
	for i, tpl := range ordered {
		st := models.Stage{
			ProjectID:     projectID,
			TemplateID:    ptr(tpl.ID),
			Name:          tpl.Name,
			ResponsibleID: tpl.DefaultResponsibleID,
			OrderNumber:   tpl.OrderNumber,
		}
		if i == 0 {
			st.StartDate = ptr(now)
		}
		if tpl.EstimatedDurationDays != nil {
			elapsed += *tpl.EstimatedDurationDays
			st.EstimatedEndDate = ptr(now.AddDate(0, 0, elapsed))
		}
		stages = append(stages, st)
	}
	return stages
}

// NextOrderNumber returns the order number a newly created stage receives.
func NextOrderNumber(currentMax int) int {
	if currentMax < 0 {
		currentMax = 0
	}
	return currentMax + 1
}

// CheckSequence enforces that the stage occupying next-1 is completed.
// A missing previous stage does not block creation.
func CheckSequence(next int, previous *models.Stage) error {
	if next <= 1 || previous == nil {
		return nil
	}
	if !previous.IsCompleted {
		return ErrPreviousStageIncomplete
	}
	return nil
}

// Complete marks the stage done at now. Other stages are never touched and the
// next stage is not created or started.
func Complete(s *models.Stage, now time.Time) {
	s.IsCompleted = true
	s.CompletedDate = ptr(now)
}

// Reopen clears the completion flag and date together.
func Reopen(s *models.Stage) {
	s.IsCompleted = false
	s.CompletedDate = nil
}

// ValidateReorder checks the shape of a reorder batch. Contiguity, sequencing and
// project ownership are left to the caller.
func ValidateReorder(assignments []models.OrderAssignment) error {
	if len(assignments) == 0 {
		return ErrEmptyReorder
	}
	for _, a := range assignments {
		if a.OrderNumber < 1 {
			return ErrInvalidOrder
		}
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
