// Package derive computes read-only view facts from projects and stages:
// progress, current stage, missing data, urgency, filters and sort orders.
// Nothing here touches the store.
package derive

import (
	"sort"

	"obras/internal/models"
)

// Progress is completed/total as a percentage, 0 when there are no stages.
func Progress(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}

// StageProgress computes Progress over a stage list.
func StageProgress(stages []models.Stage) float64 {
	completed := 0
	for _, s := range stages {
		if s.IsCompleted {
			completed++
		}
	}
	return Progress(completed, len(stages))
}

// CurrentStage returns the first incomplete stage by order number, or nil when
// every stage is complete.
func CurrentStage(stages []models.Stage) *models.Stage {
	ordered := make([]models.Stage, len(stages))
	copy(ordered, stages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].OrderNumber < ordered[j].OrderNumber
	})
	for i := range ordered {
		if !ordered[i].IsCompleted {
			return &ordered[i]
		}
	}
	return nil
}

// NeedsData reports whether an open stage lacks a responsible user or an
// estimated end date. With requireStarted only stages that have a start date
// qualify.
func NeedsData(s models.Stage, requireStarted bool) bool {
	if s.IsCompleted {
		return false
	}
	if requireStarted && s.StartDate == nil {
		return false
	}
	return s.ResponsibleID == nil || s.EstimatedEndDate == nil
}
