package derive

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"obras/internal/models"
)

// StageFilter holds the stage list predicates. Zero fields do not filter and
// set fields are AND-combined. Date bounds are inclusive.
type StageFilter struct {
	Search         string
	ResponsibleID  *int64
	ClientID       *int64
	Completed      *bool
	Tag            string
	StartFrom      *time.Time
	StartTo        *time.Time
	EndFrom        *time.Time
	EndTo          *time.Time
	NeedsData      bool
	RequireStarted bool
}

// Match reports whether s satisfies every set predicate.
func (f StageFilter) Match(s models.Stage) bool {
	if term := strings.TrimSpace(f.Search); term != "" {
		fold := cases.Fold()
		needle := fold.String(term)
		if !containsFolded(fold, needle, s.Name, s.ProjectName, deref(s.ResponsibleName), deref(s.ClientName)) {
			return false
		}
	}
	if f.ResponsibleID != nil && (s.ResponsibleID == nil || *s.ResponsibleID != *f.ResponsibleID) {
		return false
	}
	if f.ClientID != nil && (s.ClientID == nil || *s.ClientID != *f.ClientID) {
		return false
	}
	if f.Completed != nil && s.IsCompleted != *f.Completed {
		return false
	}
	if f.Tag != "" && !hasTag(s.Tags, f.Tag) {
		return false
	}
	if !inRange(s.StartDate, f.StartFrom, f.StartTo) || !inRange(s.EstimatedEndDate, f.EndFrom, f.EndTo) {
		return false
	}
	if f.NeedsData && !NeedsData(s, f.RequireStarted) {
		return false
	}
	return true
}

// FilterStages returns the stages that match f, preserving order.
func FilterStages(stages []models.Stage, f StageFilter) []models.Stage {
	out := make([]models.Stage, 0, len(stages))
	for _, s := range stages {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	return out
}

// StageSort names a stage list ordering.
type StageSort string

const (
	SortStagesByProject      StageSort = "project"
	SortStagesByName         StageSort = "stage"
	SortStagesByResponsible  StageSort = "responsible"
	SortStagesByDeadline     StageSort = "deadline"
	SortStagesByIntermediate StageSort = "intermediate"
	SortStagesByStatus       StageSort = "status"
)

// ParseStageSort validates a sort key from a query string.
func ParseStageSort(raw string) (StageSort, bool) {
	switch k := StageSort(strings.ToLower(strings.TrimSpace(raw))); k {
	case SortStagesByProject, SortStagesByName, SortStagesByResponsible,
		SortStagesByDeadline, SortStagesByIntermediate, SortStagesByStatus:
		return k, true
	}
	return "", false
}

// SortStages orders stages in place. Name keys use locale-aware collation and
// date keys place stages without the date last. The sort is stable.
func SortStages(stages []models.Stage, key StageSort) {
	col := newCollator()
	var less func(a, b models.Stage) bool
	switch key {
	case SortStagesByProject:
		less = func(a, b models.Stage) bool { return col.CompareString(a.ProjectName, b.ProjectName) < 0 }
	case SortStagesByName:
		less = func(a, b models.Stage) bool { return col.CompareString(a.Name, b.Name) < 0 }
	case SortStagesByResponsible:
		less = func(a, b models.Stage) bool {
			return col.CompareString(deref(a.ResponsibleName), deref(b.ResponsibleName)) < 0
		}
	case SortStagesByDeadline:
		less = func(a, b models.Stage) bool { return earlier(a.EstimatedEndDate, b.EstimatedEndDate) }
	case SortStagesByIntermediate:
		less = func(a, b models.Stage) bool { return earlier(a.IntermediateDate, b.IntermediateDate) }
	case SortStagesByStatus:
		less = func(a, b models.Stage) bool { return !a.IsCompleted && b.IsCompleted }
	default:
		return
	}
	sort.SliceStable(stages, func(i, j int) bool { return less(stages[i], stages[j]) })
}

// Workload groups the open stages of each user into in-progress (started) and
// pending (not started). Users without open stages are omitted.
func Workload(users []models.User, stages []models.Stage) []models.UserWorkload {
	byUser := make(map[int64]*models.UserWorkload, len(users))
	order := make([]int64, 0, len(users))
	for _, u := range users {
		byUser[u.ID] = &models.UserWorkload{User: u, InProgress: []models.Stage{}, Pending: []models.Stage{}}
		order = append(order, u.ID)
	}
	for _, s := range stages {
		if s.IsCompleted || s.ResponsibleID == nil {
			continue
		}
		w, ok := byUser[*s.ResponsibleID]
		if !ok {
			continue
		}
		if s.StartDate != nil {
			w.InProgress = append(w.InProgress, s)
		} else {
			w.Pending = append(w.Pending, s)
		}
	}

	out := make([]models.UserWorkload, 0, len(order))
	for _, id := range order {
		w := byUser[id]
		if len(w.InProgress) == 0 && len(w.Pending) == 0 {
			continue
		}
		out = append(out, *w)
	}
	return out
}

func newCollator() *collate.Collator {
	return collate.New(language.Spanish)
}

// earlier orders present dates ascending and absent dates last.
func earlier(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.Before(*b)
	}
}

func inRange(v, from, to *time.Time) bool {
	if from == nil && to == nil {
		return true
	}
	if v == nil {
		return false
	}
	if from != nil && v.Before(*from) {
		return false
	}
	if to != nil && v.After(*to) {
		return false
	}
	return true
}

func hasTag(tags []models.Tag, name string) bool {
	for _, t := range tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

func containsFolded(fold cases.Caser, needle string, fields ...string) bool {
	for _, f := range fields {
		if f != "" && strings.Contains(fold.String(f), needle) {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
