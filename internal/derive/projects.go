package derive

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"obras/internal/models"
)

// DeadlineBucket selects projects by how far away their deadline is.
type DeadlineBucket string

const (
	DeadlineAll     DeadlineBucket = "all"
	DeadlineToday   DeadlineBucket = "today"
	DeadlineWeek    DeadlineBucket = "week"
	DeadlineMonth   DeadlineBucket = "month"
	DeadlineOverdue DeadlineBucket = "overdue"
)

// ParseDeadlineBucket validates a bucket name. Empty input means all.
func ParseDeadlineBucket(raw string) (DeadlineBucket, bool) {
	switch b := DeadlineBucket(strings.ToLower(strings.TrimSpace(raw))); b {
	case "":
		return DeadlineAll, true
	case DeadlineAll, DeadlineToday, DeadlineWeek, DeadlineMonth, DeadlineOverdue:
		return b, true
	}
	return "", false
}

// ProjectFilter holds the project list predicates, AND-combined.
type ProjectFilter struct {
	Search   string
	ClientID *int64
	Deadline DeadlineBucket
}

// Match reports whether p passes the filter relative to today.
func (f ProjectFilter) Match(p models.Project, today time.Time) bool {
	if term := strings.TrimSpace(f.Search); term != "" {
		fold := cases.Fold()
		if !containsFolded(fold, fold.String(term), p.Name, deref(p.Description), deref(p.ClientName)) {
			return false
		}
	}
	if f.ClientID != nil && (p.ClientID == nil || *p.ClientID != *f.ClientID) {
		return false
	}
	return inBucket(p.Deadline, f.Deadline, today)
}

func inBucket(deadline *time.Time, bucket DeadlineBucket, today time.Time) bool {
	if bucket == "" || bucket == DeadlineAll {
		return true
	}
	if deadline == nil {
		return false
	}
	loc := today.Location()
	d := Midnight(*deadline, loc)
	start := Midnight(today, loc)
	switch bucket {
	case DeadlineToday:
		return d.Equal(start)
	case DeadlineWeek:
		return !d.Before(start) && !d.After(start.AddDate(0, 0, 7))
	case DeadlineMonth:
		return !d.Before(start) && !d.After(start.AddDate(0, 1, 0))
	case DeadlineOverdue:
		return d.Before(start)
	}
	return true
}

// FilterProjects returns the summaries that match f, preserving order.
func FilterProjects(projects []models.ProjectSummary, f ProjectFilter, today time.Time) []models.ProjectSummary {
	out := make([]models.ProjectSummary, 0, len(projects))
	for _, p := range projects {
		if f.Match(p.Project, today) {
			out = append(out, p)
		}
	}
	return out
}

// ProjectSort names a project list ordering.
type ProjectSort string

const (
	SortProjectsByName     ProjectSort = "name"
	SortProjectsByDeadline ProjectSort = "deadline"
	SortProjectsByProgress ProjectSort = "progress"
	SortProjectsByRecent   ProjectSort = "recent"
)

// ParseProjectSort validates a sort key. Empty input selects the default, recent.
func ParseProjectSort(raw string) (ProjectSort, bool) {
	switch k := ProjectSort(strings.ToLower(strings.TrimSpace(raw))); k {
	case "":
		return SortProjectsByRecent, true
	case SortProjectsByName, SortProjectsByDeadline, SortProjectsByProgress, SortProjectsByRecent:
		return k, true
	}
	return "", false
}

// SortProjects orders summaries in place with a stable sort.
func SortProjects(projects []models.ProjectSummary, key ProjectSort) {
	var less func(a, b models.ProjectSummary) bool
	switch key {
	case SortProjectsByName:
		col := newCollator()
		less = func(a, b models.ProjectSummary) bool { return col.CompareString(a.Name, b.Name) < 0 }
	case SortProjectsByDeadline:
		less = func(a, b models.ProjectSummary) bool { return earlier(a.Deadline, b.Deadline) }
	case SortProjectsByProgress:
		less = func(a, b models.ProjectSummary) bool { return a.Progress > b.Progress }
	default:
		less = func(a, b models.ProjectSummary) bool { return a.UpdatedAt.After(b.UpdatedAt) }
	}
	sort.SliceStable(projects, func(i, j int) bool { return less(projects[i], projects[j]) })
}
