package derive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obras/internal/models"
)

func at(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func id(v int64) *int64 { return &v }

func str(v string) *string { return &v }

func TestProgress(t *testing.T) {
	assert.Equal(t, 0.0, Progress(0, 0))
	assert.Equal(t, 50.0, Progress(1, 2))
	assert.Equal(t, 100.0, Progress(3, 3))

	assert.Equal(t, 0.0, StageProgress(nil))
	assert.Equal(t, 100.0, StageProgress([]models.Stage{{IsCompleted: true}, {IsCompleted: true}}))
	assert.Less(t, StageProgress([]models.Stage{{IsCompleted: true}, {}}), 100.0)
}

func TestCurrentStage(t *testing.T) {
	stages := []models.Stage{
		{Name: "Terminaciones", OrderNumber: 3},
		{Name: "Cimientos", OrderNumber: 1, IsCompleted: true},
		{Name: "Estructura", OrderNumber: 2},
	}
	cur := CurrentStage(stages)
	require.NotNil(t, cur)
	assert.Equal(t, "Estructura", cur.Name)

	assert.Nil(t, CurrentStage([]models.Stage{{IsCompleted: true}}))
	assert.Nil(t, CurrentStage(nil))
}

func TestNeedsData(t *testing.T) {
	started := at(2024, 6, 1)
	tests := []struct {
		name          string
		stage         models.Stage
		started, lazy bool
	}{
		{"complete data", models.Stage{ResponsibleID: id(1), EstimatedEndDate: at(2024, 7, 1), StartDate: started}, false, false},
		{"started without responsible", models.Stage{StartDate: started, EstimatedEndDate: at(2024, 7, 1)}, true, true},
		{"started without end date", models.Stage{StartDate: started, ResponsibleID: id(1)}, true, true},
		{"not started without data", models.Stage{}, false, true},
		{"completed without data", models.Stage{IsCompleted: true, StartDate: started}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.started, NeedsData(tt.stage, true), "requireStarted")
			assert.Equal(t, tt.lazy, NeedsData(tt.stage, false), "any open stage")
		})
	}
}

func TestSortStagesByDeadlinePutsMissingLast(t *testing.T) {
	stages := []models.Stage{
		{Name: "a"},
		{Name: "b", EstimatedEndDate: at(2024, 6, 20)},
		{Name: "c"},
		{Name: "d", EstimatedEndDate: at(2024, 6, 1)},
		{Name: "e", EstimatedEndDate: at(2024, 6, 10)},
	}
	SortStages(stages, SortStagesByDeadline)

	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"d", "e", "b", "a", "c"}, names)
}

func TestSortStagesByIntermediateAndStatus(t *testing.T) {
	stages := []models.Stage{
		{Name: "x", IsCompleted: true, IntermediateDate: at(2024, 1, 1)},
		{Name: "y"},
		{Name: "z", IntermediateDate: at(2024, 2, 1)},
	}
	SortStages(stages, SortStagesByIntermediate)
	assert.Equal(t, "x", stages[0].Name)
	assert.Equal(t, "y", stages[2].Name)

	SortStages(stages, SortStagesByStatus)
	assert.False(t, stages[0].IsCompleted)
	assert.False(t, stages[1].IsCompleted)
	assert.True(t, stages[2].IsCompleted)
}

func TestSortStagesByNameIsLocaleAware(t *testing.T) {
	stages := []models.Stage{{Name: "Zanja"}, {Name: "ñandú"}, {Name: "Nivelación"}, {Name: "Árido"}, {Name: "obra"}}
	SortStages(stages, SortStagesByName)

	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"Árido", "Nivelación", "ñandú", "obra", "Zanja"}, names)
}

func TestSortStagesByResponsible(t *testing.T) {
	stages := []models.Stage{
		{Name: "1", ResponsibleName: str("María")},
		{Name: "2", ResponsibleName: str("Ana")},
		{Name: "3"},
	}
	SortStages(stages, SortStagesByResponsible)
	assert.Equal(t, "3", stages[0].Name)
	assert.Equal(t, "2", stages[1].Name)
}

func TestParseStageSort(t *testing.T) {
	k, ok := ParseStageSort("Deadline")
	assert.True(t, ok)
	assert.Equal(t, SortStagesByDeadline, k)

	_, ok = ParseStageSort("priority")
	assert.False(t, ok)
}

func TestStageFilter(t *testing.T) {
	done := true
	stages := []models.Stage{
		{ID: 1, Name: "Cimientos", ProjectName: "Casa López", ResponsibleID: id(1), ResponsibleName: str("José"),
			ClientID: id(10), ClientName: str("Constructora Sur"), StartDate: at(2024, 6, 1), EstimatedEndDate: at(2024, 6, 15),
			Tags: []models.Tag{{Name: "urgente"}}},
		{ID: 2, Name: "Estructura", ProjectName: "Casa López", ResponsibleID: id(2), ClientID: id(10),
			IsCompleted: true, StartDate: at(2024, 5, 1), EstimatedEndDate: at(2024, 5, 20)},
		{ID: 3, Name: "Pintura", ProjectName: "Edificio Norte", StartDate: at(2024, 6, 5)},
	}

	ids := func(f StageFilter) []int64 {
		var out []int64
		for _, s := range FilterStages(stages, f) {
			out = append(out, s.ID)
		}
		return out
	}

	assert.Equal(t, []int64{1, 2, 3}, ids(StageFilter{}))
	assert.Equal(t, []int64{1, 2}, ids(StageFilter{Search: "LÓPEZ"}))
	assert.Equal(t, []int64{1}, ids(StageFilter{Search: "josé"}))
	assert.Equal(t, []int64{1}, ids(StageFilter{Search: "sur"}))
	assert.Equal(t, []int64{2}, ids(StageFilter{ResponsibleID: id(2)}))
	assert.Equal(t, []int64{1, 2}, ids(StageFilter{ClientID: id(10)}))
	assert.Equal(t, []int64{2}, ids(StageFilter{Completed: &done}))
	assert.Equal(t, []int64{1}, ids(StageFilter{Tag: "urgente"}))
	assert.Equal(t, []int64{1, 3}, ids(StageFilter{StartFrom: at(2024, 6, 1)}))
	assert.Equal(t, []int64{1}, ids(StageFilter{StartFrom: at(2024, 6, 1), StartTo: at(2024, 6, 1)}))
	assert.Equal(t, []int64{2}, ids(StageFilter{EndTo: at(2024, 6, 1)}))
	assert.Equal(t, []int64{3}, ids(StageFilter{NeedsData: true, RequireStarted: true}))
	assert.Equal(t, []int64{1, 3}, ids(StageFilter{Search: "a", StartFrom: at(2024, 6, 1)}))
}

func TestProjectFilterBuckets(t *testing.T) {
	today := time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)
	projects := []models.ProjectSummary{
		{Project: models.Project{ID: 1, Name: "Hoy", Deadline: at(2024, 6, 10)}},
		{Project: models.Project{ID: 2, Name: "Semana", Deadline: at(2024, 6, 17)}},
		{Project: models.Project{ID: 3, Name: "Mes", Deadline: at(2024, 7, 10)}},
		{Project: models.Project{ID: 4, Name: "Vencido", Deadline: at(2024, 6, 9)}},
		{Project: models.Project{ID: 5, Name: "Sin fecha"}},
	}

	ids := func(b DeadlineBucket) []int64 {
		var out []int64
		for _, p := range FilterProjects(projects, ProjectFilter{Deadline: b}, today) {
			out = append(out, p.ID)
		}
		return out
	}

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(DeadlineAll))
	assert.Equal(t, []int64{1}, ids(DeadlineToday))
	assert.Equal(t, []int64{1, 2}, ids(DeadlineWeek))
	assert.Equal(t, []int64{1, 2, 3}, ids(DeadlineMonth))
	assert.Equal(t, []int64{4}, ids(DeadlineOverdue))
}

func TestProjectFilterSearchAndClient(t *testing.T) {
	today := time.Now()
	p := models.Project{Name: "Casa", Description: str("Reforma de cocina"), ClientID: id(3), ClientName: str("Pérez")}

	assert.True(t, ProjectFilter{Search: "COCINA"}.Match(p, today))
	assert.True(t, ProjectFilter{Search: "pérez"}.Match(p, today))
	assert.False(t, ProjectFilter{Search: "baño"}.Match(p, today))
	assert.True(t, ProjectFilter{ClientID: id(3)}.Match(p, today))
	assert.False(t, ProjectFilter{ClientID: id(4)}.Match(p, today))
}

func TestSortProjects(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	projects := []models.ProjectSummary{
		{Project: models.Project{ID: 1, Name: "Beta", UpdatedAt: base}, Progress: 50},
		{Project: models.Project{ID: 2, Name: "alfa", UpdatedAt: base.Add(2 * time.Hour), Deadline: at(2024, 8, 1)}, Progress: 10},
		{Project: models.Project{ID: 3, Name: "Gamma", UpdatedAt: base.Add(time.Hour), Deadline: at(2024, 7, 1)}, Progress: 90},
	}

	order := func() []int64 {
		out := make([]int64, len(projects))
		for i, p := range projects {
			out[i] = p.ID
		}
		return out
	}

	SortProjects(projects, SortProjectsByRecent)
	assert.Equal(t, []int64{2, 3, 1}, order())

	SortProjects(projects, SortProjectsByName)
	assert.Equal(t, []int64{2, 1, 3}, order())

	SortProjects(projects, SortProjectsByDeadline)
	assert.Equal(t, []int64{3, 2, 1}, order())

	SortProjects(projects, SortProjectsByProgress)
	assert.Equal(t, []int64{3, 1, 2}, order())
}

func TestParseDate(t *testing.T) {
	loc := time.UTC

	d, ok := ParseDate("2024-06-10", loc)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, loc), d)

	d, ok = ParseDate("2024-06-10T15:04:05.000Z", loc)
	require.True(t, ok)
	assert.Equal(t, 15, d.Hour())

	_, ok = ParseDate("10/06/2024", loc)
	assert.False(t, ok)
	_, ok = ParseDate("", loc)
	assert.False(t, ok)
	_, ok = ParseDate("0001-01-01T00:00:00Z", loc)
	assert.False(t, ok)

	assert.True(t, IsDateOnly("2024-06-10"))
	assert.False(t, IsDateOnly("2024-06-10T00:00:00Z"))
	assert.Equal(t, time.Date(2024, 6, 10, 23, 59, 59, 999999999, loc), EndOfDay(time.Date(2024, 6, 10, 8, 0, 0, 0, loc)))
}

func TestWorkload(t *testing.T) {
	users := []models.User{{ID: 1, Name: "Ana"}, {ID: 2, Name: "Luis"}, {ID: 3, Name: "Sin tareas"}}
	stages := []models.Stage{
		{ID: 10, ResponsibleID: id(1), StartDate: at(2024, 6, 1)},
		{ID: 11, ResponsibleID: id(1)},
		{ID: 12, ResponsibleID: id(2), IsCompleted: true, StartDate: at(2024, 6, 1)},
		{ID: 13, ResponsibleID: id(2)},
		{ID: 14},
	}

	got := Workload(users, stages)
	require.Len(t, got, 2)
	assert.Equal(t, "Ana", got[0].User.Name)
	require.Len(t, got[0].InProgress, 1)
	assert.Equal(t, int64(10), got[0].InProgress[0].ID)
	require.Len(t, got[0].Pending, 1)
	assert.Equal(t, "Luis", got[1].User.Name)
	assert.Empty(t, got[1].InProgress)
	require.Len(t, got[1].Pending, 1)
	assert.Equal(t, int64(13), got[1].Pending[0].ID)
}
