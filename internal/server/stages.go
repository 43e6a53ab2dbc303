package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"obras/internal/derive"
	"obras/internal/models"
	"obras/internal/storage/sqlite"
)

type stageCreateRequest struct {
	ProjectID            int64   `json:"project_id" binding:"required"`
	Name                 string  `json:"name" binding:"required"`
	ResponsibleID        *int64  `json:"responsible_id" binding:"required"`
	StartDate            *string `json:"start_date"`
	EstimatedEndDate     *string `json:"estimated_end_date"`
	IntermediateDate     *string `json:"intermediate_date"`
	IntermediateDateNote *string `json:"intermediate_date_note"`
}

type stageUpdateRequest struct {
	Name                 *string                 `json:"name"`
	ResponsibleID        models.Nullable[int64]  `json:"responsible_id"`
	StartDate            models.Nullable[string] `json:"start_date"`
	EstimatedEndDate     models.Nullable[string] `json:"estimated_end_date"`
	CompletedDate        models.Nullable[string] `json:"completed_date"`
	IntermediateDate     models.Nullable[string] `json:"intermediate_date"`
	IntermediateDateNote models.Nullable[string] `json:"intermediate_date_note"`
}

type orderItem struct {
	ID          int64 `json:"id" binding:"required"`
	OrderNumber int   `json:"order_number" binding:"required,min=1"`
}

type reorderRequest struct {
	Items []orderItem `json:"items" binding:"required,min=1,dive"`
}

func (r reorderRequest) assignments() []models.OrderAssignment {
	out := make([]models.OrderAssignment, len(r.Items))
	for i, it := range r.Items {
		out[i] = models.OrderAssignment{ID: it.ID, OrderNumber: it.OrderNumber}
	}
	return out
}

type attachTagRequest struct {
	TagID int64 `json:"tag_id" binding:"required"`
}

// handleListStages lists stages across projects. Project, responsible,
// completion and tag filters run in the store; the rest are applied to the
// enriched rows.
func (s *Server) handleListStages(c *gin.Context) {
	var ids [3]*int64
	for i, name := range []string{"project_id", "responsible_id", "client_id"} {
		id, err := queryID(c, name)
		if err != nil {
			s.fail(c, err)
			return
		}
		ids[i] = id
	}
	projectID, responsibleID, clientID := ids[0], ids[1], ids[2]

	completed, err := queryBool(c, "is_completed")
	if err != nil {
		s.fail(c, err)
		return
	}
	needsData, err := queryBool(c, "needs_data")
	if err != nil {
		s.fail(c, err)
		return
	}
	var sortKey derive.StageSort
	if raw := c.Query("sort"); raw != "" {
		k, ok := derive.ParseStageSort(raw)
		if !ok {
			s.fail(c, fmt.Errorf("unknown sort %q: %w", raw, sqlite.ErrInvalid))
			return
		}
		sortKey = k
	}

	stages, err := s.store.ListStages(c.Request.Context(), sqlite.StageQuery{
		ProjectID:                projectID,
		ResponsibleID:            responsibleID,
		Completed:                completed,
		Tag:                      c.Query("tag"),
		IncludeCompletedProjects: projectID != nil,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	stages = derive.FilterStages(stages, derive.StageFilter{
		Search:         c.Query("search"),
		ClientID:       clientID,
		StartFrom:      s.queryDate(c, "start_date_from", false),
		StartTo:        s.queryDate(c, "start_date_to", true),
		EndFrom:        s.queryDate(c, "estimated_end_date_from", false),
		EndTo:          s.queryDate(c, "estimated_end_date_to", true),
		NeedsData:      needsData != nil && *needsData,
		RequireStarted: s.requireStarted,
	})
	s.decorateStages(stages, s.today())
	derive.SortStages(stages, sortKey)

	respondSuccess(c, http.StatusOK, gin.H{"stages": stages})
}

// handleGetStage returns a stage with tags and all comments.
func (s *Server) handleGetStage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	stage, err := s.store.GetStage(c.Request.Context(), id)
	s.respondStage(c, http.StatusOK, stage, err)
}

// handleCreateStage appends the next stage to a project.
func (s *Server) handleCreateStage(c *gin.Context) {
	var req stageCreateRequest
	if !s.bindJSON(c, &req) {
		return
	}

	var dates [3]*time.Time
	for i, f := range []struct {
		name string
		raw  *string
	}{
		{"start_date", req.StartDate},
		{"estimated_end_date", req.EstimatedEndDate},
		{"intermediate_date", req.IntermediateDate},
	} {
		t, err := s.parseBodyDate(f.name, f.raw)
		if err != nil {
			s.fail(c, err)
			return
		}
		dates[i] = t
	}

	stage, err := s.store.CreateStage(c.Request.Context(), sqlite.NewStage{
		ProjectID:            req.ProjectID,
		Name:                 req.Name,
		ResponsibleID:        req.ResponsibleID,
		StartDate:            dates[0],
		EstimatedEndDate:     dates[1],
		IntermediateDate:     dates[2],
		IntermediateDateNote: req.IntermediateDateNote,
	})
	s.respondStage(c, http.StatusCreated, stage, err)
}

// handleUpdateStage edits stage fields. Completion has its own endpoints.
func (s *Server) handleUpdateStage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req stageUpdateRequest
	if !s.bindJSON(c, &req) {
		return
	}

	upd := sqlite.StageUpdate{
		Name:                 req.Name,
		ResponsibleID:        req.ResponsibleID,
		IntermediateDateNote: req.IntermediateDateNote,
	}
	for _, f := range []struct {
		name string
		raw  models.Nullable[string]
		dst  *models.Nullable[time.Time]
	}{
		{"start_date", req.StartDate, &upd.StartDate},
		{"estimated_end_date", req.EstimatedEndDate, &upd.EstimatedEndDate},
		{"completed_date", req.CompletedDate, &upd.CompletedDate},
		{"intermediate_date", req.IntermediateDate, &upd.IntermediateDate},
	} {
		v, err := s.parseNullableDate(f.name, f.raw)
		if err != nil {
			s.fail(c, err)
			return
		}
		*f.dst = v
	}

	stage, err := s.store.UpdateStage(c.Request.Context(), id, upd)
	s.respondStage(c, http.StatusOK, stage, err)
}

// handleDeleteStage removes a stage with its comments and tag links.
func (s *Server) handleDeleteStage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteStage(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleCompleteStage marks a stage done. The next stage is not touched.
func (s *Server) handleCompleteStage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	stage, err := s.store.CompleteStage(c.Request.Context(), id)
	s.respondStage(c, http.StatusOK, stage, err)
}

// handleUncompleteStage reopens a stage.
func (s *Server) handleUncompleteStage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	stage, err := s.store.UncompleteStage(c.Request.Context(), id)
	s.respondStage(c, http.StatusOK, stage, err)
}

// handleStartStage sets the start date of a stage that has none.
func (s *Server) handleStartStage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	stage, err := s.store.StartStage(c.Request.Context(), id)
	s.respondStage(c, http.StatusOK, stage, err)
}

// handleReorderStages applies a batch of order numbers atomically.
func (s *Server) handleReorderStages(c *gin.Context) {
	var req reorderRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if err := s.store.ReorderStages(c.Request.Context(), req.assignments()); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "reordered"})
}

// handleAttachTag links a tag to a stage.
func (s *Server) handleAttachTag(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req attachTagRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if err := s.store.AttachTag(c.Request.Context(), id, req.TagID); err != nil {
		s.fail(c, err)
		return
	}
	stage, err := s.store.GetStage(c.Request.Context(), id)
	s.respondStage(c, http.StatusCreated, stage, err)
}

// handleDetachTag removes a tag from a stage.
func (s *Server) handleDetachTag(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	tagID, ok := parseID(c, "tagId")
	if !ok {
		return
	}
	if err := s.store.DetachTag(c.Request.Context(), id, tagID); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "detached"})
}

func (s *Server) respondStage(c *gin.Context, status int, stage models.Stage, err error) {
	if err != nil {
		s.fail(c, err)
		return
	}
	s.decorateStage(&stage, s.today())
	respondSuccess(c, status, gin.H{"stage": stage})
}

func (s *Server) decorateStages(stages []models.Stage, today time.Time) {
	for i := range stages {
		s.decorateStage(&stages[i], today)
	}
}

func (s *Server) decorateStage(st *models.Stage, today time.Time) {
	st.NeedsData = derive.NeedsData(*st, s.requireStarted)
	st.Urgency = string(derive.StageUrgency(*st, today))
}
