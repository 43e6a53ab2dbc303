package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"obras/internal/derive"
	"obras/internal/models"
	"obras/internal/storage/sqlite"
)

type projectCreateRequest struct {
	Name          string  `json:"name" binding:"required"`
	Description   *string `json:"description"`
	ClientID      *int64  `json:"client_id"`
	ResponsibleID *int64  `json:"responsible_id"`
	Deadline      *string `json:"deadline"`
	Status        string  `json:"status" binding:"omitempty,oneof=active paused completed"`
}

type projectUpdateRequest struct {
	Name          *string                 `json:"name"`
	Description   models.Nullable[string] `json:"description"`
	ClientID      models.Nullable[int64]  `json:"client_id"`
	ResponsibleID models.Nullable[int64]  `json:"responsible_id"`
	Deadline      models.Nullable[string] `json:"deadline"`
	Status        *string                 `json:"status" binding:"omitempty,oneof=active paused completed"`
}

// handleListProjects returns project summaries. Name, status and stage
// presence filter in the store; search, client, deadline and sort apply after.
func (s *Server) handleListProjects(c *gin.Context) {
	hasCompleted, err := queryBool(c, "has_completed_stages")
	if err != nil {
		s.fail(c, err)
		return
	}
	hasPending, err := queryBool(c, "has_pending_stages")
	if err != nil {
		s.fail(c, err)
		return
	}
	clientID, err := queryID(c, "client_id")
	if err != nil {
		s.fail(c, err)
		return
	}
	bucket, ok := derive.ParseDeadlineBucket(c.Query("deadline"))
	if !ok {
		s.fail(c, fmt.Errorf("unknown deadline filter %q: %w", c.Query("deadline"), sqlite.ErrInvalid))
		return
	}
	sortKey, ok := derive.ParseProjectSort(c.Query("sort"))
	if !ok {
		s.fail(c, fmt.Errorf("unknown sort %q: %w", c.Query("sort"), sqlite.ErrInvalid))
		return
	}

	projects, err := s.store.ListProjects(c.Request.Context(), sqlite.ProjectQuery{
		Name:               c.Query("name"),
		Status:             c.Query("status"),
		HasCompletedStages: hasCompleted != nil && *hasCompleted,
		HasPendingStages:   hasPending != nil && *hasPending,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	today := s.today()
	projects = derive.FilterProjects(projects, derive.ProjectFilter{
		Search:   c.Query("search"),
		ClientID: clientID,
		Deadline: bucket,
	}, today)
	for i := range projects {
		projects[i].Urgency = string(derive.ProjectUrgency(projects[i].Project, today))
	}
	derive.SortProjects(projects, sortKey)

	respondSuccess(c, http.StatusOK, gin.H{"projects": projects})
}

// handleGetProject returns a project with its enriched stages.
func (s *Server) handleGetProject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	project, err := s.store.GetProject(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"project": s.decorateProject(project)})
}

// handleCreateProject creates a project and seeds its stages from the templates.
func (s *Server) handleCreateProject(c *gin.Context) {
	var req projectCreateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	deadline, err := s.parseBodyDate("deadline", req.Deadline)
	if err != nil {
		s.fail(c, err)
		return
	}

	project, err := s.store.CreateProject(c.Request.Context(), models.Project{
		Name:          req.Name,
		Description:   req.Description,
		ClientID:      req.ClientID,
		ResponsibleID: req.ResponsibleID,
		Deadline:      deadline,
		Status:        req.Status,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"project": s.decorateProject(project)})
}

// handleUpdateProject changes the supplied project fields.
func (s *Server) handleUpdateProject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req projectUpdateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	deadline, err := s.parseNullableDate("deadline", req.Deadline)
	if err != nil {
		s.fail(c, err)
		return
	}

	project, err := s.store.UpdateProject(c.Request.Context(), id, sqlite.ProjectUpdate{
		Name:          req.Name,
		Description:   req.Description,
		ClientID:      req.ClientID,
		ResponsibleID: req.ResponsibleID,
		Deadline:      deadline,
		Status:        req.Status,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"project": s.decorateProject(project)})
}

// handleDeleteProject removes a project and all related stages.
func (s *Server) handleDeleteProject(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteProject(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) decorateProject(p models.ProjectDetail) models.ProjectDetail {
	today := s.today()
	p.Urgency = string(derive.ProjectUrgency(p.Project, today))
	s.decorateStages(p.Stages, today)
	return p
}
