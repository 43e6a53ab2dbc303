package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"obras/internal/models"
	"obras/internal/storage/sqlite"
)

type templateCreateRequest struct {
	Name                  string `json:"name" binding:"required"`
	OrderNumber           int    `json:"order_number" binding:"omitempty,min=1"`
	DefaultResponsibleID  *int64 `json:"default_responsible_id"`
	EstimatedDurationDays *int   `json:"estimated_duration_days" binding:"omitempty,min=0"`
}

type templateUpdateRequest struct {
	Name                  *string                `json:"name"`
	OrderNumber           *int                   `json:"order_number" binding:"omitempty,min=1"`
	DefaultResponsibleID  models.Nullable[int64] `json:"default_responsible_id"`
	EstimatedDurationDays models.Nullable[int]   `json:"estimated_duration_days"`
}

// handleListTemplates returns the template set in order.
func (s *Server) handleListTemplates(c *gin.Context) {
	templates, err := s.store.ListTemplates(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"templates": templates})
}

func (s *Server) handleGetTemplate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	tpl, err := s.store.GetTemplate(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"template": tpl})
}

// handleCreateTemplate adds a template; without an order number it goes last.
func (s *Server) handleCreateTemplate(c *gin.Context) {
	var req templateCreateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	tpl, err := s.store.CreateTemplate(c.Request.Context(), models.StageTemplate{
		Name:                  req.Name,
		OrderNumber:           req.OrderNumber,
		DefaultResponsibleID:  req.DefaultResponsibleID,
		EstimatedDurationDays: req.EstimatedDurationDays,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"template": tpl})
}

func (s *Server) handleUpdateTemplate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req templateUpdateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	tpl, err := s.store.UpdateTemplate(c.Request.Context(), id, sqlite.TemplateUpdate{
		Name:                  req.Name,
		OrderNumber:           req.OrderNumber,
		DefaultResponsibleID:  req.DefaultResponsibleID,
		EstimatedDurationDays: req.EstimatedDurationDays,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"template": tpl})
}

func (s *Server) handleDeleteTemplate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteTemplate(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleReorderTemplates renumbers templates atomically.
func (s *Server) handleReorderTemplates(c *gin.Context) {
	var req reorderRequest
	if !s.bindJSON(c, &req) {
		return
	}
	templates, err := s.store.ReorderTemplates(c.Request.Context(), req.assignments())
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"templates": templates})
}
