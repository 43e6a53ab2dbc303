package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"obras/internal/models"
	"obras/internal/storage/sqlite"
)

type tagCreateRequest struct {
	Name  string  `json:"name" binding:"required"`
	Color *string `json:"color"`
}

type tagUpdateRequest struct {
	Name  *string                 `json:"name"`
	Color models.Nullable[string] `json:"color"`
}

// handleListTags lists tags with their usage counts.
func (s *Server) handleListTags(c *gin.Context) {
	tags, err := s.store.ListTags(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tags": tags})
}

func (s *Server) handleGetTag(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	tag, err := s.store.GetTag(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tag": tag})
}

func (s *Server) handleCreateTag(c *gin.Context) {
	var req tagCreateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	tag, err := s.store.CreateTag(c.Request.Context(), models.Tag{Name: req.Name, Color: req.Color})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"tag": tag})
}

func (s *Server) handleUpdateTag(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req tagUpdateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	tag, err := s.store.UpdateTag(c.Request.Context(), id, sqlite.TagUpdate{Name: req.Name, Color: req.Color})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"tag": tag})
}

func (s *Server) handleDeleteTag(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteTag(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}
