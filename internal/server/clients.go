package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"obras/internal/models"
	"obras/internal/storage/sqlite"
)

type clientCreateRequest struct {
	Name  string  `json:"name" binding:"required"`
	Email *string `json:"email" binding:"omitempty,email"`
	Phone *string `json:"phone"`
}

type clientUpdateRequest struct {
	Name  *string                 `json:"name"`
	Email models.Nullable[string] `json:"email"`
	Phone models.Nullable[string] `json:"phone"`
}

func (s *Server) handleListClients(c *gin.Context) {
	clients, err := s.store.ListClients(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"clients": clients})
}

func (s *Server) handleGetClient(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	client, err := s.store.GetClient(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"client": client})
}

func (s *Server) handleCreateClient(c *gin.Context) {
	var req clientCreateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	client, err := s.store.CreateClient(c.Request.Context(), models.Client{Name: req.Name, Email: req.Email, Phone: req.Phone})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"client": client})
}

func (s *Server) handleUpdateClient(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req clientUpdateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	client, err := s.store.UpdateClient(c.Request.Context(), id, sqlite.ClientUpdate{Name: req.Name, Email: req.Email, Phone: req.Phone})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"client": client})
}

// handleDeleteClient removes a client; its projects keep existing without one.
func (s *Server) handleDeleteClient(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteClient(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}
