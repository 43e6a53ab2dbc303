package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"obras/internal/derive"
	"obras/internal/models"
	"obras/internal/storage/sqlite"
)

type userCreateRequest struct {
	Name  string  `json:"name" binding:"required"`
	Email string  `json:"email" binding:"required,email"`
	Role  *string `json:"role"`
}

type userUpdateRequest struct {
	Name  *string                 `json:"name"`
	Email *string                 `json:"email" binding:"omitempty,email"`
	Role  models.Nullable[string] `json:"role"`
}

// handleListUsers lists users filtered by name and role substrings.
func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.store.ListUsers(c.Request.Context(), sqlite.UserQuery{
		Name: c.Query("name"),
		Role: c.Query("role"),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"users": users})
}

// handleWorkload groups open stages by responsible user.
func (s *Server) handleWorkload(c *gin.Context) {
	ctx := c.Request.Context()
	users, err := s.store.ListUsers(ctx, sqlite.UserQuery{})
	if err != nil {
		s.fail(c, err)
		return
	}
	open := false
	stages, err := s.store.ListStages(ctx, sqlite.StageQuery{Completed: &open})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.decorateStages(stages, s.today())
	respondSuccess(c, http.StatusOK, gin.H{"workload": derive.Workload(users, stages)})
}

func (s *Server) handleGetUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	user, err := s.store.GetUser(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"user": user})
}

func (s *Server) handleCreateUser(c *gin.Context) {
	var req userCreateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	user, err := s.store.CreateUser(c.Request.Context(), models.User{Name: req.Name, Email: req.Email, Role: req.Role})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"user": user})
}

func (s *Server) handleUpdateUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req userUpdateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	user, err := s.store.UpdateUser(c.Request.Context(), id, sqlite.UserUpdate{Name: req.Name, Email: req.Email, Role: req.Role})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"user": user})
}

// handleDeleteUser removes a user unless a stage still names them responsible.
func (s *Server) handleDeleteUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteUser(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}
