package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"obras/internal/models"
	"obras/internal/storage/sqlite"
)

type commentCreateRequest struct {
	StageID int64  `json:"stage_id" binding:"required"`
	Content string `json:"content" binding:"required"`
	Author  string `json:"author" binding:"required"`
}

type commentUpdateRequest struct {
	Content *string `json:"content"`
	Author  *string `json:"author"`
}

func (s *Server) handleListComments(c *gin.Context) {
	comments, err := s.store.ListComments(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"comments": comments})
}

// handleListStageComments returns the comments of a stage, newest first.
func (s *Server) handleListStageComments(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	comments, err := s.store.ListStageComments(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"comments": comments})
}

func (s *Server) handleGetComment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	comment, err := s.store.GetComment(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"comment": comment})
}

func (s *Server) handleCreateComment(c *gin.Context) {
	var req commentCreateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	comment, err := s.store.CreateComment(c.Request.Context(), models.Comment{
		StageID: req.StageID,
		Content: req.Content,
		Author:  req.Author,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"comment": comment})
}

func (s *Server) handleUpdateComment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req commentUpdateRequest
	if !s.bindJSON(c, &req) {
		return
	}
	comment, err := s.store.UpdateComment(c.Request.Context(), id, sqlite.CommentUpdate{
		Content: req.Content,
		Author:  req.Author,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"comment": comment})
}

func (s *Server) handleDeleteComment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteComment(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}
