package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"obras/internal/lifecycle"
	"obras/internal/storage/sqlite"
)

// Options tunes the HTTP server.
type Options struct {
	StaticDir   string
	CORSOrigins []string
	// Location is the zone used to decide what "today" is for urgency and
	// deadline buckets and to read date-only inputs.
	Location *time.Location
	// NeedsDataRequireStarted limits the needs-data flag to started stages.
	NeedsDataRequireStarted bool
	Clock                   lifecycle.Clock
}

// Server provides HTTP handlers for the construction tracker backend.
type Server struct {
	engine         *gin.Engine
	store          *sqlite.Store
	logger         *slog.Logger
	staticDir      string
	loc            *time.Location
	clock          lifecycle.Clock
	requireStarted bool
}

// New constructs the HTTP server with routes and middleware configured. The
// first call also configures gin's binding for the whole process: bodies with
// unknown fields are rejected and validation errors use JSON field names.
func New(store *sqlite.Store, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = lifecycle.SystemClock{}
	}

	registerValidation()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(corsConfig(opts.CORSOrigins)))

	srv := &Server{
		engine:         router,
		store:          store,
		logger:         logger,
		staticDir:      opts.StaticDir,
		loc:            opts.Location,
		clock:          opts.Clock,
		requireStarted: opts.NeedsDataRequireStarted,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API and static handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)

		projects := api.Group("/projects")
		{
			projects.GET("", s.handleListProjects)
			projects.POST("", s.handleCreateProject)
			projects.GET(":id", s.handleGetProject)
			projects.PUT(":id", s.handleUpdateProject)
			projects.DELETE(":id", s.handleDeleteProject)
		}

		stages := api.Group("/stages")
		{
			stages.GET("", s.handleListStages)
			stages.POST("", s.handleCreateStage)
			stages.PUT("reorder", s.handleReorderStages)
			stages.GET(":id", s.handleGetStage)
			stages.PUT(":id", s.handleUpdateStage)
			stages.DELETE(":id", s.handleDeleteStage)
			stages.PUT(":id/complete", s.handleCompleteStage)
			stages.PUT(":id/uncomplete", s.handleUncompleteStage)
			stages.PUT(":id/start", s.handleStartStage)
			stages.POST(":id/tags", s.handleAttachTag)
			stages.DELETE(":id/tags/:tagId", s.handleDetachTag)
			stages.GET(":id/comments", s.handleListStageComments)
		}

		comments := api.Group("/comments")
		{
			comments.GET("", s.handleListComments)
			comments.POST("", s.handleCreateComment)
			comments.GET(":id", s.handleGetComment)
			comments.PUT(":id", s.handleUpdateComment)
			comments.DELETE(":id", s.handleDeleteComment)
		}

		users := api.Group("/users")
		{
			users.GET("", s.handleListUsers)
			users.POST("", s.handleCreateUser)
			users.GET("workload", s.handleWorkload)
			users.GET(":id", s.handleGetUser)
			users.PUT(":id", s.handleUpdateUser)
			users.DELETE(":id", s.handleDeleteUser)
		}

		clients := api.Group("/clients")
		{
			clients.GET("", s.handleListClients)
			clients.POST("", s.handleCreateClient)
			clients.GET(":id", s.handleGetClient)
			clients.PUT(":id", s.handleUpdateClient)
			clients.DELETE(":id", s.handleDeleteClient)
		}

		tags := api.Group("/tags")
		{
			tags.GET("", s.handleListTags)
			tags.POST("", s.handleCreateTag)
			tags.GET(":id", s.handleGetTag)
			tags.PUT(":id", s.handleUpdateTag)
			tags.DELETE(":id", s.handleDeleteTag)
		}

		templates := api.Group("/stage-templates")
		{
			templates.GET("", s.handleListTemplates)
			templates.POST("", s.handleCreateTemplate)
			templates.PUT("reorder", s.handleReorderTemplates)
			templates.GET(":id", s.handleGetTemplate)
			templates.PUT(":id", s.handleUpdateTemplate)
			templates.DELETE(":id", s.handleDeleteTemplate)
		}
	}

	s.mountStatic()
}

// handleHealth reports whether the database answers.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.respondError(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

// today is the current instant in the configured zone.
func (s *Server) today() time.Time {
	return s.clock.Now().In(s.loc)
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return 0, false
	}
	return id, true
}

// statusFor maps store and lifecycle errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sqlite.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sqlite.ErrInvalid),
		errors.Is(err, lifecycle.ErrEmptyReorder),
		errors.Is(err, lifecycle.ErrInvalidOrder):
		return http.StatusBadRequest
	case errors.Is(err, sqlite.ErrConflict),
		errors.Is(err, sqlite.ErrInUse),
		errors.Is(err, lifecycle.ErrPreviousStageIncomplete),
		errors.Is(err, lifecycle.ErrAlreadyStarted):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail responds with the status that matches err.
func (s *Server) fail(c *gin.Context, err error) {
	s.respondError(c, statusFor(err), err)
}

// respondError logs the error and returns a JSON payload. Internal errors are
// not echoed to the caller.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	s.logger.Error("request failed",
		slog.String("path", c.FullPath()),
		slog.Int("status", status),
		slog.String("request_id", c.GetString(requestIDKey)),
		slog.String("error", err.Error()))

	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"error": msg})
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
