package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// mountStatic serves the built SPA from the configured directory. Unknown
// paths fall back to index.html so client side routes work; unknown /api paths
// always get a JSON 404.
func (s *Server) mountStatic() {
	indexPath := ""
	switch info, err := os.Stat(s.staticDir); {
	case s.staticDir == "":
		s.logger.Warn("static directory not configured; API only mode")
	case err != nil || !info.IsDir():
		s.logger.Warn("static directory missing", "path", s.staticDir, "error", err)
	default:
		candidate := filepath.Join(s.staticDir, "index.html")
		if _, err := os.Stat(candidate); err != nil {
			s.logger.Warn("index.html not found", "path", candidate, "error", err)
		} else {
			indexPath = candidate
			s.engine.GET("/", func(c *gin.Context) { c.File(indexPath) })
		}

		assetsDir := filepath.Join(s.staticDir, "assets")
		if _, err := os.Stat(assetsDir); err == nil {
			s.engine.StaticFS("/assets", gin.Dir(assetsDir, false))
		}
		favicon := filepath.Join(s.staticDir, "favicon.ico")
		if _, err := os.Stat(favicon); err == nil {
			s.engine.StaticFile("/favicon.ico", favicon)
		}
	}

	s.engine.NoRoute(func(c *gin.Context) {
		if indexPath == "" || strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.File(indexPath)
	})
}
