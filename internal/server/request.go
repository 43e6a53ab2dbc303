package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"obras/internal/derive"
	"obras/internal/models"
	"obras/internal/storage/sqlite"
)

var validationOnce sync.Once

// registerValidation makes JSON binding reject unknown fields and makes
// validator report fields by their JSON names. It touches process-wide gin
// state, so it runs once.
func registerValidation() {
	validationOnce.Do(func() {
		binding.EnableDecoderDisallowUnknownFields = true
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}

// bindJSON decodes the body into dst and writes a 400 when it does not fit.
func (s *Server) bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fieldMessage(fe)
		}
		s.logger.Warn("validation failed", slog.String("path", c.FullPath()), slog.Any("fields", fields))
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
		return false
	}
	s.respondError(c, http.StatusBadRequest, err)
	return false
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return "is invalid"
}

// parseBodyDate reads an optional date from a request body. Malformed input is
// a validation error.
func (s *Server) parseBodyDate(field string, raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, ok := derive.ParseDate(*raw, s.loc)
	if !ok {
		return nil, fmt.Errorf("%s: malformed date %q: %w", field, *raw, sqlite.ErrInvalid)
	}
	return &t, nil
}

// parseNullableDate is parseBodyDate for partial updates. An empty string
// clears the date like null does.
func (s *Server) parseNullableDate(field string, raw models.Nullable[string]) (models.Nullable[time.Time], error) {
	if !raw.Set {
		return models.Nullable[time.Time]{}, nil
	}
	t, err := s.parseBodyDate(field, raw.Value)
	if err != nil {
		return models.Nullable[time.Time]{}, err
	}
	return models.Nullable[time.Time]{Set: true, Value: t}, nil
}

// queryID reads an optional numeric id from the query string.
func queryID(c *gin.Context, name string) (*int64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number: %w", name, sqlite.ErrInvalid)
	}
	return &id, nil
}

// queryBool reads an optional boolean from the query string.
func queryBool(c *gin.Context, name string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false: %w", name, sqlite.ErrInvalid)
	}
	return &v, nil
}

// queryDate reads an optional date filter. Malformed values are ignored. A
// date-only upper bound covers that whole day.
func (s *Server) queryDate(c *gin.Context, name string, upper bool) *time.Time {
	raw := c.Query(name)
	t, ok := derive.ParseDate(raw, s.loc)
	if !ok {
		return nil
	}
	if upper && derive.IsDateOnly(raw) {
		t = derive.EndOfDay(t)
	}
	return &t
}
