package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/formroute/formroute/internal/auth"
	"github.com/formroute/formroute/internal/pipeline"
)

// SubmitRoutes exposes the public intake endpoint and the owner-facing
// submission listing.
type SubmitRoutes struct {
	pipeline *pipeline.Pipeline
}

func NewSubmitRoutes(p *pipeline.Pipeline) *SubmitRoutes {
	return &SubmitRoutes{pipeline: p}
}

// RegisterRoutes registers submission endpoints.
func (s *SubmitRoutes) RegisterRoutes(e *echo.Echo) {
	e.POST("/submit/:formId", s.handleSubmit)
	e.GET("/forms/:formId/submissions", s.handleListSubmissions)
}

func (s *SubmitRoutes) handleSubmit(c echo.Context) error {
	payload, err := decodePayload(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error": "Invalid request body",
		})
	}

	result, err := s.pipeline.Submit(c.Request().Context(), pipeline.Request{
		FormID:      c.Param("formId"),
		Payload:     payload,
		ClientIP:    c.RealIP(),
		UserAgent:   c.Request().UserAgent(),
		Credentials: auth.CredentialsFromRequest(c.Request()),
		AcceptsHTML: wantsHTML(c),
	})
	if err != nil {
		return writeError(c, err)
	}

	if result.RedirectURL != "" {
		return c.Redirect(http.StatusSeeOther, result.RedirectURL)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":      true,
		"message":      result.Message,
		"submissionId": result.SubmissionID,
	})
}

func (s *SubmitRoutes) handleListSubmissions(c echo.Context) error {
	subs, err := s.pipeline.List(c.Request().Context(), c.Param("formId"),
		auth.CredentialsFromRequest(c.Request()))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"submissions": subs,
		"count":       len(subs),
	})
}
