package routes

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/formroute/formroute/internal/pipeline"
)

const maxPayloadBytes = 1 << 20

// decodePayload reads the submission body as JSON, urlencoded, or
// multipart form data. Repeated form fields keep all their values.
func decodePayload(c echo.Context) (map[string]any, error) {
	r := c.Request()
	r.Body = http.MaxBytesReader(c.Response(), r.Body, maxPayloadBytes)

	contentType, _, _ := mime.ParseMediaType(r.Header.Get(echo.HeaderContentType))
	if contentType == echo.MIMEApplicationJSON {
		payload := map[string]any{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return nil, err
		}
		return payload, nil
	}

	if contentType == echo.MIMEMultipartForm {
		if err := r.ParseMultipartForm(maxPayloadBytes); err != nil {
			return nil, err
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, err
	}

	payload := make(map[string]any, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) == 1 {
			payload[key] = values[0]
			continue
		}
		payload[key] = values
	}
	return payload, nil
}

// wantsHTML reports whether the caller is a browser form post rather
// than an API client. Drives the redirect-or-JSON response choice.
func wantsHTML(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
}

// writeError renders a pipeline failure as the JSON error body. Unknown
// errors collapse to a plain 500 so internals never reach the caller.
func writeError(c echo.Context, err error) error {
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"error": "Internal server error",
		})
	}

	body := map[string]any{"error": perr.Message}
	if perr.RetryAfterSeconds > 0 {
		body["retryAfter"] = perr.RetryAfterSeconds
		c.Response().Header().Set("Retry-After", strconv.Itoa(perr.RetryAfterSeconds))
	}
	if perr.Suggestion != "" {
		body["suggestion"] = perr.Suggestion
	}
	return c.JSON(perr.Status, body)
}
