package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/formroute/formroute/internal/forms"
)

// FormRoutes exposes the form registry management API.
type FormRoutes struct {
	repo      forms.Repository
	publicURL string
}

func NewFormRoutes(repo forms.Repository, publicURL string) *FormRoutes {
	return &FormRoutes{repo: repo, publicURL: strings.TrimRight(publicURL, "/")}
}

// RegisterRoutes registers form management endpoints.
func (f *FormRoutes) RegisterRoutes(e *echo.Echo) {
	e.POST("/forms", f.handleCreate)
	e.GET("/forms", f.handleList)
	e.GET("/forms/:formId", f.handleGet)
	e.PUT("/forms/:formId", f.handleUpdate)
	e.DELETE("/forms/:formId", f.handleDelete)
}

// formRequest is the management-API shape of a form. Unlike the stored
// model's public JSON it carries the write-only secrets.
type formRequest struct {
	Name           string   `json:"name"`
	SuccessMessage string   `json:"successMessage"`
	RedirectURL    string   `json:"redirectUrl"`
	APIKey         string   `json:"apiKey"`
	AllowedDomains []string `json:"allowedDomains"`

	SpamProtection *struct {
		Disabled bool `json:"disabled"`
		Honeypot *struct {
			Field string `json:"field"`
		} `json:"honeypot"`
		Captcha *struct {
			Type     string  `json:"type"`
			Secret   string  `json:"secret"`
			Field    string  `json:"field"`
			MinScore float64 `json:"minScore"`
		} `json:"captcha"`
	} `json:"spamProtection"`

	Database *struct {
		Type        string            `json:"type"`
		URL         string            `json:"url"`
		AuthToken   string            `json:"authToken"`
		SheetID     string            `json:"sheetId"`
		Credentials json.RawMessage   `json:"credentials"`
		WebhookURL  string            `json:"webhookUrl"`
		Headers     map[string]string `json:"headers"`
	} `json:"database"`

	Notifier *struct {
		To       string `json:"to"`
		Template string `json:"template"`
	} `json:"notifier"`

	TermsVersion   string `json:"termsVersion"`
	PrivacyVersion string `json:"privacyVersion"`
}

func (r formRequest) toForm() (forms.Form, error) {
	if strings.TrimSpace(r.Name) == "" {
		return forms.Form{}, errors.New("Form name is required")
	}

	form := forms.Form{
		Name:           strings.TrimSpace(r.Name),
		SuccessMessage: r.SuccessMessage,
		RedirectURL:    r.RedirectURL,
		APIKey:         r.APIKey,
		AllowedDomains: r.AllowedDomains,
	}

	if r.SpamProtection != nil {
		form.Spam.Disabled = r.SpamProtection.Disabled
		if r.SpamProtection.Honeypot != nil {
			form.Spam.Honeypot = &forms.HoneypotPolicy{Field: r.SpamProtection.Honeypot.Field}
		}
		if captcha := r.SpamProtection.Captcha; captcha != nil {
			if !forms.KnownCaptchaProvider(captcha.Type) {
				return forms.Form{}, fmt.Errorf("Unknown CAPTCHA type: %s", captcha.Type)
			}
			if strings.TrimSpace(captcha.Secret) == "" {
				return forms.Form{}, errors.New("CAPTCHA secret is required")
			}
			form.Spam.Captcha = &forms.CaptchaPolicy{
				Provider: strings.ToLower(strings.TrimSpace(captcha.Type)),
				Secret:   captcha.Secret,
				Field:    captcha.Field,
				MinScore: captcha.MinScore,
			}
		}
	}

	if r.Database != nil {
		if r.Database.Type != "" && !forms.KnownStorageType(r.Database.Type) {
			return forms.Form{}, fmt.Errorf("Unknown storage type: %s", r.Database.Type)
		}
		form.Storage = forms.StoragePolicy{
			Type:        strings.ToLower(strings.TrimSpace(r.Database.Type)),
			URL:         r.Database.URL,
			AuthToken:   r.Database.AuthToken,
			SheetID:     r.Database.SheetID,
			Credentials: r.Database.Credentials,
			WebhookURL:  r.Database.WebhookURL,
			Headers:     r.Database.Headers,
		}
	}

	if r.Notifier != nil {
		form.Notifier = &forms.NotifierPolicy{To: r.Notifier.To, Template: r.Notifier.Template}
	}

	return form, nil
}

func (f *FormRoutes) handleCreate(c echo.Context) error {
	var req formRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "Invalid request body"})
	}

	form, err := req.toForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": err.Error()})
	}

	form.Consent = forms.ConsentRecord{
		Timestamp:      time.Now().UTC(),
		IP:             c.RealIP(),
		TermsVersion:   req.TermsVersion,
		PrivacyVersion: req.PrivacyVersion,
	}

	created, err := f.repo.Create(c.Request().Context(), form)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "Failed to create form"})
	}

	return c.JSON(http.StatusCreated, f.formResponse(created))
}

func (f *FormRoutes) handleList(c echo.Context) error {
	all, err := f.repo.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "Failed to list forms"})
	}

	out := make([]map[string]any, 0, len(all))
	for _, form := range all {
		out = append(out, f.formResponse(form))
	}
	return c.JSON(http.StatusOK, map[string]any{"forms": out, "count": len(out)})
}

func (f *FormRoutes) handleGet(c echo.Context) error {
	form, err := f.repo.Get(c.Request().Context(), c.Param("formId"))
	if err != nil {
		if errors.Is(err, forms.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]any{"error": "Form not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "Failed to load form"})
	}
	return c.JSON(http.StatusOK, f.formResponse(form))
}

func (f *FormRoutes) handleUpdate(c echo.Context) error {
	existing, err := f.repo.Get(c.Request().Context(), c.Param("formId"))
	if err != nil {
		if errors.Is(err, forms.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]any{"error": "Form not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "Failed to load form"})
	}

	var req formRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "Invalid request body"})
	}

	form, err := req.toForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": err.Error()})
	}

	// Identity and consent are fixed at creation time.
	form.ID = existing.ID
	form.Consent = existing.Consent
	form.CreatedAt = existing.CreatedAt

	updated, err := f.repo.Update(c.Request().Context(), form)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "Failed to update form"})
	}
	return c.JSON(http.StatusOK, f.formResponse(updated))
}

func (f *FormRoutes) handleDelete(c echo.Context) error {
	if err := f.repo.Delete(c.Request().Context(), c.Param("formId")); err != nil {
		if errors.Is(err, forms.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]any{"error": "Form not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "Failed to delete form"})
	}
	return c.NoContent(http.StatusNoContent)
}

// formResponse wraps the public form JSON with the ready-to-use intake
// endpoint URL.
func (f *FormRoutes) formResponse(form forms.Form) map[string]any {
	return map[string]any{
		"form":      form,
		"submitUrl": fmt.Sprintf("%s/submit/%s", f.publicURL, form.ID),
	}
}
