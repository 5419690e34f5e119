package routes

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/formroute/formroute/internal/config"
	"github.com/formroute/formroute/internal/db"
	"github.com/formroute/formroute/internal/forms"
	"github.com/formroute/formroute/internal/pipeline"
	"github.com/formroute/formroute/internal/ratelimit"
	"github.com/formroute/formroute/internal/spam"
	"github.com/formroute/formroute/internal/storage"
)

func newTestHandler(t *testing.T) (*echo.Echo, forms.Repository) {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "routes-test"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	repo := forms.NewSQLiteRepository(database)
	timeouts := config.TimeoutConfig{
		CaptchaVerify: time.Second,
		Storage:       time.Second,
		Notify:        time.Second,
	}
	p := pipeline.New(repo, ratelimit.New(10, 15*time.Minute), spam.NewGuard(time.Second),
		storage.NewRegistry(database, time.Second), nil, timeouts, slog.Default())

	e := echo.New()
	NewSubmitRoutes(p).RegisterRoutes(e)
	NewFormRoutes(repo, "https://forms.example.com").RegisterRoutes(e)
	NewHealthRoutes(database).RegisterRoutes(e)
	return e, repo
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestCreateFormReturnsSubmitURL(t *testing.T) {
	t.Parallel()

	e, _ := newTestHandler(t)
	rec := doJSON(t, e, http.MethodPost, "/forms",
		`{"name":"Contact","apiKey":"secret-key","termsVersion":"2025-01"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	form := body["form"].(map[string]any)
	id, _ := form["id"].(string)
	if id == "" {
		t.Fatal("expected a form id")
	}
	if got := body["submitUrl"]; got != "https://forms.example.com/submit/"+id {
		t.Fatalf("unexpected submitUrl %v", got)
	}
	if strings.Contains(rec.Body.String(), "secret-key") {
		t.Fatal("API key must not appear in the response")
	}
}

func TestCreateFormValidation(t *testing.T) {
	t.Parallel()

	e, _ := newTestHandler(t)
	for name, body := range map[string]string{
		"missing name":    `{"successMessage":"hi"}`,
		"unknown storage": `{"name":"X","database":{"type":"dynamo"}}`,
		"unknown captcha": `{"name":"X","spamProtection":{"captcha":{"type":"funcaptcha","secret":"s"}}}`,
		"missing secret":  `{"name":"X","spamProtection":{"captcha":{"type":"turnstile"}}}`,
	} {
		rec := doJSON(t, e, http.MethodPost, "/forms", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d: %s", name, rec.Code, rec.Body.String())
		}
	}
}

func TestFormLifecycle(t *testing.T) {
	t.Parallel()

	e, _ := newTestHandler(t)
	rec := doJSON(t, e, http.MethodPost, "/forms", `{"name":"Contact"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}
	id := decodeBody(t, rec)["form"].(map[string]any)["id"].(string)

	rec = doJSON(t, e, http.MethodGet, "/forms/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}

	rec = doJSON(t, e, http.MethodPut, "/forms/"+id, `{"name":"Renamed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d: %s", rec.Code, rec.Body.String())
	}
	form := decodeBody(t, rec)["form"].(map[string]any)
	if form["name"] != "Renamed" {
		t.Fatalf("expected renamed form, got %v", form["name"])
	}

	rec = doJSON(t, e, http.MethodGet, "/forms", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	if count := decodeBody(t, rec)["count"].(float64); count != 1 {
		t.Fatalf("expected 1 form, got %v", count)
	}

	rec = doJSON(t, e, http.MethodDelete, "/forms/"+id, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}

	rec = doJSON(t, e, http.MethodGet, "/forms/"+id, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rec.Code)
	}
}

func TestSubmitFormEncoded(t *testing.T) {
	t.Parallel()

	e, repo := newTestHandler(t)
	form, err := repo.Create(context.Background(), forms.Form{Name: "Contact", SuccessMessage: "Thanks!"})
	if err != nil {
		t.Fatalf("create form: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/submit/"+form.ID,
		strings.NewReader("name=Ada&email=ada%40example.com"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true || body["message"] != "Thanks!" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["submissionId"] == "" {
		t.Fatal("expected submission id")
	}
}

func TestSubmitJSON(t *testing.T) {
	t.Parallel()

	e, repo := newTestHandler(t)
	form, err := repo.Create(context.Background(), forms.Form{Name: "Contact"})
	if err != nil {
		t.Fatalf("create form: %v", err)
	}

	rec := doJSON(t, e, http.MethodPost, "/submit/"+form.ID, `{"name":"Ada","tags":["a","b"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitRedirectsBrowsers(t *testing.T) {
	t.Parallel()

	e, repo := newTestHandler(t)
	form, err := repo.Create(context.Background(), forms.Form{
		Name:        "Contact",
		RedirectURL: "https://example.com/thanks",
	})
	if err != nil {
		t.Fatalf("create form: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/submit/"+form.ID, strings.NewReader("name=Ada"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set(echo.HeaderAccept, "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "https://example.com/thanks" {
		t.Fatalf("unexpected location %q", loc)
	}
}

func TestSubmitHoneypotRejected(t *testing.T) {
	t.Parallel()

	e, repo := newTestHandler(t)
	form, err := repo.Create(context.Background(), forms.Form{
		Name: "Contact",
		Spam: forms.SpamPolicy{Honeypot: &forms.HoneypotPolicy{Field: "_gotcha"}},
	})
	if err != nil {
		t.Fatalf("create form: %v", err)
	}

	rec := doJSON(t, e, http.MethodPost, "/submit/"+form.ID, `{"name":"Bob","_gotcha":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "Honeypot triggered" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestSubmitUnknownForm(t *testing.T) {
	t.Parallel()

	e, _ := newTestHandler(t)
	rec := doJSON(t, e, http.MethodPost, "/submit/nope", `{"name":"Ada"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListSubmissionsRequiresAPIKey(t *testing.T) {
	t.Parallel()

	e, repo := newTestHandler(t)
	form, err := repo.Create(context.Background(), forms.Form{Name: "Contact", APIKey: "k1"})
	if err != nil {
		t.Fatalf("create form: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/submit/"+form.ID, strings.NewReader(`{"name":"Ada"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Api-Key", "k1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, e, http.MethodGet, "/forms/"+form.ID+"/submissions", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/forms/"+form.ID+"/submissions", nil)
	req.Header.Set("X-Api-Key", "k1")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", rec.Code)
	}
	if count := decodeBody(t, rec)["count"].(float64); count != 1 {
		t.Fatalf("expected 1 submission, got %v", count)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	e, _ := newTestHandler(t)
	rec := doJSON(t, e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
