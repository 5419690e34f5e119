package spam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/formroute/formroute/internal/forms"
)

func TestDisabledPolicyAcceptsEverything(t *testing.T) {
	t.Parallel()

	g := NewGuard(time.Second)
	v := g.Verify(context.Background(), map[string]any{"_gotcha": "spam"}, forms.SpamPolicy{Disabled: true})
	if !v.Accepted {
		t.Fatalf("expected acceptance, got %+v", v)
	}
}

func TestHoneypot(t *testing.T) {
	t.Parallel()

	g := NewGuard(time.Second)
	policy := forms.SpamPolicy{Honeypot: &forms.HoneypotPolicy{Field: "_gotcha"}}

	tests := []struct {
		name     string
		payload  map[string]any
		accepted bool
	}{
		{name: "field absent", payload: map[string]any{"name": "Ada"}, accepted: true},
		{name: "field empty", payload: map[string]any{"_gotcha": ""}, accepted: true},
		{name: "field whitespace", payload: map[string]any{"_gotcha": "   "}, accepted: true},
		{name: "field filled", payload: map[string]any{"_gotcha": "spam"}},
		{name: "field non-string", payload: map[string]any{"_gotcha": 42}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := g.Verify(context.Background(), tc.payload, policy)
			if v.Accepted != tc.accepted {
				t.Fatalf("accepted = %v, want %v (%+v)", v.Accepted, tc.accepted, v)
			}
			if !tc.accepted && v.Reason != "Honeypot triggered" {
				t.Fatalf("unexpected reason %q", v.Reason)
			}
		})
	}
}

func TestHoneypotEvaluatedBeforeCaptcha(t *testing.T) {
	t.Parallel()

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	g := NewGuard(time.Second, WithEndpoint(forms.CaptchaHcaptcha, srv.URL))
	policy := forms.SpamPolicy{
		Honeypot: &forms.HoneypotPolicy{},
		Captcha:  &forms.CaptchaPolicy{Provider: forms.CaptchaHcaptcha, Secret: "s"},
	}

	v := g.Verify(context.Background(), map[string]any{"_gotcha": "bot", "captcha_token": "tok"}, policy)
	if v.Accepted || v.Reason != "Honeypot triggered" {
		t.Fatalf("expected honeypot rejection, got %+v", v)
	}
	if called {
		t.Fatal("provider must not be consulted when the honeypot fires")
	}
}

func TestMissingTokenRejectsWithoutNetworkCall(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected network call")
	}))
	defer srv.Close()

	g := NewGuard(time.Second, WithEndpoint(forms.CaptchaTurnstile, srv.URL))
	policy := forms.SpamPolicy{Captcha: &forms.CaptchaPolicy{Provider: forms.CaptchaTurnstile, Secret: "s"}}

	v := g.Verify(context.Background(), map[string]any{"name": "Ada"}, policy)
	if v.Accepted || v.Reason != "CAPTCHA token missing" {
		t.Fatalf("expected missing-token rejection, got %+v", v)
	}
}

func TestBooleanProviderVerification(t *testing.T) {
	t.Parallel()

	for _, provider := range []string{forms.CaptchaRecaptchaV2, forms.CaptchaHcaptcha, forms.CaptchaTurnstile} {
		t.Run(provider, func(t *testing.T) {
			var gotSecret, gotToken string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := r.ParseForm(); err != nil {
					t.Errorf("parse form: %v", err)
				}
				gotSecret = r.PostFormValue("secret")
				gotToken = r.PostFormValue("response")
				w.Write([]byte(`{"success":true}`))
			}))
			defer srv.Close()

			g := NewGuard(time.Second, WithEndpoint(provider, srv.URL))
			policy := forms.SpamPolicy{Captcha: &forms.CaptchaPolicy{Provider: provider, Secret: "sec"}}

			v := g.Verify(context.Background(), map[string]any{"captcha_token": "tok"}, policy)
			if !v.Accepted {
				t.Fatalf("expected acceptance, got %+v", v)
			}
			if gotSecret != "sec" || gotToken != "tok" {
				t.Fatalf("provider got secret=%q token=%q", gotSecret, gotToken)
			}
		})
	}
}

func TestRecaptchaV3ScoreThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		minScore float64
		accepted bool
		reason   string
	}{
		{name: "above threshold", body: `{"success":true,"score":0.9}`, minScore: 0.5, accepted: true},
		{name: "at threshold", body: `{"success":true,"score":0.5}`, minScore: 0.5, accepted: true},
		{name: "below threshold", body: `{"success":true,"score":0.3}`, minScore: 0.5, reason: "CAPTCHA verification failed (score: 0.3)"},
		{name: "default threshold", body: `{"success":true,"score":0.4}`, reason: "CAPTCHA verification failed (score: 0.4)"},
		{name: "provider failure with score", body: `{"success":false,"score":0.1}`, minScore: 0.5, reason: "CAPTCHA verification failed (score: 0.1)"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			g := NewGuard(time.Second, WithEndpoint(forms.CaptchaRecaptchaV3, srv.URL))
			policy := forms.SpamPolicy{Captcha: &forms.CaptchaPolicy{
				Provider: forms.CaptchaRecaptchaV3,
				Secret:   "s",
				MinScore: tc.minScore,
			}}

			v := g.Verify(context.Background(), map[string]any{"captcha_token": "tok"}, policy)
			if v.Accepted != tc.accepted {
				t.Fatalf("accepted = %v, want %v (%+v)", v.Accepted, tc.accepted, v)
			}
			if !tc.accepted && v.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", v.Reason, tc.reason)
			}
		})
	}
}

func TestNetworkFailureIsFailClosed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	srv.Close() // refuse connections

	g := NewGuard(time.Second, WithEndpoint(forms.CaptchaHcaptcha, srv.URL))
	policy := forms.SpamPolicy{Captcha: &forms.CaptchaPolicy{Provider: forms.CaptchaHcaptcha, Secret: "s"}}

	v := g.Verify(context.Background(), map[string]any{"captcha_token": "tok"}, policy)
	if v.Accepted {
		t.Fatal("transport failure must reject the submission")
	}
	if !strings.Contains(v.Reason, "CAPTCHA verification failed") {
		t.Fatalf("unexpected reason %q", v.Reason)
	}
}

func TestVerificationTimeoutIsFailClosed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	g := NewGuard(50*time.Millisecond, WithEndpoint(forms.CaptchaRecaptchaV2, srv.URL))
	policy := forms.SpamPolicy{Captcha: &forms.CaptchaPolicy{Provider: forms.CaptchaRecaptchaV2, Secret: "s"}}

	v := g.Verify(context.Background(), map[string]any{"captcha_token": "tok"}, policy)
	if v.Accepted {
		t.Fatal("timed-out verification must reject the submission")
	}
}

func TestUnknownProviderRejected(t *testing.T) {
	t.Parallel()

	g := NewGuard(time.Second)
	policy := forms.SpamPolicy{Captcha: &forms.CaptchaPolicy{Provider: "frobcaptcha", Secret: "s"}}

	v := g.Verify(context.Background(), map[string]any{"captcha_token": "tok"}, policy)
	if v.Accepted || v.Reason != "Unknown CAPTCHA type" {
		t.Fatalf("expected unknown-provider rejection, got %+v", v)
	}
}
