// Package spam verifies submissions against a form's spam policy: a local
// honeypot check followed by an optional CAPTCHA provider round trip.
package spam

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/formroute/formroute/internal/forms"
)

const (
	defaultHoneypotField = "_gotcha"
	defaultCaptchaField  = "captcha_token"
	defaultMinScore      = 0.5
)

// Verdict is the spam-verification outcome. Reason is set when the
// submission is rejected.
type Verdict struct {
	Accepted bool
	Reason   string
}

// Guard dispatches over the configured spam policy variants. CAPTCHA
// verification calls are bounded by the configured timeout and treated as
// failures when they do not complete: an indeterminate outcome rejects the
// submission.
type Guard struct {
	client    *http.Client
	endpoints map[string]string
}

type Option func(*Guard)

// WithEndpoint overrides a provider's verification URL. Test hook.
func WithEndpoint(provider, url string) Option {
	return func(g *Guard) { g.endpoints[provider] = url }
}

func WithHTTPClient(client *http.Client) Option {
	return func(g *Guard) { g.client = client }
}

func NewGuard(verifyTimeout time.Duration, opts ...Option) *Guard {
	if verifyTimeout <= 0 {
		verifyTimeout = 5 * time.Second
	}
	g := &Guard{
		client: &http.Client{Timeout: verifyTimeout},
		endpoints: map[string]string{
			forms.CaptchaRecaptchaV2: "https://www.google.com/recaptcha/api/siteverify",
			forms.CaptchaRecaptchaV3: "https://www.google.com/recaptcha/api/siteverify",
			forms.CaptchaHcaptcha:    "https://hcaptcha.com/siteverify",
			forms.CaptchaTurnstile:   "https://challenges.cloudflare.com/turnstile/v0/siteverify",
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Verify checks the payload against the policy. The honeypot is always
// evaluated first when configured; only then is the CAPTCHA provider
// consulted.
func (g *Guard) Verify(ctx context.Context, payload map[string]any, policy forms.SpamPolicy) Verdict {
	if policy.Disabled {
		return Verdict{Accepted: true}
	}

	if policy.Honeypot != nil {
		field := policy.Honeypot.Field
		if field == "" {
			field = defaultHoneypotField
		}
		if !honeypotClean(payload, field) {
			return Verdict{Reason: "Honeypot triggered"}
		}
	}

	if policy.Captcha != nil {
		return g.verifyCaptcha(ctx, payload, *policy.Captcha)
	}

	return Verdict{Accepted: true}
}

// honeypotClean reports whether the designated field is absent or contains
// only whitespace.
func honeypotClean(payload map[string]any, field string) bool {
	value, ok := payload[field]
	if !ok || value == nil {
		return true
	}
	s, ok := value.(string)
	if !ok {
		return false
	}
	return strings.TrimSpace(s) == ""
}

func (g *Guard) verifyCaptcha(ctx context.Context, payload map[string]any, policy forms.CaptchaPolicy) Verdict {
	field := policy.Field
	if field == "" {
		field = defaultCaptchaField
	}

	token := stringValue(payload[field])
	if token == "" {
		// No network call for a missing token.
		return Verdict{Reason: "CAPTCHA token missing"}
	}

	provider := strings.ToLower(strings.TrimSpace(policy.Provider))
	endpoint, ok := g.endpoints[provider]
	if !ok {
		return Verdict{Reason: "Unknown CAPTCHA type"}
	}

	result, err := g.siteVerify(ctx, endpoint, policy.Secret, token)
	if err != nil {
		// Fail closed: a timeout or transport error rejects the submission.
		return Verdict{Reason: "CAPTCHA verification failed"}
	}

	success := result.Success
	if provider == forms.CaptchaRecaptchaV3 {
		minScore := policy.MinScore
		if minScore <= 0 {
			minScore = defaultMinScore
		}
		success = success && result.Score != nil && *result.Score >= minScore
	}

	if !success {
		reason := "CAPTCHA verification failed"
		if result.Score != nil {
			reason = fmt.Sprintf("%s (score: %g)", reason, *result.Score)
		}
		return Verdict{Reason: reason}
	}
	return Verdict{Accepted: true}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
