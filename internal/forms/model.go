package forms

import (
	"encoding/json"
	"strings"
	"time"
)

// Storage policy type tags. A closed enumeration; adapter selection
// dispatches over these.
const (
	StorageSQLite       = "sqlite"
	StorageTurso        = "turso"
	StorageGoogleSheets = "google_sheets"
	StorageWebhook      = "webhook"
	StorageMakeWebhook  = "make_webhook"
)

// CAPTCHA provider tags.
const (
	CaptchaRecaptchaV2 = "recaptcha_v2"
	CaptchaRecaptchaV3 = "recaptcha_v3"
	CaptchaHcaptcha    = "hcaptcha"
	CaptchaTurnstile   = "turnstile"
)

// Form is the definition and policy snapshot for one form. The submission
// pipeline treats it as immutable for the duration of a request.
type Form struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	SuccessMessage string          `json:"successMessage"`
	RedirectURL    string          `json:"redirectUrl,omitempty"`
	APIKey         string          `json:"-"`
	AllowedDomains []string        `json:"allowedDomains,omitempty"`
	Spam           SpamPolicy      `json:"spamProtection"`
	Storage        StoragePolicy   `json:"database"`
	Notifier       *NotifierPolicy `json:"notifier,omitempty"`
	Consent        ConsentRecord   `json:"consent"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// SpamPolicy selects the spam verification variant: disabled, honeypot
// only, or honeypot plus CAPTCHA.
type SpamPolicy struct {
	Disabled bool            `json:"disabled,omitempty"`
	Honeypot *HoneypotPolicy `json:"honeypot,omitempty"`
	Captcha  *CaptchaPolicy  `json:"captcha,omitempty"`
}

type HoneypotPolicy struct {
	Field string `json:"field,omitempty"`
}

type CaptchaPolicy struct {
	Provider string  `json:"type"`
	Secret   string  `json:"-"`
	Field    string  `json:"field,omitempty"`
	MinScore float64 `json:"minScore,omitempty"`
}

// StoragePolicy selects the storage adapter variant together with its
// adapter-specific settings. Exactly one variant is active per form.
type StoragePolicy struct {
	Type string `json:"type"`

	// turso
	URL       string `json:"url,omitempty"`
	AuthToken string `json:"-"`

	// google_sheets
	SheetID     string          `json:"sheetId,omitempty"`
	Credentials json.RawMessage `json:"-"`

	// webhook / make_webhook
	WebhookURL string            `json:"webhookUrl,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// NotifierPolicy overrides the process-wide notification defaults for one
// form.
type NotifierPolicy struct {
	To       string `json:"to,omitempty"`
	Template string `json:"template,omitempty"`
}

// ConsentRecord is captured once at form-creation time.
type ConsentRecord struct {
	Timestamp      time.Time `json:"consentTimestamp"`
	IP             string    `json:"consentIp"`
	TermsVersion   string    `json:"termsVersion"`
	PrivacyVersion string    `json:"privacyVersion"`
}

// KnownStorageType reports whether the type tag names a supported adapter
// variant. Form creation rejects unknown tags; adapter selection for an
// already-stored form still falls back to sqlite.
func KnownStorageType(t string) bool {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case StorageSQLite, StorageTurso, StorageGoogleSheets, StorageWebhook, StorageMakeWebhook:
		return true
	default:
		return false
	}
}

// KnownCaptchaProvider reports whether the provider tag is supported.
func KnownCaptchaProvider(p string) bool {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case CaptchaRecaptchaV2, CaptchaRecaptchaV3, CaptchaHcaptcha, CaptchaTurnstile:
		return true
	default:
		return false
	}
}
