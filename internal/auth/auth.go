// Package auth implements the stateless capability checks a submission
// must pass: an exact-match API key and an Origin/Referer domain
// allowlist.
package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/formroute/formroute/internal/forms"
)

// Credentials are the caller-presented values extracted from a request.
type Credentials struct {
	APIKey  string
	Origin  string
	Referer string
}

// Result reports the authentication outcome. Status and Reason are only
// meaningful when Allowed is false.
type Result struct {
	Allowed bool
	Status  int
	Reason  string
}

// CredentialsFromRequest pulls the API key from the X-Api-Key header or
// api_key query parameter, plus the Origin and Referer headers.
func CredentialsFromRequest(r *http.Request) Credentials {
	key := strings.TrimSpace(r.Header.Get("X-Api-Key"))
	if key == "" {
		key = strings.TrimSpace(r.URL.Query().Get("api_key"))
	}
	return Credentials{
		APIKey:  key,
		Origin:  strings.TrimSpace(r.Header.Get("Origin")),
		Referer: strings.TrimSpace(r.Header.Get("Referer")),
	}
}

// Authenticate evaluates both gates in order, first failure wins. It is
// pure: no side effects, no clock, no network.
func Authenticate(creds Credentials, form forms.Form) Result {
	if res := checkAPIKey(creds, form); !res.Allowed {
		return res
	}
	return checkDomain(creds, form)
}

func checkAPIKey(creds Credentials, form forms.Form) Result {
	if form.APIKey == "" {
		return Result{Allowed: true}
	}
	if creds.APIKey == "" {
		return Result{Status: http.StatusUnauthorized, Reason: "API key required"}
	}
	if creds.APIKey != form.APIKey {
		return Result{Status: http.StatusForbidden, Reason: "Invalid API key"}
	}
	return Result{Allowed: true}
}

func checkDomain(creds Credentials, form forms.Form) Result {
	if len(form.AllowedDomains) == 0 {
		return Result{Allowed: true}
	}

	origin := creds.Origin
	if origin == "" {
		origin = creds.Referer
	}
	if origin == "" {
		return Result{Status: http.StatusForbidden, Reason: "Origin header required"}
	}

	host := hostname(origin)
	if host == "" {
		return Result{Status: http.StatusForbidden, Reason: "Domain not allowed"}
	}
	for _, allowed := range form.AllowedDomains {
		if strings.EqualFold(host, strings.TrimSpace(allowed)) {
			return Result{Allowed: true}
		}
	}
	return Result{Status: http.StatusForbidden, Reason: "Domain not allowed"}
}

func hostname(origin string) string {
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
