package forms

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/formroute/formroute/internal/db"
)

// SQLiteRepository persists form definitions in the shared embedded
// database.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(database *db.Database) *SQLiteRepository {
	return &SQLiteRepository{db: database.DB()}
}

var _ Repository = (*SQLiteRepository)(nil)

func (r *SQLiteRepository) Create(ctx context.Context, form Form) (Form, error) {
	if strings.TrimSpace(form.Name) == "" {
		return Form{}, fmt.Errorf("form name is required")
	}
	if form.ID == "" {
		form.ID = uuid.NewString()
	}
	if form.SuccessMessage == "" {
		form.SuccessMessage = "Thank you for your submission!"
	}
	if form.Storage.Type == "" {
		form.Storage.Type = StorageSQLite
	}
	if form.CreatedAt.IsZero() {
		form.CreatedAt = time.Now().UTC()
	}

	domains, spam, storage, notifier, err := marshalPolicies(form)
	if err != nil {
		return Form{}, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO forms (
			id, name, success_message, redirect_url, api_key, allowed_domains,
			spam_policy, storage_policy, notifier_policy,
			consent_timestamp, consent_ip, terms_version, privacy_version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		form.ID, form.Name, form.SuccessMessage, nullable(form.RedirectURL),
		nullable(form.APIKey), domains, spam, storage, notifier,
		nullable(form.Consent.Timestamp.Format(time.RFC3339)),
		nullable(form.Consent.IP), nullable(form.Consent.TermsVersion),
		nullable(form.Consent.PrivacyVersion), form.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return Form{}, fmt.Errorf("insert form: %w", err)
	}
	return form, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (Form, error) {
	row := r.db.QueryRowContext(ctx, selectForms+" WHERE id = ?", id)
	form, err := scanForm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Form{}, ErrNotFound
	}
	return form, err
}

func (r *SQLiteRepository) List(ctx context.Context) ([]Form, error) {
	rows, err := r.db.QueryContext(ctx, selectForms+" ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	defer rows.Close()

	var out []Form
	for rows.Next() {
		form, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, form)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Update(ctx context.Context, form Form) (Form, error) {
	domains, spam, storage, notifier, err := marshalPolicies(form)
	if err != nil {
		return Form{}, err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE forms SET
			name = ?, success_message = ?, redirect_url = ?, api_key = ?,
			allowed_domains = ?, spam_policy = ?, storage_policy = ?, notifier_policy = ?
		WHERE id = ?`,
		form.Name, form.SuccessMessage, nullable(form.RedirectURL), nullable(form.APIKey),
		domains, spam, storage, notifier, form.ID,
	)
	if err != nil {
		return Form{}, fmt.Errorf("update form: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Form{}, err
	}
	if affected == 0 {
		return Form{}, ErrNotFound
	}
	return r.Get(ctx, form.ID)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM forms WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const selectForms = `
	SELECT id, name, success_message, redirect_url, api_key, allowed_domains,
	       spam_policy, storage_policy, notifier_policy,
	       consent_timestamp, consent_ip, terms_version, privacy_version, created_at
	FROM forms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanForm(row rowScanner) (Form, error) {
	var (
		form                                 Form
		redirectURL, apiKey                  sql.NullString
		domains, spam, storage               string
		notifier                             sql.NullString
		consentAt, consentIP, terms, privacy sql.NullString
		createdAt                            string
	)

	err := row.Scan(
		&form.ID, &form.Name, &form.SuccessMessage, &redirectURL, &apiKey,
		&domains, &spam, &storage, &notifier,
		&consentAt, &consentIP, &terms, &privacy, &createdAt,
	)
	if err != nil {
		return Form{}, err
	}

	form.RedirectURL = redirectURL.String
	form.APIKey = apiKey.String
	form.Consent.IP = consentIP.String
	form.Consent.TermsVersion = terms.String
	form.Consent.PrivacyVersion = privacy.String

	if err := json.Unmarshal([]byte(domains), &form.AllowedDomains); err != nil {
		return Form{}, fmt.Errorf("decode allowed domains: %w", err)
	}
	if err := unmarshalSpamPolicy(spam, &form.Spam); err != nil {
		return Form{}, err
	}
	if err := unmarshalStoragePolicy(storage, &form.Storage); err != nil {
		return Form{}, err
	}
	if notifier.Valid && notifier.String != "" {
		var np NotifierPolicy
		if err := json.Unmarshal([]byte(notifier.String), &np); err != nil {
			return Form{}, fmt.Errorf("decode notifier policy: %w", err)
		}
		form.Notifier = &np
	}
	if consentAt.Valid && consentAt.String != "" {
		if ts, err := time.Parse(time.RFC3339, consentAt.String); err == nil {
			form.Consent.Timestamp = ts
		}
	}
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		form.CreatedAt = ts
	}

	return form, nil
}

// storedSpamPolicy and storedStoragePolicy carry secrets that the public
// JSON shapes deliberately omit.
type storedSpamPolicy struct {
	Disabled bool            `json:"disabled,omitempty"`
	Honeypot *HoneypotPolicy `json:"honeypot,omitempty"`
	Captcha  *storedCaptcha  `json:"captcha,omitempty"`
}

type storedCaptcha struct {
	Provider string  `json:"type"`
	Secret   string  `json:"secret,omitempty"`
	Field    string  `json:"field,omitempty"`
	MinScore float64 `json:"minScore,omitempty"`
}

type storedStoragePolicy struct {
	Type        string            `json:"type"`
	URL         string            `json:"url,omitempty"`
	AuthToken   string            `json:"authToken,omitempty"`
	SheetID     string            `json:"sheetId,omitempty"`
	Credentials json.RawMessage   `json:"credentials,omitempty"`
	WebhookURL  string            `json:"webhookUrl,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

func marshalPolicies(form Form) (domains, spam, storage string, notifier sql.NullString, err error) {
	domainList := form.AllowedDomains
	if domainList == nil {
		domainList = []string{}
	}
	rawDomains, err := json.Marshal(domainList)
	if err != nil {
		return "", "", "", sql.NullString{}, fmt.Errorf("encode allowed domains: %w", err)
	}

	sp := storedSpamPolicy{Disabled: form.Spam.Disabled, Honeypot: form.Spam.Honeypot}
	if form.Spam.Captcha != nil {
		sp.Captcha = &storedCaptcha{
			Provider: form.Spam.Captcha.Provider,
			Secret:   form.Spam.Captcha.Secret,
			Field:    form.Spam.Captcha.Field,
			MinScore: form.Spam.Captcha.MinScore,
		}
	}
	rawSpam, err := json.Marshal(sp)
	if err != nil {
		return "", "", "", sql.NullString{}, fmt.Errorf("encode spam policy: %w", err)
	}

	rawStorage, err := json.Marshal(storedStoragePolicy{
		Type:        form.Storage.Type,
		URL:         form.Storage.URL,
		AuthToken:   form.Storage.AuthToken,
		SheetID:     form.Storage.SheetID,
		Credentials: form.Storage.Credentials,
		WebhookURL:  form.Storage.WebhookURL,
		Headers:     form.Storage.Headers,
	})
	if err != nil {
		return "", "", "", sql.NullString{}, fmt.Errorf("encode storage policy: %w", err)
	}

	if form.Notifier != nil {
		rawNotifier, err := json.Marshal(form.Notifier)
		if err != nil {
			return "", "", "", sql.NullString{}, fmt.Errorf("encode notifier policy: %w", err)
		}
		notifier = sql.NullString{String: string(rawNotifier), Valid: true}
	}

	return string(rawDomains), string(rawSpam), string(rawStorage), notifier, nil
}

func unmarshalSpamPolicy(raw string, out *SpamPolicy) error {
	var sp storedSpamPolicy
	if err := json.Unmarshal([]byte(raw), &sp); err != nil {
		return fmt.Errorf("decode spam policy: %w", err)
	}
	out.Disabled = sp.Disabled
	out.Honeypot = sp.Honeypot
	if sp.Captcha != nil {
		out.Captcha = &CaptchaPolicy{
			Provider: sp.Captcha.Provider,
			Secret:   sp.Captcha.Secret,
			Field:    sp.Captcha.Field,
			MinScore: sp.Captcha.MinScore,
		}
	}
	return nil
}

func unmarshalStoragePolicy(raw string, out *StoragePolicy) error {
	var sp storedStoragePolicy
	if err := json.Unmarshal([]byte(raw), &sp); err != nil {
		return fmt.Errorf("decode storage policy: %w", err)
	}
	out.Type = sp.Type
	out.URL = sp.URL
	out.AuthToken = sp.AuthToken
	out.SheetID = sp.SheetID
	out.Credentials = sp.Credentials
	out.WebhookURL = sp.WebhookURL
	out.Headers = sp.Headers
	return nil
}

func nullable(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
