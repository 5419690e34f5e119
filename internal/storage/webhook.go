package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/formroute/formroute/internal/forms"
)

// WebhookAdapter forwards each submission as a single JSON POST. Delivery
// is best-effort with exactly one attempt: a non-2xx response or transport
// failure is a storage failure, and nothing is retried. The variant is
// write-only.
type WebhookAdapter struct {
	typeTag    string
	webhookURL string
	headers    map[string]string
	client     *http.Client
}

func NewWebhookAdapter(webhookURL string, headers map[string]string, timeout time.Duration) *WebhookAdapter {
	return newWebhookAdapter(forms.StorageWebhook, webhookURL, headers, timeout)
}

// NewMakeWebhookAdapter targets a Make.com scenario webhook. Same wire
// behavior as the generic variant, kept as its own type tag for policy
// compatibility.
func NewMakeWebhookAdapter(webhookURL string, timeout time.Duration) *WebhookAdapter {
	return newWebhookAdapter(forms.StorageMakeWebhook, webhookURL, nil, timeout)
}

func newWebhookAdapter(typeTag, webhookURL string, headers map[string]string, timeout time.Duration) *WebhookAdapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookAdapter{
		typeTag:    typeTag,
		webhookURL: strings.TrimSpace(webhookURL),
		headers:    headers,
		client:     &http.Client{Timeout: timeout},
	}
}

var _ Adapter = (*WebhookAdapter)(nil)

func (a *WebhookAdapter) Type() string {
	return a.typeTag
}

type webhookEnvelope struct {
	FormID       string         `json:"formId"`
	FormName     string         `json:"formName,omitempty"`
	SubmissionID string         `json:"submissionId"`
	Data         map[string]any `json:"data"`
	Metadata     struct {
		IP        string `json:"ip,omitempty"`
		UserAgent string `json:"userAgent,omitempty"`
	} `json:"metadata"`
	Timestamp string `json:"timestamp"`
}

func (a *WebhookAdapter) Save(ctx context.Context, form SaveContext, payload map[string]any, meta ClientMetadata) (string, error) {
	if a.webhookURL == "" {
		return "", fmt.Errorf("%s adapter requires a webhook url", a.typeTag)
	}

	submittedAt := meta.ReceivedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}

	envelope := webhookEnvelope{
		FormID:       form.FormID,
		FormName:     form.FormName,
		SubmissionID: uuid.NewString(),
		Data:         payload,
		Timestamp:    submittedAt.UTC().Format(time.RFC3339),
	}
	envelope.Metadata.IP = meta.IP
	envelope.Metadata.UserAgent = meta.UserAgent

	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range a.headers {
		req.Header.Set(key, value)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook delivery failed with status %d", resp.StatusCode)
	}
	return envelope.SubmissionID, nil
}

func (a *WebhookAdapter) List(ctx context.Context, formID string) ([]Submission, error) {
	return nil, unsupportedList(a.typeTag)
}
