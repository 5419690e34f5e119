// Package notify delivers best-effort owner notifications for accepted
// submissions. A notification failure never changes the outcome of the
// submission that triggered it.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gsoultan/gsmail"
	"github.com/gsoultan/gsmail/smtp"

	"github.com/formroute/formroute/internal/config"
	"github.com/formroute/formroute/internal/forms"
)

// Notifier dispatches one notification for a stored submission.
type Notifier interface {
	Notify(ctx context.Context, form forms.Form, payload map[string]any, submissionID string) error
}

// Sender is the transport slice of gsmail the notifier needs. Narrowed
// for tests.
type Sender interface {
	Send(ctx context.Context, email gsmail.Email) error
}

// EmailNotifier sends an HTML summary over SMTP. Process-wide transport
// settings come from config; a form's notifier policy overrides the
// recipient and the message template.
type EmailNotifier struct {
	cfg    config.SMTPConfig
	sender Sender
}

func NewEmailNotifier(cfg config.SMTPConfig) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		sender: smtp.NewSender(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.SSL),
	}
}

// NewEmailNotifierWithSender injects the transport. Test hook.
func NewEmailNotifierWithSender(cfg config.SMTPConfig, sender Sender) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, sender: sender}
}

var _ Notifier = (*EmailNotifier)(nil)

func (n *EmailNotifier) Notify(ctx context.Context, form forms.Form, payload map[string]any, submissionID string) error {
	if !n.cfg.Enabled() {
		return nil
	}

	to := n.cfg.To
	template := ""
	if form.Notifier != nil {
		if form.Notifier.To != "" {
			to = form.Notifier.To
		}
		template = form.Notifier.Template
	}
	if to == "" {
		return nil
	}

	email := gsmail.Email{
		From:    n.cfg.From,
		To:      []string{to},
		Subject: fmt.Sprintf("New submission from %s", form.Name),
		Body:    []byte(RenderBody(template, form, payload, submissionID)),
	}
	if err := n.sender.Send(ctx, email); err != nil {
		return fmt.Errorf("send notification email: %w", err)
	}
	return nil
}

// RenderBody fills a form-owner template, or generates a field table when
// no template is configured. Template placeholders are {{fieldName}},
// {{submissionId}} and {{formName}}.
func RenderBody(template string, form forms.Form, payload map[string]any, submissionID string) string {
	if strings.TrimSpace(template) != "" {
		out := template
		for key, value := range payload {
			out = strings.ReplaceAll(out, "{{"+key+"}}", fieldString(value))
		}
		out = strings.ReplaceAll(out, "{{submissionId}}", submissionID)
		out = strings.ReplaceAll(out, "{{formName}}", form.Name)
		return out
	}

	var b strings.Builder
	b.WriteString("<h2>New Form Submission</h2>\n")
	fmt.Fprintf(&b, "<p><strong>Form:</strong> %s</p>\n", htmlEscape(form.Name))
	fmt.Fprintf(&b, "<p><strong>Submission ID:</strong> %s</p>\n", htmlEscape(submissionID))
	b.WriteString("<h3>Data:</h3>\n<table>\n")
	for _, key := range sortedKeys(payload) {
		fmt.Fprintf(&b, "<tr><td><strong>%s</strong></td><td>%s</td></tr>\n",
			htmlEscape(key), htmlEscape(fieldString(payload[key])))
	}
	b.WriteString("</table>\n")
	return b.String()
}

func sortedKeys(payload map[string]any) []string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func fieldString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func htmlEscape(s string) string {
	return htmlEscaper.Replace(s)
}
