// Package pipeline orchestrates the submission intake gauntlet: rate
// limiting, authentication, shape validation, spam verification,
// persistence, and a best-effort notification — in that order, with
// short-circuit failure and no retries.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/formroute/formroute/internal/auth"
	"github.com/formroute/formroute/internal/config"
	"github.com/formroute/formroute/internal/forms"
	"github.com/formroute/formroute/internal/notify"
	"github.com/formroute/formroute/internal/ratelimit"
	"github.com/formroute/formroute/internal/spam"
	"github.com/formroute/formroute/internal/storage"
)

// Request is one incoming submission attempt.
type Request struct {
	FormID      string
	Payload     map[string]any
	ClientIP    string
	UserAgent   string
	Credentials auth.Credentials
	AcceptsHTML bool
}

// Result is a successful intake outcome. A non-empty RedirectURL means
// the caller should be redirected instead of receiving the JSON body.
type Result struct {
	SubmissionID string
	Message      string
	RedirectURL  string
}

// Pipeline wires the intake stages together. Collaborators are injected;
// there is no process-wide state.
type Pipeline struct {
	repo     forms.Repository
	limiter  *ratelimit.Limiter
	guard    *spam.Guard
	adapters *storage.Registry
	notifier notify.Notifier
	timeouts config.TimeoutConfig
	log      *slog.Logger
	now      func() time.Time
}

func New(repo forms.Repository, limiter *ratelimit.Limiter, guard *spam.Guard, adapters *storage.Registry, notifier notify.Notifier, timeouts config.TimeoutConfig, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		repo:     repo,
		limiter:  limiter,
		guard:    guard,
		adapters: adapters,
		notifier: notifier,
		timeouts: timeouts,
		log:      log,
		now:      time.Now,
	}
}

// Submit runs a submission through the ordered stages. Exactly one
// persistence attempt occurs per request that reaches the storage stage;
// once it succeeds the submission is final regardless of what happens
// afterward.
func (p *Pipeline) Submit(ctx context.Context, req Request) (Result, error) {
	if dec := p.limiter.Check(req.ClientIP); !dec.Allowed {
		return Result{}, rateLimited(dec.RetryAfterSeconds)
	}

	form, err := p.repo.Get(ctx, req.FormID)
	if err != nil {
		if errors.Is(err, forms.ErrNotFound) {
			return Result{}, formNotFound()
		}
		p.log.ErrorContext(ctx, "form lookup failed", "form_id", req.FormID, "error", err)
		return Result{}, internalError()
	}

	if res := auth.Authenticate(req.Credentials, form); !res.Allowed {
		return Result{}, authDenied(res.Status, res.Reason)
	}

	if len(req.Payload) == 0 {
		return Result{}, validationFailed("No form data provided")
	}

	verifyCtx, cancel := context.WithTimeout(ctx, p.timeouts.CaptchaVerify)
	verdict := p.guard.Verify(verifyCtx, req.Payload, form.Spam)
	cancel()
	if !verdict.Accepted {
		return Result{}, spamRejected(verdict.Reason)
	}

	adapter := p.adapters.ForPolicy(form.Storage)
	meta := storage.ClientMetadata{
		IP:         req.ClientIP,
		UserAgent:  req.UserAgent,
		ReceivedAt: p.now().UTC(),
	}

	// The write is detached from the client's cancellation: a disconnect
	// must not abort a commit in flight. The timeout still bounds it.
	saveCtx, cancelSave := context.WithTimeout(context.WithoutCancel(ctx), p.timeouts.Storage)
	submissionID, err := adapter.Save(saveCtx, storage.SaveContext{FormID: form.ID, FormName: form.Name}, req.Payload, meta)
	cancelSave()
	if err != nil {
		var unsupported *storage.UnsupportedOperationError
		if errors.As(err, &unsupported) {
			return Result{}, unsupportedOperation(unsupported.Error(), unsupported.Suggestion)
		}
		p.log.ErrorContext(ctx, "submission save failed",
			"form_id", form.ID, "adapter", adapter.Type(), "error", err)
		return Result{}, storageFailure()
	}

	p.notify(ctx, form, req.Payload, submissionID)

	result := Result{SubmissionID: submissionID, Message: form.SuccessMessage}
	if form.RedirectURL != "" && req.AcceptsHTML {
		result.RedirectURL = form.RedirectURL
	}
	return result, nil
}

// notify dispatches the owner notification. Failures are logged and
// swallowed: the submission is already durable.
func (p *Pipeline) notify(ctx context.Context, form forms.Form, payload map[string]any, submissionID string) {
	if p.notifier == nil {
		return
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeouts.Notify)
	defer cancel()

	if err := p.notifier.Notify(notifyCtx, form, payload, submissionID); err != nil {
		p.log.WarnContext(ctx, "submission notification failed",
			"form_id", form.ID, "submission_id", submissionID, "error", err)
	}
}

// List returns a form's submissions newest first, after authenticating
// the caller against the form's policy.
func (p *Pipeline) List(ctx context.Context, formID string, creds auth.Credentials) ([]storage.Submission, error) {
	form, err := p.repo.Get(ctx, formID)
	if err != nil {
		if errors.Is(err, forms.ErrNotFound) {
			return nil, formNotFound()
		}
		p.log.ErrorContext(ctx, "form lookup failed", "form_id", formID, "error", err)
		return nil, internalError()
	}

	if res := auth.Authenticate(creds, form); !res.Allowed {
		return nil, authDenied(res.Status, res.Reason)
	}

	listCtx, cancel := context.WithTimeout(ctx, p.timeouts.Storage)
	defer cancel()

	subs, err := p.adapters.ForPolicy(form.Storage).List(listCtx, form.ID)
	if err != nil {
		var unsupported *storage.UnsupportedOperationError
		if errors.As(err, &unsupported) {
			return nil, unsupportedOperation(unsupported.Error(), unsupported.Suggestion)
		}
		p.log.ErrorContext(ctx, "submission listing failed", "form_id", form.ID, "error", err)
		return nil, internalError()
	}
	if subs == nil {
		subs = []storage.Submission{}
	}
	return subs, nil
}
