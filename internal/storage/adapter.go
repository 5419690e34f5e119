// Package storage provides the polymorphic persistence strategies a form
// can select: the embedded SQLite store, the Turso remote store, a Google
// Sheets append, or a generic webhook forward. The submission id is
// assigned here, at the moment of a successful write, never earlier.
package storage

import (
	"context"
	"fmt"
	"time"
)

// ClientMetadata accompanies every saved submission.
type ClientMetadata struct {
	IP         string
	UserAgent  string
	ReceivedAt time.Time
}

// Submission is one accepted intake event as returned by a listing
// adapter.
type Submission struct {
	ID          string         `json:"id"`
	FormID      string         `json:"formId"`
	Payload     map[string]any `json:"data"`
	IPAddress   string         `json:"ipAddress,omitempty"`
	UserAgent   string         `json:"userAgent,omitempty"`
	SubmittedAt time.Time      `json:"submittedAt"`
}

// SaveContext identifies the form a payload belongs to.
type SaveContext struct {
	FormID   string
	FormName string
}

// Adapter is the common persistence contract. Save performs exactly one
// write attempt and returns the generated submission id. List is only
// supported by relational variants; the others return
// *UnsupportedOperationError.
type Adapter interface {
	Save(ctx context.Context, form SaveContext, payload map[string]any, meta ClientMetadata) (string, error)
	List(ctx context.Context, formID string) ([]Submission, error)
	Type() string
}

// UnsupportedOperationError marks a capability the selected adapter does
// not declare. Suggestion names an adapter type that does.
type UnsupportedOperationError struct {
	Adapter    string
	Operation  string
	Suggestion string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s adapter does not support %s, switch to the %s adapter", e.Adapter, e.Operation, e.Suggestion)
}

func unsupportedList(adapterType string) error {
	return &UnsupportedOperationError{Adapter: adapterType, Operation: "reading submissions", Suggestion: "sqlite"}
}
