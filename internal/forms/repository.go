package forms

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no form exists for the requested id.
var ErrNotFound = errors.New("form not found")

// Repository is the injected form-registry abstraction. The pipeline only
// reads; the management routes also write.
type Repository interface {
	Create(ctx context.Context, form Form) (Form, error)
	Get(ctx context.Context, id string) (Form, error)
	List(ctx context.Context) ([]Form, error)
	Update(ctx context.Context, form Form) (Form, error)
	Delete(ctx context.Context, id string) error
}
