package storage

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/formroute/formroute/internal/db"
	"github.com/formroute/formroute/internal/forms"
)

// Registry selects the adapter variant for a form's storage policy. It is
// a closed dispatch over the known type tags; an unrecognized tag falls
// back to the embedded store so already-persisted forms keep accepting
// submissions.
//
// Remote adapters are cached by their connection settings so each target
// owns one connection/session across requests.
type Registry struct {
	embedded *SQLiteAdapter
	timeout  time.Duration

	mu     sync.Mutex
	remote map[string]Adapter
}

func NewRegistry(database *db.Database, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Registry{
		embedded: NewSQLiteAdapter(database),
		timeout:  timeout,
		remote:   make(map[string]Adapter),
	}
}

// ForPolicy returns the adapter selected by the policy's type tag. The
// selection happens once per request, at pipeline start.
func (r *Registry) ForPolicy(policy forms.StoragePolicy) Adapter {
	switch strings.ToLower(strings.TrimSpace(policy.Type)) {
	case forms.StorageTurso:
		// The key covers the token too: rotating a form's token must
		// yield a fresh session, and two forms sharing a URL with
		// different tokens must not share one.
		key := fmt.Sprintf("turso|%s|%x", policy.URL, sha256.Sum256([]byte(policy.AuthToken)))
		return r.cached(key, func() Adapter {
			return NewTursoAdapter(policy.URL, policy.AuthToken)
		})
	case forms.StorageGoogleSheets:
		key := fmt.Sprintf("sheets|%s|%x", policy.SheetID, sha256.Sum256(policy.Credentials))
		return r.cached(key, func() Adapter {
			return NewGoogleSheetsAdapter(policy.SheetID, policy.Credentials)
		})
	case forms.StorageWebhook:
		return NewWebhookAdapter(policy.WebhookURL, policy.Headers, r.timeout)
	case forms.StorageMakeWebhook:
		return NewMakeWebhookAdapter(policy.WebhookURL, r.timeout)
	default:
		return r.embedded
	}
}

func (r *Registry) cached(key string, build func() Adapter) Adapter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if adapter, ok := r.remote[key]; ok {
		return adapter
	}
	adapter := build()
	r.remote[key] = adapter
	return adapter
}
