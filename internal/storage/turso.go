package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	// Remote libSQL driver.
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"github.com/formroute/formroute/internal/forms"
)

// TursoAdapter persists submissions in a remote libSQL database. The
// connection and schema are initialized lazily on first use; both Save and
// List support the same submissions table as the embedded variant.
type TursoAdapter struct {
	url       string
	authToken string

	mu   sync.Mutex
	db   *sql.DB
	open func(ctx context.Context) (*sql.DB, error)
}

func NewTursoAdapter(dbURL, authToken string) *TursoAdapter {
	a := &TursoAdapter{url: strings.TrimSpace(dbURL), authToken: strings.TrimSpace(authToken)}
	a.open = a.openRemote
	return a
}

var _ Adapter = (*TursoAdapter)(nil)

func (a *TursoAdapter) Type() string {
	return forms.StorageTurso
}

// init dials on first use. A failed attempt is not remembered: the next
// call dials again, so a transient outage during the first save does not
// poison the adapter for the life of the process.
func (a *TursoAdapter) init(ctx context.Context) (*sql.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db != nil {
		return a.db, nil
	}
	db, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

func (a *TursoAdapter) openRemote(ctx context.Context) (*sql.DB, error) {
	if a.url == "" {
		return nil, fmt.Errorf("turso adapter requires a database url")
	}

	dsn := a.url
	if a.authToken != "" {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "authToken=" + url.QueryEscape(a.authToken)
	}

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open turso database: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS submissions (
			id TEXT PRIMARY KEY,
			form_id TEXT NOT NULL,
			data TEXT NOT NULL,
			ip_address TEXT,
			user_agent TEXT,
			submitted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize turso schema: %w", err)
	}
	return db, nil
}

func (a *TursoAdapter) Save(ctx context.Context, form SaveContext, payload map[string]any, meta ClientMetadata) (string, error) {
	db, err := a.init(ctx)
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode submission payload: %w", err)
	}

	submittedAt := meta.ReceivedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}

	submissionID := uuid.NewString()
	_, err = db.ExecContext(ctx, `
		INSERT INTO submissions (id, form_id, data, ip_address, user_agent, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		submissionID, form.FormID, string(raw), meta.IP, meta.UserAgent,
		submittedAt.UTC().Format(submittedAtLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert submission: %w", err)
	}
	return submissionID, nil
}

func (a *TursoAdapter) List(ctx context.Context, formID string) ([]Submission, error) {
	db, err := a.init(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, form_id, data, ip_address, user_agent, submitted_at
		FROM submissions
		WHERE form_id = ?
		ORDER BY submitted_at DESC`,
		formID,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	return scanSubmissions(rows)
}

// Close releases the remote connection when one was opened.
func (a *TursoAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
