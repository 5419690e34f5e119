package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/formroute/formroute/internal/db"
	"github.com/formroute/formroute/internal/forms"
)

// submittedAtLayout is RFC 3339 with a fixed-width fractional second.
// Timestamps are compared as text by ORDER BY, so the fraction must not
// shrink: RFC3339Nano trims trailing zeros and breaks the ordering for
// submissions landing within the same second.
const submittedAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteAdapter persists submissions in the shared embedded database.
// Schema initialization is handled by the migrations applied when the
// database is opened. This is the default and fallback variant.
type SQLiteAdapter struct {
	db *sql.DB
}

func NewSQLiteAdapter(database *db.Database) *SQLiteAdapter {
	return &SQLiteAdapter{db: database.DB()}
}

var _ Adapter = (*SQLiteAdapter)(nil)

func (a *SQLiteAdapter) Type() string {
	return forms.StorageSQLite
}

func (a *SQLiteAdapter) Save(ctx context.Context, form SaveContext, payload map[string]any, meta ClientMetadata) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode submission payload: %w", err)
	}

	submittedAt := meta.ReceivedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}

	submissionID := uuid.NewString()
	_, err = a.db.ExecContext(ctx, `
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

func (a *SQLiteAdapter) List(ctx context.Context, formID string) ([]Submission, error) {
	rows, err := a.db.QueryContext(ctx, `
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

func scanSubmissions(rows *sql.Rows) ([]Submission, error) {
	var out []Submission
	for rows.Next() {
		var (
			sub         Submission
			raw         string
			ip, agent   sql.NullString
			submittedAt string
		)
		if err := rows.Scan(&sub.ID, &sub.FormID, &raw, &ip, &agent, &submittedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &sub.Payload); err != nil {
			return nil, fmt.Errorf("decode submission payload: %w", err)
		}
		sub.IPAddress = ip.String
		sub.UserAgent = agent.String
		if ts, err := time.Parse(time.RFC3339Nano, submittedAt); err == nil {
			sub.SubmittedAt = ts
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
