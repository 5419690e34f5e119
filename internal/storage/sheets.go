package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/formroute/formroute/internal/forms"
)

// SheetsAppender is the slice of the Sheets API the adapter needs.
// Narrowed for tests.
type SheetsAppender interface {
	Append(ctx context.Context, spreadsheetID string, row []any) error
}

// GoogleSheetsAdapter appends each submission as one spreadsheet row. It
// is write-only: submissions cannot be enumerated back through the Sheets
// API.
type GoogleSheetsAdapter struct {
	sheetID     string
	credentials []byte

	mu       sync.Mutex
	appender SheetsAppender
	dial     func(ctx context.Context) (SheetsAppender, error)
}

func NewGoogleSheetsAdapter(sheetID string, credentials []byte) *GoogleSheetsAdapter {
	a := &GoogleSheetsAdapter{sheetID: sheetID, credentials: credentials}
	a.dial = a.dialService
	return a
}

// NewGoogleSheetsAdapterWithAppender injects the append transport. Test
// hook.
func NewGoogleSheetsAdapterWithAppender(sheetID string, appender SheetsAppender) *GoogleSheetsAdapter {
	return &GoogleSheetsAdapter{sheetID: sheetID, appender: appender}
}

var _ Adapter = (*GoogleSheetsAdapter)(nil)

func (a *GoogleSheetsAdapter) Type() string {
	return forms.StorageGoogleSheets
}

// init creates the Sheets service on first use. A failed attempt is not
// remembered, so a transient failure does not poison the adapter.
func (a *GoogleSheetsAdapter) init(ctx context.Context) (SheetsAppender, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.appender != nil {
		return a.appender, nil
	}
	appender, err := a.dial(ctx)
	if err != nil {
		return nil, err
	}
	a.appender = appender
	return appender, nil
}

func (a *GoogleSheetsAdapter) dialService(ctx context.Context) (SheetsAppender, error) {
	if a.sheetID == "" {
		return nil, fmt.Errorf("google_sheets adapter requires a sheet id")
	}
	var opts []option.ClientOption
	if len(a.credentials) > 0 {
		opts = append(opts, option.WithCredentialsJSON(a.credentials))
	}
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &sheetsValuesAppender{service: service}, nil
}

func (a *GoogleSheetsAdapter) Save(ctx context.Context, form SaveContext, payload map[string]any, meta ClientMetadata) (string, error) {
	appender, err := a.init(ctx)
	if err != nil {
		return "", err
	}

	submittedAt := meta.ReceivedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}

	submissionID := uuid.NewString()
	row := []any{submissionID, form.FormName, submittedAt.UTC().Format(time.RFC3339), meta.IP, meta.UserAgent}
	for _, key := range sortedKeys(payload) {
		row = append(row, fmt.Sprintf("%s: %s", key, cellValue(payload[key])))
	}

	if err := appender.Append(ctx, a.sheetID, row); err != nil {
		return "", fmt.Errorf("append sheet row: %w", err)
	}
	return submissionID, nil
}

func (a *GoogleSheetsAdapter) List(ctx context.Context, formID string) ([]Submission, error) {
	return nil, unsupportedList(a.Type())
}

func sortedKeys(payload map[string]any) []string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cellValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(raw)
	}
}

type sheetsValuesAppender struct {
	service *sheets.Service
}

func (s *sheetsValuesAppender) Append(ctx context.Context, spreadsheetID string, row []any) error {
	_, err := s.service.Spreadsheets.Values.
		Append(spreadsheetID, "A1", &sheets.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}
