// Package google mirrors expenses into a Google Sheet, one row per expense
// keyed by expense ID.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Options configures the client.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string // inline service account JSON
	CredentialsFile string // path to a service account JSON file
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string

	// mu serialises read-modify-write cycles on the sheet.
	mu sync.Mutex
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(svc, opts), nil
}

func newClient(svc *gsheet.Service, opts Options) *Client {
	sheet := strings.TrimSpace(opts.SheetName)
	if sheet == "" {
		sheet = "Expenses"
	}
	return &Client{svc: svc, spreadsheetID: opts.SpreadsheetID, sheet: sheet}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Falls back to GOOGLE_APPLICATION_CREDENTIALS when no credentials are configured.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(opts.CredentialsJSON)
	serviceAccountFile := strings.TrimSpace(opts.CredentialsFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

func (c *Client) ready() error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	return nil
}

func (c *Client) readAll(ctx context.Context) ([][]any, error) {
	rng := fmt.Sprintf("%s!A:%s", c.sheet, lastColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) writeRow(ctx context.Context, n int, vals []any) error {
	rng := rowRange(c.sheet, n)
	vr := &gsheet.ValueRange{Values: [][]any{vals}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// Upsert writes r into the row holding its expense, or the first row after
// the data when the expense is new. A row with a newer version wins. It
// returns the A1 reference of the row.
func (c *Client) Upsert(ctx context.Context, r Row) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	values, err := c.readAll(ctx)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		if err := c.writeRow(ctx, 1, header); err != nil {
			return "", fmt.Errorf("write header: %w", err)
		}
		values = [][]any{header}
	}

	n := findRow(values, r.ExpenseID)
	if n > 0 {
		if existing, ok := parseRow(values[n-1]); ok && existing.Version > r.Version {
			slog.DebugContext(ctx, "Skipping stale sheet update",
				"expense_id", r.ExpenseID,
				"sheet_version", existing.Version,
				"event_version", r.Version)
			return rowRange(c.sheet, n), nil
		}
	} else {
		n = len(values) + 1
	}

	if err := c.writeRow(ctx, n, r.values()); err != nil {
		return "", err
	}
	return rowRange(c.sheet, n), nil
}

// Delete clears the row holding expenseID. Missing rows are not an error.
func (c *Client) Delete(ctx context.Context, expenseID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	values, err := c.readAll(ctx)
	if err != nil {
		return err
	}
	n := findRow(values, expenseID)
	if n == 0 {
		return nil
	}
	rng := rowRange(c.sheet, n)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

// Rows returns every mirrored expense in sheet order.
func (c *Client) Rows(ctx context.Context) ([]Row, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	values, err := c.readAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(values))
	for _, raw := range values {
		if r, ok := parseRow(raw); ok {
			out = append(out, r)
		}
	}
	return out, nil
}
