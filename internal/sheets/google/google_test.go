package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheets is an in-memory stand-in for the Sheets values API.
type fakeSheets struct {
	mu   sync.Mutex
	rows [][]any
}

var rowRangeRe = regexp.MustCompile(`![A-Z]+(\d+):[A-Z]+\d+$`)

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	idx := strings.Index(path, "/values/")
	if idx < 0 {
		http.NotFound(w, r)
		return
	}
	rng := path[idx+len("/values/"):]

	switch {
	case r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": f.rows})
	case r.Method == http.MethodPut:
		n := rowNumber(rng)
		var body struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || n == 0 || len(body.Values) != 1 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		for len(f.rows) < n {
			f.rows = append(f.rows, []any{})
		}
		f.rows[n-1] = body.Values[0]
		_ = json.NewEncoder(w).Encode(map[string]any{"updatedRange": rng})
	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":clear"):
		n := rowNumber(strings.TrimSuffix(rng, ":clear"))
		if n > 0 && n <= len(f.rows) {
			f.rows[n-1] = []any{}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"clearedRange": rng})
	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func rowNumber(rng string) int {
	m := rowRangeRe.FindStringSubmatch(rng)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func newTestClient(t *testing.T) (*Client, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return newClient(svc, Options{SpreadsheetID: "sheet-1"}), fake
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Fatal("expected error without spreadsheet id")
	}
}

func TestUpsertWritesHeaderAndAppends(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	ref, err := c.Upsert(ctx, Row{ExpenseID: "e1", Date: "2024-03-05", Name: "Lunch", Category: "Food", Amount: 12.5, OwnerID: "u1", Version: 1})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if ref != "Expenses!A2:H2" {
		t.Fatalf("ref = %q", ref)
	}
	if _, err := c.Upsert(ctx, Row{ExpenseID: "e2", Name: "Bus", Amount: 2, OwnerID: "u1", Version: 1}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if len(fake.rows) != 3 {
		t.Fatalf("rows = %d, want header plus 2", len(fake.rows))
	}
	if fake.rows[0][0] != "ID" {
		t.Fatalf("missing header: %v", fake.rows[0])
	}

	rows, err := c.Rows(ctx)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 || rows[0].ExpenseID != "e1" || rows[0].Amount != 12.5 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestUpsertReplacesInPlaceAndSkipsStale(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	mustUpsert := func(r Row) {
		t.Helper()
		if _, err := c.Upsert(ctx, r); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	mustUpsert(Row{ExpenseID: "e1", Name: "Lunch", Amount: 10, Version: 5})
	mustUpsert(Row{ExpenseID: "e1", Name: "Dinner", Amount: 20, Version: 7})
	mustUpsert(Row{ExpenseID: "e1", Name: "Old", Amount: 1, Version: 6})

	rows, err := c.Rows(ctx)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].Name != "Dinner" || rows[0].Version != 7 {
		t.Fatalf("stale write applied: %+v", rows[0])
	}
}

func TestDeleteClearsRow(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	for _, id := range []string{"e1", "e2"} {
		if _, err := c.Upsert(ctx, Row{ExpenseID: id, Name: id, Amount: 1, Version: 1}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if err := c.Delete(ctx, "e1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	rows, err := c.Rows(ctx)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 1 || rows[0].ExpenseID != "e2" {
		t.Fatalf("unexpected rows after delete: %+v", rows)
	}

	// a new expense reuses no cleared slot; it is appended after the data
	ref, err := c.Upsert(ctx, Row{ExpenseID: "e3", Amount: 1, Version: 1})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if ref != "Expenses!A4:H4" {
		t.Fatalf("ref = %q", ref)
	}
}

func TestNilServiceErrors(t *testing.T) {
	c := &Client{}
	if _, err := c.Upsert(context.Background(), Row{ExpenseID: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if err := c.Delete(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}
