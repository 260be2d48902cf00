package core

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestCategoryValidate(t *testing.T) {
	neg, nan, zero := -1.0, math.NaN(), 0.0
	cases := []struct {
		name string
		c    Category
		want error
	}{
		{"ok", Category{Name: "Food", Color: "#aabbcc"}, nil},
		{"short color", Category{Name: "Food", Color: "#abc"}, nil},
		{"no color", Category{Name: "Food"}, nil},
		{"zero budget", Category{Name: "Food", BudgetLimit: &zero}, nil},
		{"blank name", Category{Name: "   "}, ErrEmptyName},
		{"long name", Category{Name: strings.Repeat("x", 101)}, ErrNameTooLong},
		{"bad color", Category{Name: "Food", Color: "red"}, ErrInvalidColor},
		{"bad hex", Category{Name: "Food", Color: "#ggg"}, ErrInvalidColor},
		{"negative budget", Category{Name: "Food", BudgetLimit: &neg}, ErrInvalidBudget},
		{"nan budget", Category{Name: "Food", BudgetLimit: &nan}, ErrInvalidBudget},
	}
	for _, tc := range cases {
		err := tc.c.Validate()
		if !errors.Is(err, tc.want) || (tc.want == nil && err != nil) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if tc.want != nil && !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation kind, got %v", tc.name, err)
		}
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{Name: "Lunch", CategoryID: "c1", Amount: 12.5, Date: 1700000000000}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := map[string]struct {
		mutate func(*Expense)
		want   error
	}{
		"empty name":    {func(e *Expense) { e.Name = "" }, ErrEmptyName},
		"long name":     {func(e *Expense) { e.Name = strings.Repeat("x", 201) }, ErrNameTooLong},
		"no category":   {func(e *Expense) { e.CategoryID = " " }, ErrMissingCategory},
		"zero amount":   {func(e *Expense) { e.Amount = 0 }, ErrInvalidAmount},
		"negative":      {func(e *Expense) { e.Amount = -3 }, ErrInvalidAmount},
		"infinite":      {func(e *Expense) { e.Amount = math.Inf(1) }, ErrInvalidAmount},
		"no date":       {func(e *Expense) { e.Date = 0 }, ErrMissingDate},
		"notes too big": {func(e *Expense) { e.Notes = strings.Repeat("n", 1001) }, ErrNotesTooLong},
	}
	for name, tc := range cases {
		e := good
		tc.mutate(&e)
		if err := e.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, err)
		}
	}
}

func TestKind(t *testing.T) {
	cases := map[error]error{
		ErrEmptyName:        ErrValidation,
		ErrCategoryNotFound: ErrNotFound,
		ErrCategoryInUse:    ErrConflict,
		ErrUnknownReceipt:   ErrValidation,
		ErrMissingIdentity:  ErrUnauthenticated,
		errors.New("boom"):  nil,
	}
	for err, want := range cases {
		if got := Kind(err); got != want {
			t.Fatalf("Kind(%v) = %v, want %v", err, got, want)
		}
	}
}

func TestCategoryPatchJSON(t *testing.T) {
	var p CategoryPatch
	if err := json.Unmarshal([]byte(`{"budgetLimit": null}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.Name.Set || p.Color.Set {
		t.Fatalf("omitted fields must stay unset: %+v", p)
	}
	if !p.BudgetLimit.Set || p.BudgetLimit.Value != nil {
		t.Fatalf("explicit null must be set with nil value: %+v", p.BudgetLimit)
	}

	limit := 200.0
	c := Category{Name: "Food", Color: "#111111", BudgetLimit: &limit}
	got := p.Apply(c)
	if got.BudgetLimit != nil || got.Name != "Food" || got.Color != "#111111" {
		t.Fatalf("unexpected apply result: %+v", got)
	}

	p = CategoryPatch{}
	if err := json.Unmarshal([]byte(`{"name":"  Eats ","color":"","budgetLimit":50}`), &p); err != nil {
		t.Fatal(err)
	}
	got = p.Apply(c)
	if got.Name != "Eats" || got.Color != DefaultCategoryColor || got.BudgetLimit == nil || *got.BudgetLimit != 50 {
		t.Fatalf("unexpected apply result: %+v", got)
	}
	if !(CategoryPatch{}).Empty() || p.Empty() {
		t.Fatalf("Empty misreported")
	}
}

func TestExpensePatchApply(t *testing.T) {
	var p ExpensePatch
	if err := json.Unmarshal([]byte(`{"amount": 9.99, "notes": ""}`), &p); err != nil {
		t.Fatal(err)
	}
	e := Expense{Name: "Taxi", CategoryID: "c1", Amount: 20, Date: 5, Notes: "airport"}
	got := p.Apply(e)
	if got.Amount != 9.99 || got.Notes != "" || got.Name != "Taxi" || got.Date != 5 {
		t.Fatalf("unexpected apply result: %+v", got)
	}
	if (ExpensePatch{}).Empty() != true || p.Empty() {
		t.Fatalf("Empty misreported")
	}
}

func TestOptionalMarshal(t *testing.T) {
	b, err := json.Marshal(struct {
		A Optional[int] `json:"a"`
		B Optional[int] `json:"b"`
	}{A: Some(3)})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"a":3,"b":null}` {
		t.Fatalf("got %s", b)
	}
}

func TestExpenseFilter(t *testing.T) {
	start, end := int64(10), int64(20)
	f := ExpenseFilter{StartDate: &start, EndDate: &end, CategoryID: "c1"}
	if err := f.Validate(); err != nil {
		t.Fatal(err)
	}
	if !f.Matches(Expense{Date: 10, CategoryID: "c1"}) || !f.Matches(Expense{Date: 20, CategoryID: "c1"}) {
		t.Fatalf("bounds are inclusive")
	}
	if f.Matches(Expense{Date: 21, CategoryID: "c1"}) || f.Matches(Expense{Date: 15, CategoryID: "c2"}) {
		t.Fatalf("filter matched out-of-range expense")
	}

	onlyStart := ExpenseFilter{StartDate: &end}
	if onlyStart.HasRange() || !onlyStart.Matches(Expense{Date: 1}) {
		t.Fatalf("a single bound must be ignored")
	}

	bad := ExpenseFilter{StartDate: &end, EndDate: &start}
	if !errors.Is(bad.Validate(), ErrInvalidDateFilter) {
		t.Fatalf("expected inverted range error")
	}
}

func TestDefaultCategories(t *testing.T) {
	seed := DefaultCategories()
	if len(seed) != 8 {
		t.Fatalf("expected 8 defaults, got %d", len(seed))
	}
	seen := map[string]bool{}
	for _, c := range seed {
		if err := c.Validate(); err != nil || !c.IsDefault || seen[c.Name] {
			t.Fatalf("bad default %+v (err=%v)", c, err)
		}
		seen[c.Name] = true
	}
}
