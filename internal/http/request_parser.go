// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for decoding request bodies and query
// parameters into domain values.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"spendwise/internal/core"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON value into dst. Malformed bodies and unknown
// fields are validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body too large", core.ErrValidation)
		}
		return fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: request body is required", core.ErrValidation)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", core.ErrValidation, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON body", core.ErrValidation)
	}
	return nil
}

// Amount accepts a JSON number or a decimal string such as "12,34".
type Amount float64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := core.ParseAmount(s)
		if err != nil {
			return err
		}
		*a = Amount(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*a = Amount(v)
	return nil
}

type createExpenseRequest struct {
	Name       string `json:"name"`
	CategoryID string `json:"categoryId"`
	Amount     Amount `json:"amount"`
	Date       int64  `json:"date"`
	Notes      string `json:"notes"`
	ReceiptRef string `json:"receiptRef"`
}

type updateExpenseRequest struct {
	Name       core.Optional[string] `json:"name"`
	CategoryID core.Optional[string] `json:"categoryId"`
	Amount     core.Optional[Amount] `json:"amount"`
	Date       core.Optional[int64]  `json:"date"`
	Notes      core.Optional[string] `json:"notes"`
	ReceiptRef core.Optional[string] `json:"receiptRef"`
}

func (u updateExpenseRequest) patch() core.ExpensePatch {
	p := core.ExpensePatch{
		Name:       sanitizeOptional(u.Name),
		CategoryID: u.CategoryID,
		Date:       u.Date,
		Notes:      sanitizeOptional(u.Notes),
		ReceiptRef: u.ReceiptRef,
	}
	if u.Amount.Set {
		p.Amount = core.Some(float64(u.Amount.Value))
	}
	return p
}

func sanitizeOptional(o core.Optional[string]) core.Optional[string] {
	if o.Set {
		o.Value = sanitizeInput(o.Value)
	}
	return o
}

// parseMillis reads an optional epoch-millisecond query parameter.
func parseMillis(q url.Values, key string) (*int64, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be epoch milliseconds", core.ErrValidation, key)
	}
	return &ms, nil
}

// ParseExpenseFilter extracts startDate, endDate and categoryId.
func ParseExpenseFilter(q url.Values) (core.ExpenseFilter, error) {
	start, err := parseMillis(q, "startDate")
	if err != nil {
		return core.ExpenseFilter{}, err
	}
	end, err := parseMillis(q, "endDate")
	if err != nil {
		return core.ExpenseFilter{}, err
	}
	f := core.ExpenseFilter{
		StartDate:  start,
		EndDate:    end,
		CategoryID: strings.TrimSpace(q.Get("categoryId")),
	}
	if err := f.Validate(); err != nil {
		return core.ExpenseFilter{}, err
	}
	return f, nil
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
