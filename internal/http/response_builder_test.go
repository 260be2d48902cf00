package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"spendwise/internal/core"
)

func TestJSONResponseBuilder(t *testing.T) {
	rec := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Test", "1").
		Body(map[string]int{"n": 1}).
		Write(rec)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Test"))
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"n":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Body("ignored").Write(rec)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestWriteErrorMapsKinds(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
		msg    string
	}{
		{core.ErrMissingIdentity, http.StatusUnauthorized, CodeUnauthenticated, core.ErrMissingIdentity.Error()},
		{core.ErrInvalidAmount, http.StatusUnprocessableEntity, CodeValidation, core.ErrInvalidAmount.Error()},
		{fmt.Errorf("load: %w", core.ErrExpenseNotFound), http.StatusNotFound, CodeNotFound, "load: " + core.ErrExpenseNotFound.Error()},
		{core.ErrCategoryInUse, http.StatusConflict, CodeConflict, core.ErrCategoryInUse.Error()},
		{errors.New("disk on fire"), http.StatusInternalServerError, CodeInternal, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			body := decode[ErrorBody](t, rec)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.msg, body.Error)
		})
	}
}
