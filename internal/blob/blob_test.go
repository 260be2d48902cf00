package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/core"
	applog "spendwise/internal/log"
)

const testSecret = "receipt-test-secret-0123456789"

func newStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "receipts"), "http://localhost:8081/", testSecret)
	require.NoError(t, err)
	return s
}

// target strips scheme and host so the URL can be replayed against Handler.
func target(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.RequestURI()
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestNewLocalStoreRequiresSecret(t *testing.T) {
	_, err := NewLocalStore(t.TempDir(), "http://x", "")
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestUploadAndResolve(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.UploadURL(ctx, "")
	assert.ErrorIs(t, err, core.ErrUnauthenticated)

	up, err := s.UploadURL(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.URL, "http://localhost:8081/receipts/"+up.Ref+"?sig="), up.URL)
	assert.WithinDuration(t, time.Now().Add(DefaultUploadTTL), up.ExpiresAt, time.Minute)

	got, err := s.ResolveURL(ctx, "alice", up.Ref)
	require.NoError(t, err)
	assert.Nil(t, got, "nothing uploaded yet")

	_, err = s.Put("alice", up.Ref, strings.NewReader("png bytes"))
	require.NoError(t, err)

	got, err = s.ResolveURL(ctx, "alice", up.Ref)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, strings.HasPrefix(*got, "http://localhost:8081/receipts/"+up.Ref+"?sig="))

	other, err := s.ResolveURL(ctx, "bob", up.Ref)
	require.NoError(t, err)
	assert.Nil(t, other, "receipts are scoped to their owner")

	_, err = s.Put("alice", up.Ref, strings.NewReader("again"))
	assert.ErrorIs(t, err, ErrBlobExists)
}

func TestRejectsTraversal(t *testing.T) {
	s := newStore(t)
	for _, ref := range []string{"../secret", "", "not-a-uuid", "A0EEBC99-9C0B-4EF8-BB6D-6BB9BD380A11"} {
		_, err := s.Put("alice", ref, strings.NewReader("x"))
		assert.ErrorIs(t, err, core.ErrValidation, ref)
		got, err := s.ResolveURL(context.Background(), "alice", ref)
		assert.NoError(t, err)
		assert.Nil(t, got)
	}
	_, err := s.Put("", uuid.NewString(), strings.NewReader("x"))
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestOversizedUploadIsDiscarded(t *testing.T) {
	s := newStore(t)
	up, err := s.UploadURL(context.Background(), "alice")
	require.NoError(t, err)
	_, err = s.Put("alice", up.Ref, strings.NewReader(strings.Repeat("x", MaxReceiptBytes+1)))
	assert.ErrorIs(t, err, core.ErrValidation)
	path, _ := s.path("alice", up.Ref)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestHandler(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	up, err := s.UploadURL(ctx, "alice")
	require.NoError(t, err)
	h := s.Handler()

	rec := serve(h, http.MethodPut, target(t, up.URL), "receipt")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(h, http.MethodPut, target(t, up.URL), "receipt")
	assert.Equal(t, http.StatusConflict, rec.Code)

	download, err := s.ResolveURL(ctx, "alice", up.Ref)
	require.NoError(t, err)
	require.NotNil(t, download)
	rec = serve(h, http.MethodGet, target(t, *download), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "receipt", rec.Body.String())
}

func TestHandlerRefusesUnsignedRequests(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	h := s.Handler()
	fresh := uuid.NewString()

	rec := serve(h, http.MethodPut, "/receipts/"+fresh, "anonymous")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = serve(h, http.MethodGet, "/receipts/"+fresh, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	up, err := s.UploadURL(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, serve(h, http.MethodPut, target(t, up.URL), "receipt").Code)

	rec = serve(h, http.MethodGet, "/receipts/"+up.Ref, "")
	assert.Equal(t, http.StatusForbidden, rec.Code, "download needs a signed URL")

	// The upload grant does not authorise reads.
	rec = serve(h, http.MethodGet, target(t, up.URL), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// A grant is bound to its ref.
	sig := up.URL[strings.Index(up.URL, "?"):]
	rec = serve(h, http.MethodPut, "/receipts/"+fresh+sig, "swap")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(h, http.MethodPut, "/receipts/"+fresh+"?sig=garbage", "x")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerRejectsForeignAndExpiredGrants(t *testing.T) {
	s := newStore(t)
	h := s.Handler()

	forged, err := NewLocalStore(t.TempDir(), "http://localhost:8081", "another-secret-0123456789")
	require.NoError(t, err)
	up, err := forged.UploadURL(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, serve(h, http.MethodPut, target(t, up.URL), "x").Code)

	// A login token signed with the same secret is not a receipt grant.
	login := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "alice",
		"ref":     up.Ref,
		"op":      opPut,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	raw, err := login.SignedString([]byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, serve(h, http.MethodPut, "/receipts/"+up.Ref+"?sig="+raw, "x").Code)

	up, err = s.UploadURL(context.Background(), "alice")
	require.NoError(t, err)
	s.now = func() time.Time { return time.Now().Add(DefaultUploadTTL + time.Minute) }
	assert.Equal(t, http.StatusForbidden, serve(h, http.MethodPut, target(t, up.URL), "late").Code)
}

func TestHandlerLogsWithBlobComponent(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	s := newStore(t)
	up, err := s.UploadURL(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, serve(s.Handler(), http.MethodPut, target(t, up.URL), "receipt").Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "Receipt stored", entry["msg"])
	assert.Equal(t, applog.ComponentBlob, entry[applog.FieldComponent])
	assert.Equal(t, up.Ref, entry["ref"])
}
