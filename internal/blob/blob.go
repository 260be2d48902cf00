// Package blob stores receipt images on the local filesystem behind
// write-once upload URLs. Every URL the store hands out carries a signed
// grant naming the ref, the owner and the allowed operation; the file
// handlers refuse requests without one.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"spendwise/internal/core"
	applog "spendwise/internal/log"
)

// MaxReceiptBytes caps a single upload.
const MaxReceiptBytes = 10 << 20

const (
	DefaultUploadTTL   = 15 * time.Minute
	DefaultDownloadTTL = 24 * time.Hour

	grantIssuer = "spendwise-receipts"
	opPut       = "put"
	opGet       = "get"
)

var (
	ErrBlobExists = fmt.Errorf("%w: receipt already uploaded", core.ErrConflict)
	ErrNoSecret   = errors.New("receipt signing secret is required")
	errInvalidSig = errors.New("invalid receipt signature")
	errMalformed  = fmt.Errorf("%w: malformed receipt reference", core.ErrValidation)
	errNoReceipt  = fmt.Errorf("%w: receipt", core.ErrNotFound)
)

// Upload is a pre-allocated receipt slot. The client PUTs the image to URL
// before ExpiresAt and then stores Ref on the expense.
type Upload struct {
	Ref       string    `json:"ref"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// grant is the signed capability carried in the sig query parameter.
type grant struct {
	Ref   string `json:"ref"`
	Owner string `json:"owner"`
	Op    string `json:"op"`
	jwt.RegisteredClaims
}

// LocalStore keeps one file per receipt under dir/<owner hash>/<ref>.
type LocalStore struct {
	dir         string
	baseURL     string
	secret      []byte
	uploadTTL   time.Duration
	downloadTTL time.Duration
	now         func() time.Time
}

func NewLocalStore(dir, publicBaseURL, secret string) (*LocalStore, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create receipts directory: %w", err)
	}
	return &LocalStore{
		dir:         dir,
		baseURL:     strings.TrimRight(publicBaseURL, "/"),
		secret:      []byte(secret),
		uploadTTL:   DefaultUploadTTL,
		downloadTTL: DefaultDownloadTTL,
		now:         time.Now,
	}, nil
}

// UploadURL allocates a fresh reference owned by ownerID and signs a
// short-lived PUT grant for it.
func (s *LocalStore) UploadURL(_ context.Context, ownerID string) (Upload, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Upload{}, core.ErrMissingIdentity
	}
	ref := uuid.NewString()
	exp := s.now().Add(s.uploadTTL)
	u, err := s.signedURL(ownerID, ref, opPut, exp)
	if err != nil {
		return Upload{}, err
	}
	return Upload{Ref: ref, URL: u, ExpiresAt: exp}, nil
}

// ResolveURL returns a signed download URL for ref, or nil when ownerID has
// nothing uploaded under it.
func (s *LocalStore) ResolveURL(_ context.Context, ownerID, ref string) (*string, error) {
	path, ok := s.path(ownerID, ref)
	if !ok {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat receipt: %w", err)
	}
	u, err := s.signedURL(ownerID, ref, opGet, s.now().Add(s.downloadTTL))
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Put writes r under the owner's ref. A ref can be written once.
func (s *LocalStore) Put(ownerID, ref string, r io.Reader) (int64, error) {
	path, ok := s.path(ownerID, ref)
	if !ok {
		return 0, errMalformed
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create owner directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return 0, ErrBlobExists
		}
		return 0, fmt.Errorf("create receipt: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, MaxReceiptBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxReceiptBytes {
		err = fmt.Errorf("%w: receipt exceeds %d bytes", core.ErrValidation, MaxReceiptBytes)
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return n, nil
}

// Open returns the owner's stored receipt.
func (s *LocalStore) Open(ownerID, ref string) (*os.File, error) {
	path, ok := s.path(ownerID, ref)
	if !ok {
		return nil, errNoReceipt
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNoReceipt
	}
	return f, err
}

// path maps (owner, ref) to a file. Only canonical UUIDs are accepted as refs
// and the owner is hashed, so neither can escape dir.
func (s *LocalStore) path(ownerID, ref string) (string, bool) {
	if strings.TrimSpace(ownerID) == "" {
		return "", false
	}
	id, err := uuid.Parse(ref)
	if err != nil || id.String() != ref {
		return "", false
	}
	sum := sha256.Sum256([]byte(ownerID))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:]), ref), true
}

func (s *LocalStore) signedURL(ownerID, ref, op string, exp time.Time) (string, error) {
	claims := grant{
		Ref:   ref,
		Owner: ownerID,
		Op:    op,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    grantIssuer,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	sig, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign receipt grant: %w", err)
	}
	return s.baseURL + "/receipts/" + ref + "?sig=" + url.QueryEscape(sig), nil
}

// verify returns the owner named by the request's grant. The grant must be
// unexpired, issued for op and bound to the ref in the path.
func (s *LocalStore) verify(r *http.Request, op string) (string, error) {
	raw := r.URL.Query().Get("sig")
	if raw == "" {
		return "", errInvalidSig
	}
	token, err := jwt.ParseWithClaims(raw, &grant{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(grantIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidSig, err)
	}
	g, ok := token.Claims.(*grant)
	if !ok || !token.Valid || g.Op != op || g.Ref != r.PathValue("ref") || g.Owner == "" {
		return "", errInvalidSig
	}
	return g.Owner, nil
}

// Handler serves PUT and GET on /receipts/{ref}.
func (s *LocalStore) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /receipts/{ref}", s.handlePut)
	mux.HandleFunc("GET /receipts/{ref}", s.handleGet)
	return mux
}

func (s *LocalStore) handlePut(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")
	owner, err := s.verify(r, opPut)
	if err != nil {
		slog.WarnContext(r.Context(), "Receipt upload refused",
			applog.FieldComponent, applog.ComponentBlob,
			"ref", ref,
			applog.FieldError, err)
		http.Error(w, "invalid or expired upload URL", http.StatusForbidden)
		return
	}
	n, err := s.Put(owner, ref, r.Body)
	switch {
	case err == nil:
		slog.InfoContext(r.Context(), "Receipt stored",
			applog.FieldComponent, applog.ComponentBlob,
			"ref", ref,
			"bytes", n)
		w.WriteHeader(http.StatusCreated)
	case errors.Is(err, core.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, core.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.ErrorContext(r.Context(), "Receipt upload failed",
			applog.FieldComponent, applog.ComponentBlob,
			"ref", ref,
			applog.FieldError, err)
		http.Error(w, "upload failed", http.StatusInternalServerError)
	}
}

func (s *LocalStore) handleGet(w http.ResponseWriter, r *http.Request) {
	owner, err := s.verify(r, opGet)
	if err != nil {
		http.Error(w, "invalid or expired receipt URL", http.StatusForbidden)
		return
	}
	f, err := s.Open(owner, r.PathValue("ref"))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, "", info.ModTime(), f)
}
