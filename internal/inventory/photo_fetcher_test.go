package inventory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smnguyen/epulo/internal/model"
	"github.com/smnguyen/epulo/internal/security"
)

// allowAllValidator はテスト用のSSRF検証スタブ。
// httptestサーバー（ループバック）への接続を許可する。
type allowAllValidator struct{}

func (v *allowAllValidator) ValidateURL(rawURL string) error {
	return nil
}

func (v *allowAllValidator) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

// denyValidator はテスト用のSSRF検証スタブ。指定されたエラーを常に返す。
type denyValidator struct {
	err error
}

func (v *denyValidator) ValidateURL(rawURL string) error {
	return v.err
}

func (v *denyValidator) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

func TestFetchPhoto_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg-bytes"))
	}))
	defer server.Close()

	f := NewPhotoFetcher(&allowAllValidator{}, nil, 5*time.Second, 1024)

	data, mime, err := f.FetchPhoto(context.Background(), server.URL+"/photo.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("data = %q, want jpeg-bytes", data)
	}
	if mime != "image/jpeg" {
		t.Errorf("mime = %q, want image/jpeg", mime)
	}
}

func TestFetchPhoto_EmptyURL_ReturnsNil(t *testing.T) {
	f := NewPhotoFetcher(&allowAllValidator{}, nil, 5*time.Second, 1024)

	data, mime, err := f.FetchPhoto(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != nil || mime != "" {
		t.Errorf("expected nil data and empty mime, got %v %q", data, mime)
	}
}

func TestFetchPhoto_BlockedDestination_ReturnsSSRFBlocked(t *testing.T) {
	validator := &denyValidator{
		err: fmt.Errorf("%w: IP address 169.254.169.254", security.ErrBlockedDestination),
	}
	f := NewPhotoFetcher(validator, nil, 5*time.Second, 1024)

	data, mime, err := f.FetchPhoto(context.Background(), "http://169.254.169.254/latest/meta-data")
	if err == nil {
		t.Fatal("expected error for blocked destination")
	}
	if data != nil || mime != "" {
		t.Errorf("blocked URL should yield nil data, got %v %q", data, mime)
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != "SSRF_BLOCKED" {
		t.Errorf("Code = %q, want SSRF_BLOCKED", apiErr.Code)
	}
}

func TestFetchPhoto_InvalidURL_ReturnsInvalidURL(t *testing.T) {
	validator := &denyValidator{
		err: errors.New("disallowed scheme: ftp"),
	}
	f := NewPhotoFetcher(validator, nil, 5*time.Second, 1024)

	data, _, err := f.FetchPhoto(context.Background(), "ftp://example.com/photo.jpg")
	if err == nil {
		t.Fatal("expected error for invalid URL")
	}
	if data != nil {
		t.Errorf("invalid URL should yield nil data, got %v", data)
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != "INVALID_URL" {
		t.Errorf("Code = %q, want INVALID_URL", apiErr.Code)
	}
}

func TestFetchPhoto_Non2xxStatus_ReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewPhotoFetcher(&allowAllValidator{}, nil, 5*time.Second, 1024)

	data, _, err := f.FetchPhoto(context.Background(), server.URL+"/missing.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil data for 404, got %v", data)
	}
}

func TestFetchPhoto_OversizedResponse_ReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer server.Close()

	f := NewPhotoFetcher(&allowAllValidator{}, nil, 5*time.Second, 1024)

	data, _, err := f.FetchPhoto(context.Background(), server.URL+"/big.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != nil {
		t.Errorf("oversized photo should be rejected, got %d bytes", len(data))
	}
}

func TestFetchPhoto_NonImageContentType_ReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	f := NewPhotoFetcher(&allowAllValidator{}, nil, 5*time.Second, 1024)

	data, _, err := f.FetchPhoto(context.Background(), server.URL+"/page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != nil {
		t.Errorf("non-image content should be rejected, got %q", data)
	}
}

func TestExtractMimeType_StripsCharset(t *testing.T) {
	got := extractMimeType("image/png; charset=utf-8")
	if got != "image/png" {
		t.Errorf("got %q, want image/png", got)
	}
}
