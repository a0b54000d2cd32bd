package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smnguyen/epulo/internal/auth"
	"github.com/smnguyen/epulo/internal/model"
)

// --- モック定義 ---

type mockSessionResolver struct {
	resolveSessionFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockSessionResolver) ResolveSession(ctx context.Context, sessionID string) (*model.User, error) {
	if m.resolveSessionFn != nil {
		return m.resolveSessionFn(ctx, sessionID)
	}
	return nil, auth.ErrNotAuthenticated
}

const testSplashURL = "http://localhost:5000/splash"

// --- テスト ---

func TestSessionMiddleware_ValidSession_InjectsUser(t *testing.T) {
	resolver := &mockSessionResolver{
		resolveSessionFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			if sessionID == "valid-session-id" {
				return &model.User{ID: "user-123", Name: "山田太郎"}, nil
			}
			return nil, auth.ErrNotAuthenticated
		},
	}

	mw := NewSessionMiddleware(resolver, testSplashURL)

	var capturedUser *model.User
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := UserFromContext(r.Context())
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		capturedUser = user
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session-id"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if capturedUser == nil || capturedUser.ID != "user-123" {
		t.Errorf("user = %+v, want ID user-123", capturedUser)
	}
}

func TestSessionMiddleware_NoCookie_RedirectsToSplash(t *testing.T) {
	resolver := &mockSessionResolver{}
	mw := NewSessionMiddleware(resolver, testSplashURL)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if loc := resp.Header.Get("Location"); loc != testSplashURL {
		t.Errorf("Location = %q, want %q", loc, testSplashURL)
	}
}

func TestSessionMiddleware_NoCookie_JSONClient_Returns401(t *testing.T) {
	resolver := &mockSessionResolver{}
	mw := NewSessionMiddleware(resolver, testSplashURL)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestSessionMiddleware_EmptyCookie_RedirectsToSplash(t *testing.T) {
	resolver := &mockSessionResolver{}
	mw := NewSessionMiddleware(resolver, testSplashURL)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: ""})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
}

func TestSessionMiddleware_StaleSession_RedirectsWithoutCrash(t *testing.T) {
	// 復元失敗（セッション期限切れやユーザー削除済み）の場合も
	// パニックせずスプラッシュページへ誘導する
	resolver := &mockSessionResolver{
		resolveSessionFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return nil, auth.ErrNotAuthenticated
		},
	}
	mw := NewSessionMiddleware(resolver, testSplashURL)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "stale-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
}

func TestSessionMiddleware_ResolverError_Returns401ForJSON(t *testing.T) {
	resolver := &mockSessionResolver{
		resolveSessionFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return nil, context.DeadlineExceeded
		},
	}
	mw := NewSessionMiddleware(resolver, testSplashURL)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.Header.Set("Accept", "application/json")
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "some-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestUserFromContext_NoValue_ReturnsError(t *testing.T) {
	ctx := context.Background()
	_, err := UserFromContext(ctx)
	if err == nil {
		t.Error("expected error for missing user in context")
	}
}

func TestUserIDFromContext_ValidValue_ReturnsUserID(t *testing.T) {
	ctx := ContextWithUser(context.Background(), &model.User{ID: "user-456"})
	userID, err := UserIDFromContext(ctx)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if userID != "user-456" {
		t.Errorf("userID = %q, want %q", userID, "user-456")
	}
}
