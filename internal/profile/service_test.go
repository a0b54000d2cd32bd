package profile

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/smnguyen/epulo/internal/model"
	"github.com/smnguyen/epulo/internal/security"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn      func(ctx context.Context, id string) (*model.User, error)
	updateProfileFn func(ctx context.Context, user *model.User) error
	deleteByIDFn    func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	return nil
}

func (m *mockUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockSessionRepo struct {
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error { return nil }

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error { return nil }

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context) (int64, error) { return 0, nil }

type mockCacheInvalidator struct {
	invalidated []string
}

func (m *mockCacheInvalidator) InvalidateByUserID(userID string) {
	m.invalidated = append(m.invalidated, userID)
}

func existingUser() *model.User {
	return &model.User{
		ID:        "user-1",
		Email:     "yamada@example.com",
		Name:      "山田太郎",
		Location:  "東京",
		CreatedAt: time.Now().Add(-24 * time.Hour),
	}
}

// --- GetProfile のテスト ---

func TestGetProfile_Found_ReturnsUser(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return existingUser(), nil
		},
	}
	svc := NewService(repo, &mockSessionRepo{}, nil, security.NewContentSanitizer())

	user, err := svc.GetProfile(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Name != "山田太郎" {
		t.Errorf("Name = %q, want 山田太郎", user.Name)
	}
}

func TestGetProfile_NotFound_ReturnsUserNotFound(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}
	svc := NewService(repo, &mockSessionRepo{}, nil, security.NewContentSanitizer())

	_, err := svc.GetProfile(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != "USER_NOT_FOUND" {
		t.Errorf("Code = %q, want USER_NOT_FOUND", apiErr.Code)
	}
}

// --- UpdateProfile のテスト ---

func TestUpdateProfile_Success_InvalidatesCache(t *testing.T) {
	var updated *model.User
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return existingUser(), nil
		},
		updateProfileFn: func(ctx context.Context, user *model.User) error {
			updated = user
			return nil
		},
	}
	cache := &mockCacheInvalidator{}
	svc := NewService(repo, &mockSessionRepo{}, cache, security.NewContentSanitizer())

	user, err := svc.UpdateProfile(context.Background(), "user-1", ProfileInput{
		Name:     "山田次郎",
		Location: "大阪",
		Bio:      "家具を譲っています",
		Phone:    "090-0000-0000",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated == nil {
		t.Fatal("expected profile to be persisted")
	}
	if user.Name != "山田次郎" || user.Location != "大阪" {
		t.Errorf("user = %+v", user)
	}

	if len(cache.invalidated) != 1 || cache.invalidated[0] != "user-1" {
		t.Errorf("cache invalidations = %v, want [user-1]", cache.invalidated)
	}
}

func TestUpdateProfile_BumpsUpdatedAt(t *testing.T) {
	stale := time.Now().Add(-48 * time.Hour)
	var updated *model.User
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			u := existingUser()
			u.UpdatedAt = stale
			return u, nil
		},
		updateProfileFn: func(ctx context.Context, user *model.User) error {
			updated = user
			return nil
		},
	}
	svc := NewService(repo, &mockSessionRepo{}, nil, security.NewContentSanitizer())

	before := time.Now()
	if _, err := svc.UpdateProfile(context.Background(), "user-1", ProfileInput{Name: "山田次郎"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if updated == nil {
		t.Fatal("expected profile to be persisted")
	}
	if !updated.UpdatedAt.After(stale) {
		t.Errorf("UpdatedAt = %v, should be bumped past %v", updated.UpdatedAt, stale)
	}
	if updated.UpdatedAt.Before(before) {
		t.Errorf("UpdatedAt = %v, should be set to the update time", updated.UpdatedAt)
	}
}

func TestUpdateProfile_EmptyName_ReturnsInvalidRequest(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return existingUser(), nil
		},
		updateProfileFn: func(ctx context.Context, user *model.User) error {
			t.Fatal("update should not be called")
			return nil
		},
	}
	svc := NewService(repo, &mockSessionRepo{}, nil, security.NewContentSanitizer())

	_, err := svc.UpdateProfile(context.Background(), "user-1", ProfileInput{Name: ""})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestUpdateProfile_SanitizesBio(t *testing.T) {
	var updated *model.User
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return existingUser(), nil
		},
		updateProfileFn: func(ctx context.Context, user *model.User) error {
			updated = user
			return nil
		},
	}
	svc := NewService(repo, &mockSessionRepo{}, nil, security.NewContentSanitizer())

	_, err := svc.UpdateProfile(context.Background(), "user-1", ProfileInput{
		Name: "山田太郎",
		Bio:  `自己紹介<script>alert("x")</script>`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(updated.Bio, "<script") || strings.Contains(updated.Bio, "alert") {
		t.Errorf("bio should be sanitized, got %q", updated.Bio)
	}
}

func TestUpdateProfile_UserNotFound_ReturnsError(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}
	svc := NewService(repo, &mockSessionRepo{}, nil, security.NewContentSanitizer())

	_, err := svc.UpdateProfile(context.Background(), "missing", ProfileInput{Name: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
}

// --- Withdraw のテスト ---

func TestWithdraw_DeletesSessionsThenUser(t *testing.T) {
	var order []string
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return existingUser(), nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			order = append(order, "user")
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			order = append(order, "sessions")
			return nil
		},
	}
	cache := &mockCacheInvalidator{}
	svc := NewService(repo, sessionRepo, cache, security.NewContentSanitizer())

	if err := svc.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(order) != 2 || order[0] != "sessions" || order[1] != "user" {
		t.Errorf("deletion order = %v, want [sessions user]", order)
	}
	if len(cache.invalidated) != 1 {
		t.Errorf("cache invalidations = %v, want 1 entry", cache.invalidated)
	}
}

func TestWithdraw_UserNotFound_ReturnsError(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}
	svc := NewService(repo, &mockSessionRepo{}, nil, security.NewContentSanitizer())

	if err := svc.Withdraw(context.Background(), "missing"); err == nil {
		t.Fatal("expected error")
	}
}

func TestWithdraw_SessionDeleteFailure_AbortsBeforeUserDelete(t *testing.T) {
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return existingUser(), nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			t.Fatal("user delete should not be called after session delete failure")
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			return context.DeadlineExceeded
		},
	}
	svc := NewService(repo, sessionRepo, nil, security.NewContentSanitizer())

	if err := svc.Withdraw(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error")
	}
}
