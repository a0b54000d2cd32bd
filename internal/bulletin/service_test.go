package bulletin

import (
	"context"
	"strings"
	"testing"

	"github.com/smnguyen/epulo/internal/model"
	"github.com/smnguyen/epulo/internal/security"
)

// --- モック定義 ---

type mockBulletinRepo struct {
	findByIDFn      func(ctx context.Context, id string) (*model.Bulletin, error)
	listRecentFn    func(ctx context.Context, limit int) ([]*model.Bulletin, error)
	listByUserIDFn  func(ctx context.Context, userID string) ([]*model.Bulletin, error)
	createFn        func(ctx context.Context, bulletin *model.Bulletin) error
	updateFn        func(ctx context.Context, bulletin *model.Bulletin) error
	deleteFn        func(ctx context.Context, id string) error
	searchByTitleFn func(ctx context.Context, query string, limit int) ([]*model.Bulletin, error)
}

func (m *mockBulletinRepo) FindByID(ctx context.Context, id string) (*model.Bulletin, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockBulletinRepo) ListRecent(ctx context.Context, limit int) ([]*model.Bulletin, error) {
	if m.listRecentFn != nil {
		return m.listRecentFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockBulletinRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Bulletin, error) {
	if m.listByUserIDFn != nil {
		return m.listByUserIDFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockBulletinRepo) Create(ctx context.Context, bulletin *model.Bulletin) error {
	if m.createFn != nil {
		return m.createFn(ctx, bulletin)
	}
	return nil
}

func (m *mockBulletinRepo) Update(ctx context.Context, bulletin *model.Bulletin) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, bulletin)
	}
	return nil
}

func (m *mockBulletinRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockBulletinRepo) SearchByTitle(ctx context.Context, query string, limit int) ([]*model.Bulletin, error) {
	if m.searchByTitleFn != nil {
		return m.searchByTitleFn(ctx, query, limit)
	}
	return nil, nil
}

func newTestService(repo *mockBulletinRepo) *Service {
	return NewService(repo, security.NewContentSanitizer())
}

// --- テスト ---

func TestCreateBulletin_Success(t *testing.T) {
	var created *model.Bulletin
	repo := &mockBulletinRepo{
		createFn: func(ctx context.Context, bulletin *model.Bulletin) error {
			created = bulletin
			return nil
		},
	}
	svc := newTestService(repo)

	got, err := svc.CreateBulletin(context.Background(), "user-1", BulletinInput{
		Title: "本を譲ります",
		Body:  "<p>技術書を<strong>無料</strong>で譲ります</p>",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created == nil {
		t.Fatal("expected bulletin to be persisted")
	}
	if created.ID == "" {
		t.Error("expected generated bulletin ID")
	}
	if created.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", created.UserID)
	}
	if !strings.Contains(got.Body, "<strong>無料</strong>") {
		t.Errorf("safe markup should survive, got %q", got.Body)
	}
}

func TestCreateBulletin_SanitizesScriptInBody(t *testing.T) {
	var created *model.Bulletin
	repo := &mockBulletinRepo{
		createFn: func(ctx context.Context, bulletin *model.Bulletin) error {
			created = bulletin
			return nil
		},
	}
	svc := newTestService(repo)

	_, err := svc.CreateBulletin(context.Background(), "user-1", BulletinInput{
		Title: "お知らせ",
		Body:  `<p>こんにちは</p><script>document.cookie</script>`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(created.Body, "script") || strings.Contains(created.Body, "document.cookie") {
		t.Errorf("script should be sanitized, got %q", created.Body)
	}
}

func TestCreateBulletin_EmptyTitle_ReturnsInvalidRequest(t *testing.T) {
	svc := newTestService(&mockBulletinRepo{})

	_, err := svc.CreateBulletin(context.Background(), "user-1", BulletinInput{Title: "", Body: "本文"})
	if err == nil {
		t.Fatal("expected error for empty title")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != "INVALID_REQUEST" {
		t.Errorf("Code = %q, want INVALID_REQUEST", apiErr.Code)
	}
}

func TestUpdateBulletin_NotOwner_ReturnsNotOwnerError(t *testing.T) {
	repo := &mockBulletinRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Bulletin, error) {
			return &model.Bulletin{ID: id, UserID: "owner-user", Title: "元のタイトル"}, nil
		},
	}
	svc := newTestService(repo)

	_, err := svc.UpdateBulletin(context.Background(), "other-user", "bulletin-1", BulletinInput{Title: "改変"})
	if err == nil {
		t.Fatal("expected error")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != "NOT_OWNER" {
		t.Errorf("Code = %q, want NOT_OWNER", apiErr.Code)
	}
}

func TestUpdateBulletin_NotFound_ReturnsBulletinNotFound(t *testing.T) {
	repo := &mockBulletinRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Bulletin, error) {
			return nil, nil
		},
	}
	svc := newTestService(repo)

	_, err := svc.UpdateBulletin(context.Background(), "user-1", "missing", BulletinInput{Title: "x"})
	if err == nil {
		t.Fatal("expected error")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != "BULLETIN_NOT_FOUND" {
		t.Errorf("Code = %q, want BULLETIN_NOT_FOUND", apiErr.Code)
	}
}

func TestDeleteBulletin_Owner_Succeeds(t *testing.T) {
	deleted := ""
	repo := &mockBulletinRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Bulletin, error) {
			return &model.Bulletin{ID: id, UserID: "user-1"}, nil
		},
		deleteFn: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	svc := newTestService(repo)

	if err := svc.DeleteBulletin(context.Background(), "user-1", "bulletin-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != "bulletin-1" {
		t.Errorf("deleted = %q, want bulletin-1", deleted)
	}
}

func TestDeleteBulletin_NotOwner_DoesNotDelete(t *testing.T) {
	repo := &mockBulletinRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Bulletin, error) {
			return &model.Bulletin{ID: id, UserID: "owner-user"}, nil
		},
		deleteFn: func(ctx context.Context, id string) error {
			t.Fatal("delete should not be called")
			return nil
		},
	}
	svc := newTestService(repo)

	if err := svc.DeleteBulletin(context.Background(), "other-user", "bulletin-1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestListRecent_ReturnsBulletins(t *testing.T) {
	repo := &mockBulletinRepo{
		listRecentFn: func(ctx context.Context, limit int) ([]*model.Bulletin, error) {
			if limit != defaultListLimit {
				t.Errorf("limit = %d, want %d", limit, defaultListLimit)
			}
			return []*model.Bulletin{
				{ID: "b-2", Title: "新しい投稿"},
				{ID: "b-1", Title: "古い投稿"},
			}, nil
		},
	}
	svc := newTestService(repo)

	got, err := svc.ListRecent(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 bulletins, got %d", len(got))
	}
	if got[0].ID != "b-2" {
		t.Errorf("first bulletin = %q, want b-2", got[0].ID)
	}
}
