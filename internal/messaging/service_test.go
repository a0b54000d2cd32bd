package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/smnguyen/epulo/internal/model"
	"github.com/smnguyen/epulo/internal/security"
)

// --- モック定義 ---

type mockMessageRepo struct {
	createWithEmailFn func(ctx context.Context, message *model.Message, email *model.EmailMessage) error
	listByUserIDFn    func(ctx context.Context, userID string) ([]*model.Message, error)
}

func (m *mockMessageRepo) CreateWithEmail(ctx context.Context, message *model.Message, email *model.EmailMessage) error {
	if m.createWithEmailFn != nil {
		return m.createWithEmailFn(ctx, message, email)
	}
	return nil
}

func (m *mockMessageRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Message, error) {
	if m.listByUserIDFn != nil {
		return m.listByUserIDFn(ctx, userID)
	}
	return nil, nil
}

type mockUserRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
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
	return nil
}

func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	return nil
}

type mockItemRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Item, error)
}

func (m *mockItemRepo) FindByID(ctx context.Context, id string) (*model.Item, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockItemRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Item, error) {
	return nil, nil
}

func (m *mockItemRepo) Create(ctx context.Context, item *model.Item) error { return nil }

func (m *mockItemRepo) Update(ctx context.Context, item *model.Item) error { return nil }

func (m *mockItemRepo) Delete(ctx context.Context, id string) error { return nil }

func (m *mockItemRepo) ReplaceAllForUser(ctx context.Context, userID string, items []*model.Item) error {
	return nil
}

func (m *mockItemRepo) SearchByTitle(ctx context.Context, query string, limit int) ([]*model.Item, error) {
	return nil, nil
}

func usersByID(users ...*model.User) func(ctx context.Context, id string) (*model.User, error) {
	index := make(map[string]*model.User, len(users))
	for _, u := range users {
		index[u.ID] = u
	}
	return func(ctx context.Context, id string) (*model.User, error) {
		return index[id], nil
	}
}

func newTestService(msgRepo *mockMessageRepo, userRepo *mockUserRepo, itemRepo *mockItemRepo) *Service {
	return NewService(msgRepo, userRepo, itemRepo, security.NewContentSanitizer())
}

// --- テスト ---

func TestSendMessage_Success_PersistsMessageWithNotificationEmail(t *testing.T) {
	var createdMessage *model.Message
	var createdEmail *model.EmailMessage

	msgRepo := &mockMessageRepo{
		createWithEmailFn: func(ctx context.Context, message *model.Message, email *model.EmailMessage) error {
			createdMessage = message
			createdEmail = email
			return nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: usersByID(
			&model.User{ID: "sender-1", Name: "山田太郎", Email: "yamada@example.com"},
			&model.User{ID: "recipient-1", Name: "佐藤花子", Email: "sato@example.com"},
		),
	}

	svc := newTestService(msgRepo, userRepo, &mockItemRepo{})

	got, err := svc.SendMessage(context.Background(), "sender-1", MessageInput{
		RecipientID: "recipient-1",
		Body:        "自転車はまだありますか？",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if createdMessage == nil {
		t.Fatal("expected message to be persisted")
	}
	if got.SenderID != "sender-1" || got.RecipientID != "recipient-1" {
		t.Errorf("message = %+v", got)
	}

	// メッセージと通知メールは同じ呼び出しでリポジトリに渡る
	if createdEmail == nil {
		t.Fatal("expected notification email to accompany the message")
	}
	if createdEmail.RecipientEmail != "sato@example.com" {
		t.Errorf("RecipientEmail = %q, want sato@example.com", createdEmail.RecipientEmail)
	}
	if createdEmail.Status != model.EmailStatusPending {
		t.Errorf("Status = %q, want pending", createdEmail.Status)
	}
	if !strings.Contains(createdEmail.Subject, "山田太郎") {
		t.Errorf("Subject = %q, should mention sender name", createdEmail.Subject)
	}
}

func TestSendMessage_WithItem_SubjectMentionsItem(t *testing.T) {
	var createdEmail *model.EmailMessage

	msgRepo := &mockMessageRepo{
		createWithEmailFn: func(ctx context.Context, message *model.Message, email *model.EmailMessage) error {
			createdEmail = email
			return nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: usersByID(
			&model.User{ID: "sender-1", Name: "山田太郎"},
			&model.User{ID: "recipient-1", Name: "佐藤花子", Email: "sato@example.com"},
		),
	}
	itemRepo := &mockItemRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Item, error) {
			return &model.Item{ID: id, UserID: "recipient-1", Title: "マウンテンバイク"}, nil
		},
	}

	svc := newTestService(msgRepo, userRepo, itemRepo)

	got, err := svc.SendMessage(context.Background(), "sender-1", MessageInput{
		RecipientID: "recipient-1",
		ItemID:      "item-1",
		Body:        "譲ってください",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.ItemID == nil || *got.ItemID != "item-1" {
		t.Errorf("ItemID = %v, want item-1", got.ItemID)
	}
	if createdEmail == nil {
		t.Fatal("expected notification email")
	}
	if !strings.Contains(createdEmail.Subject, "マウンテンバイク") {
		t.Errorf("Subject = %q, should mention item title", createdEmail.Subject)
	}
}

func TestSendMessage_RecipientNotFound_ReturnsError(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFn: usersByID(
			&model.User{ID: "sender-1", Name: "山田太郎"},
		),
	}
	msgRepo := &mockMessageRepo{
		createWithEmailFn: func(ctx context.Context, message *model.Message, email *model.EmailMessage) error {
			t.Fatal("message should not be created")
			return nil
		},
	}

	svc := newTestService(msgRepo, userRepo, &mockItemRepo{})

	_, err := svc.SendMessage(context.Background(), "sender-1", MessageInput{
		RecipientID: "missing-user",
		Body:        "こんにちは",
	})
	if err == nil {
		t.Fatal("expected error")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != "RECIPIENT_NOT_FOUND" {
		t.Errorf("Code = %q, want RECIPIENT_NOT_FOUND", apiErr.Code)
	}
}

func TestSendMessage_EmptyBody_ReturnsInvalidRequest(t *testing.T) {
	svc := newTestService(&mockMessageRepo{}, &mockUserRepo{}, &mockItemRepo{})

	_, err := svc.SendMessage(context.Background(), "sender-1", MessageInput{
		RecipientID: "recipient-1",
		Body:        "   ",
	})
	if err == nil {
		t.Fatal("expected error for empty body")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != "INVALID_REQUEST" {
		t.Errorf("Code = %q, want INVALID_REQUEST", apiErr.Code)
	}
}

func TestSendMessage_SanitizesBody(t *testing.T) {
	var createdMessage *model.Message
	msgRepo := &mockMessageRepo{
		createWithEmailFn: func(ctx context.Context, message *model.Message, email *model.EmailMessage) error {
			createdMessage = message
			return nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: usersByID(
			&model.User{ID: "sender-1", Name: "山田太郎"},
			&model.User{ID: "recipient-1", Name: "佐藤花子"},
		),
	}

	svc := newTestService(msgRepo, userRepo, &mockItemRepo{})

	_, err := svc.SendMessage(context.Background(), "sender-1", MessageInput{
		RecipientID: "recipient-1",
		Body:        `こんにちは<script>alert("x")</script>`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(createdMessage.Body, "<script") || strings.Contains(createdMessage.Body, "alert") {
		t.Errorf("body should be sanitized, got %q", createdMessage.Body)
	}
}

func TestSendMessage_RecipientWithoutEmail_NoNotificationEmail(t *testing.T) {
	var gotEmail *model.EmailMessage
	called := false
	msgRepo := &mockMessageRepo{
		createWithEmailFn: func(ctx context.Context, message *model.Message, email *model.EmailMessage) error {
			called = true
			gotEmail = email
			return nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: usersByID(
			&model.User{ID: "sender-1", Name: "山田太郎"},
			&model.User{ID: "recipient-1", Name: "佐藤花子", Email: ""},
		),
	}

	svc := newTestService(msgRepo, userRepo, &mockItemRepo{})

	if _, err := svc.SendMessage(context.Background(), "sender-1", MessageInput{
		RecipientID: "recipient-1",
		Body:        "こんにちは",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected message to be persisted")
	}
	if gotEmail != nil {
		t.Errorf("email should be nil for recipient without address, got %+v", gotEmail)
	}
}

func TestSendMessage_PersistFailure_FailsSend(t *testing.T) {
	msgRepo := &mockMessageRepo{
		createWithEmailFn: func(ctx context.Context, message *model.Message, email *model.EmailMessage) error {
			return errors.New("db unavailable")
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: usersByID(
			&model.User{ID: "sender-1", Name: "山田太郎"},
			&model.User{ID: "recipient-1", Name: "佐藤花子", Email: "sato@example.com"},
		),
	}

	svc := newTestService(msgRepo, userRepo, &mockItemRepo{})

	got, err := svc.SendMessage(context.Background(), "sender-1", MessageInput{
		RecipientID: "recipient-1",
		Body:        "こんにちは",
	})
	if err == nil {
		t.Fatal("expected error when persistence fails")
	}
	if got != nil {
		t.Errorf("expected nil message on failure, got %+v", got)
	}
}

func TestListMessages_ReturnsMessages(t *testing.T) {
	msgRepo := &mockMessageRepo{
		listByUserIDFn: func(ctx context.Context, userID string) ([]*model.Message, error) {
			return []*model.Message{
				{ID: "m-2", SenderID: "other", RecipientID: userID},
				{ID: "m-1", SenderID: userID, RecipientID: "other"},
			}, nil
		},
	}
	svc := newTestService(msgRepo, &mockUserRepo{}, &mockItemRepo{})

	got, err := svc.ListMessages(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
}
