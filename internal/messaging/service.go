// Package messaging はユーザー間メッセージとオファーメールのドメインロジックを提供する。
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/smnguyen/epulo/internal/model"
	"github.com/smnguyen/epulo/internal/repository"
	"github.com/smnguyen/epulo/internal/security"
)

// maxBodyLength はメッセージ本文の最大文字数。
const maxBodyLength = 4000

// MessageInput はメッセージ送信の入力。
type MessageInput struct {
	RecipientID string
	ItemID      string // 任意。アイテムに紐づくオファーの場合に指定
	Body        string
}

// Service はメッセージングのサービス層。
// メッセージの送受信と、受信者へのオファーメール通知のエンキューを行う。
// メールは同期送信せずアウトボックスに積み、ワーカーが配信する。
type Service struct {
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	itemRepo    repository.ItemRepository
	sanitizer   security.ContentSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	itemRepo repository.ItemRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		itemRepo:    itemRepo,
		sanitizer:   sanitizer,
	}
}

// ListMessages はユーザーが送信または受信したメッセージを新しい順に返す。
func (s *Service) ListMessages(ctx context.Context, userID string) ([]*model.Message, error) {
	messages, err := s.messageRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("メッセージ一覧の取得に失敗しました: %w", err)
	}
	return messages, nil
}

// SendMessage はメッセージを送信し、受信者への通知メールをアウトボックスに積む。
// 受信者が存在しない場合はRECIPIENT_NOT_FOUNDを返す。
// メッセージと通知メールは同一トランザクションで永続化され、
// どちらか一方だけが残ることはない。
func (s *Service) SendMessage(ctx context.Context, senderID string, input MessageInput) (*model.Message, error) {
	body := input.Body
	if s.sanitizer != nil {
		body = s.sanitizer.SanitizeText(body)
	}
	if body == "" {
		return nil, model.NewInvalidRequestError("本文は必須です")
	}
	if len([]rune(body)) > maxBodyLength {
		return nil, model.NewInvalidRequestError("本文が長すぎます")
	}

	recipient, err := s.userRepo.FindByID(ctx, input.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("受信者の取得に失敗しました: %w", err)
	}
	if recipient == nil {
		return nil, model.NewRecipientNotFoundError(input.RecipientID)
	}

	sender, err := s.userRepo.FindByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("送信者の取得に失敗しました: %w", err)
	}
	if sender == nil {
		return nil, model.NewUserNotFoundError()
	}

	message := &model.Message{
		ID:          uuid.New().String(),
		SenderID:    senderID,
		RecipientID: input.RecipientID,
		Body:        body,
		CreatedAt:   time.Now(),
	}

	// アイテムに紐づくオファーの場合はアイテムの存在を確認
	var item *model.Item
	if input.ItemID != "" {
		item, err = s.itemRepo.FindByID(ctx, input.ItemID)
		if err != nil {
			return nil, fmt.Errorf("アイテムの取得に失敗しました: %w", err)
		}
		if item == nil {
			return nil, model.NewItemNotFoundError(input.ItemID)
		}
		itemID := item.ID
		message.ItemID = &itemID
	}

	// 受信者にメールアドレスがある場合のみ通知メールを作成する
	var email *model.EmailMessage
	if recipient.Email != "" {
		email = buildNotification(sender, recipient, item, body)
	}

	if err := s.messageRepo.CreateWithEmail(ctx, message, email); err != nil {
		return nil, fmt.Errorf("メッセージの送信に失敗しました: %w", err)
	}

	slog.Info("メッセージを送信しました",
		slog.String("message_id", message.ID),
		slog.String("sender_id", senderID),
		slog.String("recipient_id", input.RecipientID),
	)

	return message, nil
}

// buildNotification は受信者への通知メールを組み立てる。
func buildNotification(sender, recipient *model.User, item *model.Item, body string) *model.EmailMessage {
	subject := fmt.Sprintf("%sさんからメッセージが届きました", sender.Name)
	mailBody := body
	if item != nil {
		subject = fmt.Sprintf("%sさんから「%s」へのオファーが届きました", sender.Name, item.Title)
		mailBody = fmt.Sprintf("アイテム: %s\n\n%s", item.Title, body)
	}

	now := time.Now()
	return &model.EmailMessage{
		ID:             uuid.New().String(),
		SenderID:       sender.ID,
		RecipientEmail: recipient.Email,
		Subject:        subject,
		Body:           mailBody,
		Status:         model.EmailStatusPending,
		Attempts:       0,
		NextAttemptAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
