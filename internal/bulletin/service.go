// Package bulletin は掲示板投稿のドメインロジックを提供する。
package bulletin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smnguyen/epulo/internal/model"
	"github.com/smnguyen/epulo/internal/repository"
	"github.com/smnguyen/epulo/internal/security"
)

// defaultListLimit は掲示板一覧のデフォルト取得件数。
const defaultListLimit = 50

// maxTitleLength は投稿タイトルの最大文字数。
const maxTitleLength = 200

// BulletinInput は投稿の作成・更新入力。
type BulletinInput struct {
	Title string
	Body  string
}

// Service は掲示板のサービス層。
// 投稿のCRUDと本文サニタイズのビジネスロジックを提供する。
type Service struct {
	bulletinRepo repository.BulletinRepository
	sanitizer    security.ContentSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(bulletinRepo repository.BulletinRepository, sanitizer security.ContentSanitizerService) *Service {
	return &Service{
		bulletinRepo: bulletinRepo,
		sanitizer:    sanitizer,
	}
}

// ListRecent は全ユーザーの最近の投稿を新しい順に返す。
func (s *Service) ListRecent(ctx context.Context) ([]*model.Bulletin, error) {
	bulletins, err := s.bulletinRepo.ListRecent(ctx, defaultListLimit)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	return bulletins, nil
}

// ListByUser は指定ユーザーの投稿一覧を新しい順に返す。
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*model.Bulletin, error) {
	bulletins, err := s.bulletinRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	return bulletins, nil
}

// GetBulletin は指定IDの投稿を返す。
func (s *Service) GetBulletin(ctx context.Context, bulletinID string) (*model.Bulletin, error) {
	bulletin, err := s.bulletinRepo.FindByID(ctx, bulletinID)
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if bulletin == nil {
		return nil, model.NewBulletinNotFoundError(bulletinID)
	}
	return bulletin, nil
}

// CreateBulletin は投稿を作成する。本文はサニタイズして保存する。
func (s *Service) CreateBulletin(ctx context.Context, userID string, input BulletinInput) (*model.Bulletin, error) {
	title, body, err := s.sanitizeInput(input)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	bulletin := &model.Bulletin{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.bulletinRepo.Create(ctx, bulletin); err != nil {
		return nil, fmt.Errorf("投稿の作成に失敗しました: %w", err)
	}

	return bulletin, nil
}

// UpdateBulletin は既存投稿を更新する。投稿者のみ更新できる。
func (s *Service) UpdateBulletin(ctx context.Context, userID, bulletinID string, input BulletinInput) (*model.Bulletin, error) {
	existing, err := s.bulletinRepo.FindByID(ctx, bulletinID)
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if existing == nil {
		return nil, model.NewBulletinNotFoundError(bulletinID)
	}
	if existing.UserID != userID {
		return nil, model.NewNotOwnerError()
	}

	title, body, err := s.sanitizeInput(input)
	if err != nil {
		return nil, err
	}

	existing.Title = title
	existing.Body = body
	existing.UpdatedAt = time.Now()

	if err := s.bulletinRepo.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("投稿の更新に失敗しました: %w", err)
	}

	return existing, nil
}

// DeleteBulletin は投稿を削除する。投稿者のみ削除できる。
func (s *Service) DeleteBulletin(ctx context.Context, userID, bulletinID string) error {
	existing, err := s.bulletinRepo.FindByID(ctx, bulletinID)
	if err != nil {
		return fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if existing == nil {
		return model.NewBulletinNotFoundError(bulletinID)
	}
	if existing.UserID != userID {
		return model.NewNotOwnerError()
	}

	if err := s.bulletinRepo.Delete(ctx, bulletinID); err != nil {
		return fmt.Errorf("投稿の削除に失敗しました: %w", err)
	}

	return nil
}

// sanitizeInput は入力を検証・サニタイズする。
// タイトルはプレーンテキスト、本文は限定的な装飾を許可する。
func (s *Service) sanitizeInput(input BulletinInput) (title, body string, err error) {
	title = input.Title
	body = input.Body
	if s.sanitizer != nil {
		title = s.sanitizer.SanitizeText(title)
		body = s.sanitizer.SanitizeRichText(body)
	}

	if title == "" {
		return "", "", model.NewInvalidRequestError("タイトルは必須です")
	}
	if len([]rune(title)) > maxTitleLength {
		return "", "", model.NewInvalidRequestError("タイトルが長すぎます")
	}

	return title, body, nil
}
