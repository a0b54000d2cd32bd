// Package profile はユーザープロフィール管理のドメインロジックを提供する。
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/smnguyen/epulo/internal/model"
	"github.com/smnguyen/epulo/internal/repository"
	"github.com/smnguyen/epulo/internal/security"
)

// maxNameLength は表示名の最大文字数。
const maxNameLength = 100

// ProfileInput はプロフィール更新の入力。
type ProfileInput struct {
	Name     string
	Location string
	Bio      string
	Phone    string
}

// CacheInvalidator はユーザー単位のキャッシュ無効化インターフェース。
// auth.SessionCacheの部分集合として定義する。
type CacheInvalidator interface {
	InvalidateByUserID(userID string)
}

// Service はプロフィール管理のサービス層。
// プロフィールの取得・更新と退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	cache       CacheInvalidator
	sanitizer   security.ContentSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
// cacheはnil可。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	cache CacheInvalidator,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		cache:       cache,
		sanitizer:   sanitizer,
	}
}

// GetProfile は指定ユーザーのプロフィールを返す。
// 他ユーザーのプロフィール閲覧にも使用する。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateProfile はユーザー自身のプロフィールを更新する。
// 更新後はセッションキャッシュのエントリを無効化し、
// 次のリクエストで新しいプロフィールが復元されるようにする。
func (s *Service) UpdateProfile(ctx context.Context, userID string, input ProfileInput) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	name := input.Name
	location := input.Location
	bio := input.Bio
	phone := input.Phone
	if s.sanitizer != nil {
		name = s.sanitizer.SanitizeText(name)
		location = s.sanitizer.SanitizeText(location)
		bio = s.sanitizer.SanitizeText(bio)
		phone = s.sanitizer.SanitizeText(phone)
	}

	if name == "" {
		return nil, model.NewInvalidRequestError("表示名は必須です")
	}
	if len([]rune(name)) > maxNameLength {
		return nil, model.NewInvalidRequestError("表示名が長すぎます")
	}

	user.Name = name
	user.Location = location
	user.Bio = bio
	user.Phone = phone
	user.UpdatedAt = time.Now()

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidateByUserID(userID)
	}

	slog.Info("プロフィールを更新しました",
		slog.String("user_id", userID),
	)

	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（+ CASCADE: identities, items, bulletins, messages）
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. セッションを削除（全デバイスからログアウト）
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	if s.cache != nil {
		s.cache.InvalidateByUserID(userID)
	}

	// 2. ユーザーを削除（identitiesや投稿はCASCADE削除される）
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
