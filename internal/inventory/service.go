package inventory

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/smnguyen/epulo/internal/model"
	"github.com/smnguyen/epulo/internal/repository"
	"github.com/smnguyen/epulo/internal/security"
)

// maxTitleLength はアイテムタイトルの最大文字数。
const maxTitleLength = 200

// ItemInput はアイテムの作成・更新入力。
type ItemInput struct {
	Title       string
	Description string
	Category    string
	PhotoURL    string
	Available   bool
}

// ItemView はAPI応答用のアイテム表現。
// 写真データはdata URLとして埋め込む。
type ItemView struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Category    string
	PhotoURL    *string
	Available   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Service はインベントリ管理のサービス層。
// アイテムのCRUD、初期セットアップ、写真取得のビジネスロジックを提供する。
type Service struct {
	itemRepo     repository.ItemRepository
	photoFetcher PhotoFetcherService
	sanitizer    security.ContentSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	itemRepo repository.ItemRepository,
	photoFetcher PhotoFetcherService,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		itemRepo:     itemRepo,
		photoFetcher: photoFetcher,
		sanitizer:    sanitizer,
	}
}

// ListItems はユーザーのアイテム一覧を返す。
func (s *Service) ListItems(ctx context.Context, userID string) ([]ItemView, error) {
	items, err := s.itemRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("アイテム一覧の取得に失敗しました: %w", err)
	}

	views := make([]ItemView, len(items))
	for i, item := range items {
		views[i] = toItemView(item)
	}
	return views, nil
}

// GetItem は指定IDのアイテムを返す。
// 所有者以外からの取得も許可する（他ユーザーの出品閲覧のため）。
func (s *Service) GetItem(ctx context.Context, itemID string) (*ItemView, error) {
	item, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}
	if item == nil {
		return nil, model.NewItemNotFoundError(itemID)
	}

	view := toItemView(item)
	return &view, nil
}

// CreateItem はアイテムを作成する。
// 写真URLが指定されている場合は写真を取得して保存する。
// 写真取得失敗は作成を妨げない。
func (s *Service) CreateItem(ctx context.Context, userID string, input ItemInput) (*ItemView, error) {
	item, err := s.buildItem(ctx, userID, input)
	if err != nil {
		return nil, err
	}

	if err := s.itemRepo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("アイテムの作成に失敗しました: %w", err)
	}

	slog.Info("アイテムを作成しました",
		slog.String("item_id", item.ID),
		slog.String("user_id", userID),
	)

	view := toItemView(item)
	return &view, nil
}

// UpdateItem は既存アイテムを更新する。所有者のみ更新できる。
func (s *Service) UpdateItem(ctx context.Context, userID, itemID string, input ItemInput) (*ItemView, error) {
	existing, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}
	if existing == nil {
		return nil, model.NewItemNotFoundError(itemID)
	}
	if existing.UserID != userID {
		return nil, model.NewNotOwnerError()
	}

	updated, err := s.buildItem(ctx, userID, input)
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt

	// 写真URLが変わっていない場合は既存の写真データを引き継ぐ
	if input.PhotoURL == existing.PhotoURL {
		updated.PhotoData = existing.PhotoData
		updated.PhotoMime = existing.PhotoMime
	}

	if err := s.itemRepo.Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("アイテムの更新に失敗しました: %w", err)
	}

	view := toItemView(updated)
	return &view, nil
}

// DeleteItem はアイテムを削除する。所有者のみ削除できる。
func (s *Service) DeleteItem(ctx context.Context, userID, itemID string) error {
	existing, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return fmt.Errorf("アイテムの取得に失敗しました: %w", err)
	}
	if existing == nil {
		return model.NewItemNotFoundError(itemID)
	}
	if existing.UserID != userID {
		return model.NewNotOwnerError()
	}

	if err := s.itemRepo.Delete(ctx, itemID); err != nil {
		return fmt.Errorf("アイテムの削除に失敗しました: %w", err)
	}

	return nil
}

// InitializeInventory はユーザーのインベントリを入力のアイテム群で初期化する。
// 既存アイテムはすべて削除され、単一トランザクションで置き換えられる。
// 新規ユーザーの初回セットアップフローで使用する。
func (s *Service) InitializeInventory(ctx context.Context, userID string, inputs []ItemInput) ([]ItemView, error) {
	items := make([]*model.Item, 0, len(inputs))
	for _, input := range inputs {
		item, err := s.buildItem(ctx, userID, input)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := s.itemRepo.ReplaceAllForUser(ctx, userID, items); err != nil {
		return nil, fmt.Errorf("インベントリの初期化に失敗しました: %w", err)
	}

	slog.Info("インベントリを初期化しました",
		slog.String("user_id", userID),
		slog.Int("item_count", len(items)),
	)

	views := make([]ItemView, len(items))
	for i, item := range items {
		views[i] = toItemView(item)
	}
	return views, nil
}

// buildItem は入力を検証・サニタイズしてItemを構築する。
func (s *Service) buildItem(ctx context.Context, userID string, input ItemInput) (*model.Item, error) {
	title := input.Title
	description := input.Description
	category := input.Category
	if s.sanitizer != nil {
		title = s.sanitizer.SanitizeText(title)
		description = s.sanitizer.SanitizeText(description)
		category = s.sanitizer.SanitizeText(category)
	}

	if title == "" {
		return nil, model.NewInvalidRequestError("タイトルは必須です")
	}
	if len([]rune(title)) > maxTitleLength {
		return nil, model.NewInvalidRequestError("タイトルが長すぎます")
	}

	now := time.Now()
	item := &model.Item{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       title,
		Description: description,
		Category:    category,
		PhotoURL:    input.PhotoURL,
		Available:   input.Available,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if input.PhotoURL != "" && s.photoFetcher != nil {
		data, mime, err := s.photoFetcher.FetchPhoto(ctx, input.PhotoURL)
		if err != nil {
			return nil, fmt.Errorf("写真の取得に失敗しました: %w", err)
		}
		item.PhotoData = data
		item.PhotoMime = mime
	}

	return item, nil
}

// toItemView はItemをAPI応答用の表現に変換する。
func toItemView(item *model.Item) ItemView {
	view := ItemView{
		ID:          item.ID,
		UserID:      item.UserID,
		Title:       item.Title,
		Description: item.Description,
		Category:    item.Category,
		Available:   item.Available,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}

	// 写真データがある場合はdata URLに変換
	if len(item.PhotoData) > 0 && item.PhotoMime != "" {
		dataURL := fmt.Sprintf("data:%s;base64,%s", item.PhotoMime, base64.StdEncoding.EncodeToString(item.PhotoData))
		view.PhotoURL = &dataURL
	} else if item.PhotoURL != "" {
		u := item.PhotoURL
		view.PhotoURL = &u
	}

	return view
}
