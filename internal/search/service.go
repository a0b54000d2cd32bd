// Package search はアイテム・掲示板の横断検索を提供する。
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/smnguyen/epulo/internal/model"
	"github.com/smnguyen/epulo/internal/repository"
)

// defaultSearchLimit は検索結果の最大件数（種別ごと）。
const defaultSearchLimit = 20

// typeaheadLimit は入力補完候補の最大件数。
const typeaheadLimit = 8

// maxQueryLength は検索クエリの最大文字数。
const maxQueryLength = 100

// Results は横断検索の結果。
type Results struct {
	Items     []*model.Item
	Bulletins []*model.Bulletin
}

// Service は検索のサービス層。
type Service struct {
	itemRepo     repository.ItemRepository
	bulletinRepo repository.BulletinRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(itemRepo repository.ItemRepository, bulletinRepo repository.BulletinRepository) *Service {
	return &Service{
		itemRepo:     itemRepo,
		bulletinRepo: bulletinRepo,
	}
}

// Search はアイテムと掲示板投稿をタイトルの部分一致で横断検索する。
// 空クエリには空の結果を返す。
func (s *Service) Search(ctx context.Context, query string) (*Results, error) {
	query, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return &Results{}, nil
	}

	items, err := s.itemRepo.SearchByTitle(ctx, query, defaultSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("アイテム検索に失敗しました: %w", err)
	}

	bulletins, err := s.bulletinRepo.SearchByTitle(ctx, query, defaultSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("掲示板検索に失敗しました: %w", err)
	}

	return &Results{
		Items:     items,
		Bulletins: bulletins,
	}, nil
}

// Typeahead は入力補完用のアイテムタイトル候補を返す。
// 空クエリには空の候補を返す。重複タイトルは除去する。
func (s *Service) Typeahead(ctx context.Context, query string) ([]string, error) {
	query, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return nil, nil
	}

	items, err := s.itemRepo.SearchByTitle(ctx, query, typeaheadLimit)
	if err != nil {
		return nil, fmt.Errorf("入力補完の検索に失敗しました: %w", err)
	}

	seen := make(map[string]bool, len(items))
	titles := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item.Title] {
			continue
		}
		seen[item.Title] = true
		titles = append(titles, item.Title)
	}

	return titles, nil
}

// normalizeQuery はクエリをトリムして検証する。
func normalizeQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) > maxQueryLength {
		return "", model.NewInvalidRequestError("検索クエリが長すぎます")
	}
	return query, nil
}
