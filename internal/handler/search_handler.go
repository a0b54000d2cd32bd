package handler

import (
	"context"
	"net/http"

	"github.com/smnguyen/epulo/internal/inventory"
	"github.com/smnguyen/epulo/internal/model"
	"github.com/smnguyen/epulo/internal/search"
)

// SearchServiceInterface は検索ハンドラーが必要とするサービスインターフェース。
type SearchServiceInterface interface {
	// Search はアイテムと掲示板投稿をタイトル横断検索する。
	Search(ctx context.Context, query string) (*search.Results, error)
	// Typeahead は入力補完候補のタイトル一覧を返す。
	Typeahead(ctx context.Context, query string) ([]string, error)
}

// SearchHandler は横断検索のHTTPハンドラー。
type SearchHandler struct {
	service SearchServiceInterface
}

// NewSearchHandler はSearchHandlerを生成する。
func NewSearchHandler(service SearchServiceInterface) *SearchHandler {
	return &SearchHandler{service: service}
}

// searchResponse は検索結果のレスポンス。
type searchResponse struct {
	Items     []itemResponse     `json:"items"`
	Bulletins []bulletinResponse `json:"bulletins"`
}

// typeaheadResponse は入力補完候補のレスポンス。
type typeaheadResponse struct {
	Suggestions []string `json:"suggestions"`
}

// Search はアイテムと掲示板投稿を横断検索する。
// GET /api/search?q=xxx
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	results, err := h.service.Search(r.Context(), query)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := searchResponse{
		Items:     make([]itemResponse, 0, len(results.Items)),
		Bulletins: make([]bulletinResponse, 0, len(results.Bulletins)),
	}
	for _, item := range results.Items {
		view := searchItemView(item)
		resp.Items = append(resp.Items, toItemResponse(view))
	}
	for _, b := range results.Bulletins {
		resp.Bulletins = append(resp.Bulletins, toBulletinResponse(b))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Typeahead は検索ボックスの入力補完候補を返す。
// GET /api/search/typeahead?q=xxx
func (h *SearchHandler) Typeahead(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	suggestions, err := h.service.Typeahead(r.Context(), query)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, typeaheadResponse{Suggestions: suggestions})
}

// searchItemView は検索結果のアイテムをレスポンス用ビューに変換する。
// 一覧表示用のため写真データは埋め込まず、元のURLのみ返す。
func searchItemView(item *model.Item) inventory.ItemView {
	view := inventory.ItemView{
		ID:          item.ID,
		UserID:      item.UserID,
		Title:       item.Title,
		Description: item.Description,
		Category:    item.Category,
		Available:   item.Available,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
	if item.PhotoURL != "" {
		url := item.PhotoURL
		view.PhotoURL = &url
	}
	return view
}
