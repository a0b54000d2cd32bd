package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/smnguyen/epulo/internal/bulletin"
	"github.com/smnguyen/epulo/internal/middleware"
	"github.com/smnguyen/epulo/internal/model"
)

// BulletinServiceInterface は掲示板ハンドラーが必要とするサービスインターフェース。
type BulletinServiceInterface interface {
	// ListRecent は新着順の投稿一覧を返す。
	ListRecent(ctx context.Context) ([]*model.Bulletin, error)
	// ListByUser は指定ユーザーの投稿一覧を返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Bulletin, error)
	// GetBulletin は投稿詳細を返す。
	GetBulletin(ctx context.Context, bulletinID string) (*model.Bulletin, error)
	// CreateBulletin は投稿を作成する。
	CreateBulletin(ctx context.Context, userID string, input bulletin.BulletinInput) (*model.Bulletin, error)
	// UpdateBulletin は所有者の投稿を更新する。
	UpdateBulletin(ctx context.Context, userID, bulletinID string, input bulletin.BulletinInput) (*model.Bulletin, error)
	// DeleteBulletin は所有者の投稿を削除する。
	DeleteBulletin(ctx context.Context, userID, bulletinID string) error
}

// BulletinHandler は掲示板のHTTPハンドラー。
type BulletinHandler struct {
	service BulletinServiceInterface
}

// NewBulletinHandler はBulletinHandlerを生成する。
func NewBulletinHandler(service BulletinServiceInterface) *BulletinHandler {
	return &BulletinHandler{service: service}
}

// bulletinRequest は投稿作成・更新リクエストのボディ。
type bulletinRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// bulletinResponse は投稿のレスポンス。Bodyはサニタイズ済みHTML。
type bulletinResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// bulletinListResponse は投稿一覧のレスポンス。
type bulletinListResponse struct {
	Bulletins []bulletinResponse `json:"bulletins"`
}

// ListBulletins は掲示板の投稿一覧を取得する。
// GET /api/bulletins?user_id=xxx
// user_idを指定すると該当ユーザーの投稿のみ返す。
func (h *BulletinHandler) ListBulletins(w http.ResponseWriter, r *http.Request) {
	var (
		bulletins []*model.Bulletin
		err       error
	)
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		bulletins, err = h.service.ListByUser(r.Context(), userID)
	} else {
		bulletins, err = h.service.ListRecent(r.Context())
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBulletinListResponse(bulletins))
}

// GetBulletin は投稿詳細を取得する。
// GET /api/bulletins/{id}
func (h *BulletinHandler) GetBulletin(w http.ResponseWriter, r *http.Request) {
	bulletinID := chi.URLParam(r, "id")

	b, err := h.service.GetBulletin(r.Context(), bulletinID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBulletinResponse(b))
}

// CreateBulletin は投稿を作成する。
// POST /api/bulletins
func (h *BulletinHandler) CreateBulletin(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req bulletinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, model.NewInvalidRequestError("JSONの形式が不正です"))
		return
	}

	b, err := h.service.CreateBulletin(r.Context(), userID, bulletin.BulletinInput{
		Title: req.Title,
		Body:  req.Body,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBulletinResponse(b))
}

// UpdateBulletin は投稿を更新する。
// PUT /api/bulletins/{id}
func (h *BulletinHandler) UpdateBulletin(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	bulletinID := chi.URLParam(r, "id")

	var req bulletinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, model.NewInvalidRequestError("JSONの形式が不正です"))
		return
	}

	b, err := h.service.UpdateBulletin(r.Context(), userID, bulletinID, bulletin.BulletinInput{
		Title: req.Title,
		Body:  req.Body,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBulletinResponse(b))
}

// DeleteBulletin は投稿を削除する。
// DELETE /api/bulletins/{id}
func (h *BulletinHandler) DeleteBulletin(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	bulletinID := chi.URLParam(r, "id")

	if err := h.service.DeleteBulletin(r.Context(), userID, bulletinID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toBulletinResponse(b *model.Bulletin) bulletinResponse {
	return bulletinResponse{
		ID:        b.ID,
		UserID:    b.UserID,
		Title:     b.Title,
		Body:      b.Body,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

func toBulletinListResponse(bulletins []*model.Bulletin) bulletinListResponse {
	list := make([]bulletinResponse, 0, len(bulletins))
	for _, b := range bulletins {
		list = append(list, toBulletinResponse(b))
	}
	return bulletinListResponse{Bulletins: list}
}
