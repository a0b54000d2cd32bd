package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/smnguyen/epulo/internal/inventory"
	"github.com/smnguyen/epulo/internal/middleware"
	"github.com/smnguyen/epulo/internal/model"
)

// InventoryServiceInterface はインベントリハンドラーが必要とするサービスインターフェース。
type InventoryServiceInterface interface {
	// ListItems はユーザーのアイテム一覧を返す。
	ListItems(ctx context.Context, userID string) ([]inventory.ItemView, error)
	// GetItem はアイテム詳細を返す。所有者以外も閲覧できる。
	GetItem(ctx context.Context, itemID string) (*inventory.ItemView, error)
	// CreateItem はアイテムを1件作成する。
	CreateItem(ctx context.Context, userID string, input inventory.ItemInput) (*inventory.ItemView, error)
	// UpdateItem は所有者のアイテムを更新する。
	UpdateItem(ctx context.Context, userID, itemID string, input inventory.ItemInput) (*inventory.ItemView, error)
	// DeleteItem は所有者のアイテムを削除する。
	DeleteItem(ctx context.Context, userID, itemID string) error
	// InitializeInventory はユーザーの全アイテムを入力の内容で置き換える。
	InitializeInventory(ctx context.Context, userID string, inputs []inventory.ItemInput) ([]inventory.ItemView, error)
}

// InventoryHandler はインベントリ管理のHTTPハンドラー。
type InventoryHandler struct {
	service InventoryServiceInterface
}

// NewInventoryHandler はInventoryHandlerを生成する。
func NewInventoryHandler(service InventoryServiceInterface) *InventoryHandler {
	return &InventoryHandler{service: service}
}

// --- リクエスト・レスポンス型 ---

// itemRequest はアイテム作成・更新リクエストのボディ。
type itemRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	PhotoURL    string `json:"photo_url"`
	Available   bool   `json:"available"`
}

// initializeInventoryRequest は在庫初期化リクエストのボディ。
type initializeInventoryRequest struct {
	Items []itemRequest `json:"items"`
}

// itemResponse はアイテムのレスポンス。
type itemResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	PhotoURL    *string   `json:"photo_url"`
	Available   bool      `json:"available"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// itemListResponse はアイテム一覧のレスポンス。
type itemListResponse struct {
	Items []itemResponse `json:"items"`
}

// ListItems はログインユーザーのアイテム一覧を取得する。
// GET /api/items
func (h *InventoryHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	views, err := h.service.ListItems(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toItemListResponse(views))
}

// GetItem はアイテム詳細を取得する。所有者以外でも閲覧できる。
// GET /api/items/{id}
func (h *InventoryHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	view, err := h.service.GetItem(r.Context(), itemID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toItemResponse(*view))
}

// CreateItem はアイテムを作成する。
// POST /api/items
func (h *InventoryHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, model.NewInvalidRequestError("JSONの形式が不正です"))
		return
	}

	view, err := h.service.CreateItem(r.Context(), userID, toItemInput(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toItemResponse(*view))
}

// UpdateItem はアイテムを更新する。
// PUT /api/items/{id}
func (h *InventoryHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	itemID := chi.URLParam(r, "id")

	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, model.NewInvalidRequestError("JSONの形式が不正です"))
		return
	}

	view, err := h.service.UpdateItem(r.Context(), userID, itemID, toItemInput(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toItemResponse(*view))
}

// DeleteItem はアイテムを削除する。
// DELETE /api/items/{id}
func (h *InventoryHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	itemID := chi.URLParam(r, "id")

	if err := h.service.DeleteItem(r.Context(), userID, itemID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// InitializeInventory は初回ログイン後の在庫初期化を行う。
// 既存アイテムを全て入力の内容で置き換える。
// POST /api/items/initialize
func (h *InventoryHandler) InitializeInventory(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req initializeInventoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, model.NewInvalidRequestError("JSONの形式が不正です"))
		return
	}

	inputs := make([]inventory.ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		inputs = append(inputs, toItemInput(item))
	}

	views, err := h.service.InitializeInventory(r.Context(), userID, inputs)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toItemListResponse(views))
}

// --- 変換ヘルパー ---

func toItemInput(req itemRequest) inventory.ItemInput {
	return inventory.ItemInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		PhotoURL:    req.PhotoURL,
		Available:   req.Available,
	}
}

func toItemResponse(view inventory.ItemView) itemResponse {
	return itemResponse{
		ID:          view.ID,
		UserID:      view.UserID,
		Title:       view.Title,
		Description: view.Description,
		Category:    view.Category,
		PhotoURL:    view.PhotoURL,
		Available:   view.Available,
		CreatedAt:   view.CreatedAt,
		UpdatedAt:   view.UpdatedAt,
	}
}

func toItemListResponse(views []inventory.ItemView) itemListResponse {
	items := make([]itemResponse, 0, len(views))
	for _, v := range views {
		items = append(items, toItemResponse(v))
	}
	return itemListResponse{Items: items}
}

// --- 共通レスポンスヘルパー ---

// apiErrorResponse は統一エラーフォーマットのレスポンスボディ。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeUnauthorized は未認証エラーレスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

// userFromRequest はリクエストコンテキストからログインユーザーを取り出す。
func userFromRequest(r *http.Request) (*model.User, error) {
	return middleware.UserFromContext(r.Context())
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeUserNotFound,
		model.ErrCodeItemNotFound,
		model.ErrCodeBulletinNotFound,
		model.ErrCodeRecipientNotFound:
		return http.StatusNotFound
	case model.ErrCodeNotOwner:
		return http.StatusForbidden
	case model.ErrCodeInvalidURL, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
