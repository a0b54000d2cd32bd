package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/smnguyen/epulo/internal/middleware"
	"github.com/smnguyen/epulo/internal/model"
	"github.com/smnguyen/epulo/internal/profile"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	// GetProfile はユーザーのプロフィールを返す。
	GetProfile(ctx context.Context, userID string) (*model.User, error)
	// UpdateProfile はログインユーザー自身のプロフィールを更新する。
	UpdateProfile(ctx context.Context, userID string, input profile.ProfileInput) (*model.User, error)
	// Withdraw は退会処理を行う。セッション・関連データを全て削除する。
	Withdraw(ctx context.Context, userID string) error
}

// ProfileHandler はユーザープロフィールのHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// profileRequest はプロフィール更新リクエストのボディ。
type profileRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Bio      string `json:"bio"`
	Phone    string `json:"phone"`
}

// profileResponse はプロフィールのレスポンス。
type profileResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	Location  string    `json:"location,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GetProfile はユーザーのプロフィールを取得する。
// GET /api/users/{id}
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	user, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(user))
}

// UpdateProfile はログインユーザー自身のプロフィールを更新する。
// PUT /api/users/me
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, model.NewInvalidRequestError("JSONの形式が不正です"))
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), userID, profile.ProfileInput{
		Name:     req.Name,
		Location: req.Location,
		Bio:      req.Bio,
		Phone:    req.Phone,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(user))
}

// Withdraw は退会処理を行う。
// セッションCookieのクリアも行い、以後のリクエストは未認証になる。
// DELETE /api/users/me
func (h *ProfileHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	// セッションCookieをクリア
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

func toProfileResponse(user *model.User) profileResponse {
	return profileResponse{
		ID:        user.ID,
		Name:      user.Name,
		PhotoURL:  user.PhotoURL,
		Location:  user.Location,
		Bio:       user.Bio,
		Phone:     user.Phone,
		CreatedAt: user.CreatedAt,
	}
}
