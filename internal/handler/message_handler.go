package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/smnguyen/epulo/internal/messaging"
	"github.com/smnguyen/epulo/internal/middleware"
	"github.com/smnguyen/epulo/internal/model"
)

// MessageServiceInterface はメッセージハンドラーが必要とするサービスインターフェース。
type MessageServiceInterface interface {
	// ListMessages はユーザーが送受信したメッセージ一覧を返す。
	ListMessages(ctx context.Context, userID string) ([]*model.Message, error)
	// SendMessage はメッセージを保存し、宛先へのメール通知をアウトボックスに積む。
	SendMessage(ctx context.Context, senderID string, input messaging.MessageInput) (*model.Message, error)
}

// MessageHandler はユーザー間メッセージのHTTPハンドラー。
type MessageHandler struct {
	service MessageServiceInterface
}

// NewMessageHandler はMessageHandlerを生成する。
func NewMessageHandler(service MessageServiceInterface) *MessageHandler {
	return &MessageHandler{service: service}
}

// messageRequest はメッセージ送信リクエストのボディ。
type messageRequest struct {
	RecipientID string `json:"recipient_id"`
	ItemID      string `json:"item_id,omitempty"`
	Body        string `json:"body"`
}

// messageResponse はメッセージのレスポンス。
type messageResponse struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	ItemID      *string   `json:"item_id,omitempty"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// messageListResponse はメッセージ一覧のレスポンス。
type messageListResponse struct {
	Messages []messageResponse `json:"messages"`
}

// ListMessages はログインユーザーのメッセージ一覧を取得する。
// GET /api/messages
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	messages, err := h.service.ListMessages(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	list := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		list = append(list, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, messageListResponse{Messages: list})
}

// SendMessage はメッセージを送信する。
// メール通知はアウトボックス経由で非同期に配信されるため、
// このハンドラーはメール送信の成否を待たない。
// POST /api/messages
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, model.NewInvalidRequestError("JSONの形式が不正です"))
		return
	}

	message, err := h.service.SendMessage(r.Context(), userID, messaging.MessageInput{
		RecipientID: req.RecipientID,
		ItemID:      req.ItemID,
		Body:        req.Body,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMessageResponse(message))
}

func toMessageResponse(m *model.Message) messageResponse {
	return messageResponse{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		ItemID:      m.ItemID,
		Body:        m.Body,
		CreatedAt:   m.CreatedAt,
	}
}
