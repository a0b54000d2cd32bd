// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrDuplicateIdentity は同一の(provider, provider_user_id)を持つidentityが
// 既に存在する場合にリポジトリが返すエラー。
// 同時初回ログインの競合時に発生し、認証サービスが「既存ユーザー」として解決する。
var ErrDuplicateIdentity = errors.New("identity already exists")

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, inventory, bulletin, message, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeItemNotFound      = "ITEM_NOT_FOUND"
	ErrCodeBulletinNotFound  = "BULLETIN_NOT_FOUND"
	ErrCodeRecipientNotFound = "RECIPIENT_NOT_FOUND"
	ErrCodeNotOwner          = "NOT_OWNER"
	ErrCodeInvalidURL        = "INVALID_URL"
	ErrCodeSSRFBlocked       = "SSRF_BLOCKED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewItemNotFoundError はアイテム未検出エラーを生成する。
func NewItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  fmt.Sprintf("指定されたアイテムが見つかりません: %s", itemID),
		Category: "inventory",
		Action:   "アイテムIDを確認してください。",
	}
}

// NewBulletinNotFoundError は掲示板投稿未検出エラーを生成する。
func NewBulletinNotFoundError(bulletinID string) *APIError {
	return &APIError{
		Code:     ErrCodeBulletinNotFound,
		Message:  fmt.Sprintf("指定された投稿が見つかりません: %s", bulletinID),
		Category: "bulletin",
		Action:   "投稿IDを確認してください。",
	}
}

// NewRecipientNotFoundError はメッセージ宛先が見つからない場合のエラーを生成する。
func NewRecipientNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeRecipientNotFound,
		Message:  fmt.Sprintf("宛先ユーザーが見つかりません: %s", userID),
		Category: "message",
		Action:   "宛先ユーザーIDを確認してください。",
	}
}

// NewNotOwnerError は所有者以外による変更操作のエラーを生成する。
func NewNotOwnerError() *APIError {
	return &APIError{
		Code:     ErrCodeNotOwner,
		Message:  "このリソースを変更する権限がありません。",
		Category: "validation",
		Action:   "自分が作成したリソースのみ変更できます。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。",
	}
}

// NewInvalidRequestError はリクエスト形式エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}
