// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/smnguyen/epulo/internal/model"
)

// SessionCookieName はセッションIDを保持するHTTP Only Cookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userContextKey はリクエストコンテキストに復元済みユーザーを格納するためのキー。
var userContextKey = contextKey("user")

// SessionResolver はセッションIDから現在のユーザーを復元するインターフェース。
// auth.Serviceの部分集合として定義する。
type SessionResolver interface {
	ResolveSession(ctx context.Context, sessionID string) (*model.User, error)
}

// NewSessionMiddleware はリクエスト単位のアクセスゲートを返す。
//
// リクエストごとの状態は2つだけ: セッションCookieからユーザーを復元できれば
// 復元済みUserをコンテキストに注入してハンドラーへ進み、できなければ
// ハンドラーを一切呼ばずにスプラッシュページへリダイレクトする。
// JSONクライアント（Accept: application/json）にはリダイレクトの代わりに
// 401を返し、SPA側のルーターが処理できるようにする。
func NewSessionMiddleware(resolver SessionResolver, splashURL string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				rejectUnauthenticated(w, r, splashURL)
				return
			}

			user, err := resolver.ResolveSession(r.Context(), cookie.Value)
			if err != nil {
				rejectUnauthenticated(w, r, splashURL)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rejectUnauthenticated は未認証リクエストを拒否する。
// ドキュメントリクエストはスプラッシュページへリダイレクトし、
// JSONクライアントには401エラーエンベロープを返す。
func rejectUnauthenticated(w http.ResponseWriter, r *http.Request, splashURL string) {
	if wantsJSON(r) {
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	http.Redirect(w, r, splashURL, http.StatusFound)
}

// wantsJSON はリクエストがJSONレスポンスを期待しているかを判定する。
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// UserFromContext はリクエストコンテキストから復元済みユーザーを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, error) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not found in context")
	}
	return user, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// ContextWithUser はコンテキストにユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
