package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/smnguyen/epulo/internal/middleware"
)

// HealthChecker はDB接続の死活確認インターフェース。*sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	Logger            *slog.Logger
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	SplashURL         string

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ドメインサービス
	InventoryService InventoryServiceInterface
	BulletinService  BulletinServiceInterface
	MessageService   MessageServiceInterface
	ProfileService   ProfileServiceInterface
	SearchService    SearchServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	SecurityHeaders → CORS → Logging → Recovery → Session → CSRF → RateLimit(General)
//
// 認証ルート（/auth/*）とCSRFトークン取得はアクセスゲートの外に配置する。
// 未認証リクエストはSessionミドルウェアがスプラッシュページへ誘導する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルート共通のミドルウェア
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewRecoveryMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	inventoryHandler := NewInventoryHandler(deps.InventoryService)
	bulletinHandler := NewBulletinHandler(deps.BulletinService)
	messageHandler := NewMessageHandler(deps.MessageService)
	profileHandler := NewProfileHandler(deps.ProfileService)
	searchHandler := NewSearchHandler(deps.SearchService)

	// --- 認証不要のルート ---

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(req.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// OAuthフローとログアウト
	r.Route("/auth", func(r chi.Router) {
		r.Get("/facebook/login", authHandler.Login)
		r.Get("/facebook/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
	})

	// CSRFトークン取得（ログイン画面からも叩けるようゲートの外に置く）
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- アクセスゲートの内側 ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver, deps.SplashURL))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ログインユーザー情報
		r.Get("/api/me", authHandler.Me)

		// インベントリ管理
		r.Route("/api/items", func(r chi.Router) {
			r.Get("/", inventoryHandler.ListItems)
			r.Post("/", inventoryHandler.CreateItem)

			// 初回ログイン後の在庫初期化
			r.Post("/initialize", inventoryHandler.InitializeInventory)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", inventoryHandler.GetItem)
				r.Put("/", inventoryHandler.UpdateItem)
				r.Delete("/", inventoryHandler.DeleteItem)
			})
		})

		// 掲示板
		r.Route("/api/bulletins", func(r chi.Router) {
			r.Get("/", bulletinHandler.ListBulletins)
			r.Post("/", bulletinHandler.CreateBulletin)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", bulletinHandler.GetBulletin)
				r.Put("/", bulletinHandler.UpdateBulletin)
				r.Delete("/", bulletinHandler.DeleteBulletin)
			})
		})

		// メッセージ
		// POST /api/messages - メール通知を伴うため送信専用レート制限を追加
		r.Route("/api/messages", func(r chi.Router) {
			r.Get("/", messageHandler.ListMessages)
			r.With(deps.RateLimiter.EmailMiddleware()).Post("/", messageHandler.SendMessage)
		})

		// ユーザープロフィール
		r.Route("/api/users", func(r chi.Router) {
			r.Put("/me", profileHandler.UpdateProfile)
			r.Delete("/me", profileHandler.Withdraw)
			r.Get("/{id}", profileHandler.GetProfile)
		})

		// 横断検索
		r.Route("/api/search", func(r chi.Router) {
			r.Get("/", searchHandler.Search)
			r.Get("/typeahead", searchHandler.Typeahead)
		})
	})

	return r
}
