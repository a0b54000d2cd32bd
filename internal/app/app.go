package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/smnguyen/epulo/internal/auth"
	"github.com/smnguyen/epulo/internal/bulletin"
	"github.com/smnguyen/epulo/internal/config"
	"github.com/smnguyen/epulo/internal/database"
	"github.com/smnguyen/epulo/internal/handler"
	"github.com/smnguyen/epulo/internal/inventory"
	"github.com/smnguyen/epulo/internal/logger"
	"github.com/smnguyen/epulo/internal/messaging"
	"github.com/smnguyen/epulo/internal/metrics"
	"github.com/smnguyen/epulo/internal/middleware"
	"github.com/smnguyen/epulo/internal/profile"
	"github.com/smnguyen/epulo/internal/repository"
	"github.com/smnguyen/epulo/internal/search"
	"github.com/smnguyen/epulo/internal/security"
	"github.com/smnguyen/epulo/internal/worker/cleanup"
	"github.com/smnguyen/epulo/internal/worker/outbox"
)

// sessionCleanupInterval は期限切れセッション掃除の実行間隔。
const sessionCleanupInterval = 1 * time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "5000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	itemRepo := repository.NewPostgresItemRepo(db)
	bulletinRepo := repository.NewPostgresBulletinRepo(db)
	messageRepo := repository.NewPostgresMessageRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 5. 認証サービスの初期化
	oauthProvider := auth.NewFacebookOAuthProvider(auth.FacebookOAuthConfig{
		AppID:       cfg.FacebookAppID,
		AppSecret:   cfg.FacebookAppSecret,
		RedirectURL: cfg.FacebookRedirectURL,
		Timeout:     cfg.FacebookTimeout,
	})
	sessionCache := auth.NewSessionCache(cfg.SessionCacheTTL)
	defer sessionCache.Stop()

	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo,
		sessionCache, collector,
		auth.ServiceConfig{
			SessionMaxAge:         cfg.SessionMaxAge,
			RefreshProfileOnLogin: cfg.RefreshProfileOnLogin,
		},
	)

	// 6. ドメインサービスの初期化
	photoFetcher := inventory.NewPhotoFetcher(ssrfGuard, collector, cfg.PhotoFetchTimeout, cfg.PhotoMaxSize)
	inventoryService := inventory.NewService(itemRepo, photoFetcher, sanitizer)
	bulletinService := bulletin.NewService(bulletinRepo, sanitizer)
	messagingService := messaging.NewService(messageRepo, userRepo, itemRepo, sanitizer)
	profileService := profile.NewService(userRepo, sessionRepo, sessionCache, sanitizer)
	searchService := search.NewService(itemRepo, bulletinRepo)

	// 7. レート制限の構築（configはreq/min単位なのでreq/secに変換する）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.EmailRate = rate.Limit(float64(cfg.RateLimitEmail) / 60.0)
	rateLimiterCfg.EmailBurst = cfg.RateLimitEmail
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 8. ルーターの構築
	deps := &handler.RouterDeps{
		HealthChecker:     db,
		Logger:            slog.Default(),
		SessionResolver:   authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		SplashURL: cfg.SplashURL,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			SplashURL:     cfg.SplashURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		InventoryService: inventoryService,
		BulletinService:  bulletinService,
		MessageService:   messagingService,
		ProfileService:   profileService,
		SearchService:    searchService,
	}

	router := handler.NewRouter(deps)

	// 9. メトリクスサーバーの起動（APIとは別ポート）
	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metrics.SetupMetricsRoute(registry),
	}
	go func() {
		slog.Info("metrics server starting", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	// 10. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := metricsServer.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.String("error", err.Error()))
	}
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// アウトボックスのメール配信ドレイナーとセッション掃除ジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	outboxRepo := repository.NewPostgresEmailOutboxRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metrics.SetupMetricsRoute(registry),
	}
	go func() {
		slog.Info("metrics server starting (worker)", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	// 4. アウトボックスドレイナーの初期化
	sender := outbox.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPFrom)
	drainer := outbox.NewDrainer(
		outboxRepo, sender, collector, slog.Default(),
		cfg.OutboxBatchSize, cfg.OutboxMaxAttempts,
	)

	// 5. セッション掃除ジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, collector, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("outbox_interval", cfg.OutboxInterval),
		slog.Int("outbox_batch_size", cfg.OutboxBatchSize),
	)

	// セッション掃除をバックグラウンドで定期実行
	go cleanupJob.Start(ctx, sessionCleanupInterval)

	// アウトボックスドレイナーをメインgoroutineで実行（ブロッキング）
	drainer.Start(ctx, cfg.OutboxInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
