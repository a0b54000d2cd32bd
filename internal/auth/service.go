// Package auth はOAuth認証フロー、ユーザープロビジョニング、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/smnguyen/epulo/internal/model"
	"github.com/smnguyen/epulo/internal/repository"
)

// ErrNotAuthenticated はセッションからユーザーを復元できない場合に返される。
// リクエスト単位の認証失敗であり、プロセスを停止させるものではない。
var ErrNotAuthenticated = errors.New("not authenticated")

// ExternalIdentity は外部IdPから取得した検証済みのユーザー情報を表す。
type ExternalIdentity struct {
	ProviderUserID string
	Email          string
	Name           string
	PhotoURL       string
	Provider       string // "facebook" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Facebook以外）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*ExternalIdentity, error)
}

// MetricsRecorder は認証フローのメトリクス記録インターフェース。
// nilの場合は記録をスキップする。
type MetricsRecorder interface {
	RecordLogin(wasCreated bool)
	RecordLoginFailure()
	RecordSessionCacheHit()
	RecordSessionCacheMiss()
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）

	// RefreshProfileOnLogin がtrueの場合、既存ユーザーのログイン時にも
	// IdPのプロフィールでname/email/photo_urlを上書きする。
	// falseの場合は初回作成時のみプロフィールを設定する（従来の挙動）。
	RefreshProfileOnLogin bool
}

// LoginResult は外部ログイン解決の結果を表す。
// WasCreated はfind-or-create自身が返すフラグであり、
// 呼び出し側が後から推測してはならない。初回ログインのリダイレクト先の分岐に使う。
type LoginResult struct {
	Session    *model.Session
	User       *model.User
	WasCreated bool
}

// Service は外部IdPの一回限りのアサーションと複数リクエストにまたがる
// ローカルセッションを、安定したローカルUserに橋渡しする。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	cache       *SessionCache
	metrics     MetricsRecorder
	config      ServiceConfig
}

// NewService はServiceを生成する。cacheとmetricsはnilでもよい。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	cache *SessionCache,
	metrics MetricsRecorder,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		cache:       cache,
		metrics:     metrics,
		config:      config,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 認可コードの交換に成功した場合のみユーザーのfind-or-createを行う。
// IdP側の失敗・拒否ではUserレコードを一切作成・変更しない。
func (s *Service) HandleCallback(ctx context.Context, code string) (*LoginResult, error) {
	identity, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordLoginFailure()
		}
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	user, wasCreated, err := s.ResolveExternalLogin(ctx, identity)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordLoginFailure()
		}
		return nil, err
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordLoginFailure()
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordLogin(wasCreated)
	}

	return &LoginResult{Session: session, User: user, WasCreated: wasCreated}, nil
}

// ResolveExternalLogin は検証済み外部identityに対するfind-or-createを実行する。
// 戻り値のboolは「このログインでUserレコードが新規作成されたか」を示す。
//
// 同一の外部IDに対する同時初回ログインでは、identities(provider, provider_user_id)の
// 一意制約により片方のINSERTが失敗する。失敗した側は「既存」として勝者のレコードを
// 読み直すため、Userレコードが二重に作成されることはない。
func (s *Service) ResolveExternalLogin(ctx context.Context, identity *ExternalIdentity) (*model.User, bool, error) {
	existing, err := s.identRepo.FindByProviderAndProviderUserID(ctx, identity.Provider, identity.ProviderUserID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find identity: %w", err)
	}

	if existing != nil {
		user, err := s.loadExistingUser(ctx, existing.UserID, identity)
		if err != nil {
			return nil, false, err
		}
		slog.Info("existing user logged in",
			slog.String("user_id", user.ID),
			slog.String("provider", identity.Provider),
		)
		return user, false, nil
	}

	user, err := s.provisionUser(ctx, identity)
	if err == nil {
		slog.Info("new user created",
			slog.String("user_id", user.ID),
			slog.String("provider", identity.Provider),
		)
		return user, true, nil
	}

	// 同時初回ログインの競合: 勝者のレコードを読み直して「既存」として扱う。
	if errors.Is(err, model.ErrDuplicateIdentity) {
		winner, findErr := s.identRepo.FindByProviderAndProviderUserID(ctx, identity.Provider, identity.ProviderUserID)
		if findErr != nil {
			return nil, false, fmt.Errorf("failed to re-read identity after conflict: %w", findErr)
		}
		if winner == nil {
			return nil, false, fmt.Errorf("identity conflict but winner not found: %s/%s", identity.Provider, identity.ProviderUserID)
		}
		user, loadErr := s.loadExistingUser(ctx, winner.UserID, identity)
		if loadErr != nil {
			return nil, false, loadErr
		}
		slog.Info("concurrent first login resolved to existing user",
			slog.String("user_id", user.ID),
			slog.String("provider", identity.Provider),
		)
		return user, false, nil
	}

	return nil, false, fmt.Errorf("failed to create user and identity: %w", err)
}

// loadExistingUser は既存ユーザーを取得し、設定に応じてプロフィールを更新する。
func (s *Service) loadExistingUser(ctx context.Context, userID string, identity *ExternalIdentity) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("identity references missing user: %s", userID)
	}

	if s.config.RefreshProfileOnLogin {
		user.Name = identity.Name
		user.Email = identity.Email
		user.PhotoURL = identity.PhotoURL
		user.UpdatedAt = time.Now()
		if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to refresh profile: %w", err)
		}
	}

	return user, nil
}

// provisionUser は新規ユーザーとidentityを同一トランザクションで作成する。
// プロフィール項目はIdPのアサーションから設定される。
func (s *Service) provisionUser(ctx context.Context, identity *ExternalIdentity) (*model.User, error) {
	now := time.Now()

	user := &model.User{
		ID:        uuid.New().String(),
		Email:     identity.Email,
		Name:      identity.Name,
		PhotoURL:  identity.PhotoURL,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ident := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       identity.Provider,
		ProviderUserID: identity.ProviderUserID,
		CreatedAt:      now,
	}

	if err := s.userRepo.CreateWithIdentity(ctx, user, ident); err != nil {
		return nil, err
	}

	return user, nil
}

// ResolveSession はセッションIDから現在のユーザーを復元する。
// リクエストごとにディレクトリを参照するが、キャッシュが設定されている場合は
// TTL内の再参照を省略する（観測される契約は変わらない）。
// 一時的なディレクトリ障害は1回だけ即時リトライし、それでも失敗した場合は
// ErrNotAuthenticatedを返す。セッショントークン自体は破棄しない。
func (s *Service) ResolveSession(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, ErrNotAuthenticated
	}

	if s.cache != nil {
		if user, ok := s.cache.Get(sessionID); ok {
			if s.metrics != nil {
				s.metrics.RecordSessionCacheHit()
			}
			return user, nil
		}
		if s.metrics != nil {
			s.metrics.RecordSessionCacheMiss()
		}
	}

	session, err := findSessionWithRetry(ctx, s.sessionRepo, sessionID)
	if err != nil {
		slog.Error("failed to find session", slog.String("error", err.Error()))
		return nil, ErrNotAuthenticated
	}
	if session == nil {
		return nil, ErrNotAuthenticated
	}

	user, err := findUserWithRetry(ctx, s.userRepo, session.UserID)
	if err != nil {
		slog.Error("failed to find user for session", slog.String("error", err.Error()))
		return nil, ErrNotAuthenticated
	}
	if user == nil {
		// セッションが削除済みユーザーを参照している
		return nil, ErrNotAuthenticated
	}

	if s.cache != nil {
		s.cache.Put(sessionID, user)
	}

	return user, nil
}

// Logout はセッションを破棄し、キャッシュを無効化する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if s.cache != nil {
		s.cache.Invalidate(sessionID)
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// createSession はセッションを作成し永続化する。
// セッション行に保存される唯一の耐久状態はユーザーの内部IDであり、
// Userレコード本体はセッションには保存しない。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// findSessionWithRetry は一時的な読み取り障害を1回だけ即時リトライする。
func findSessionWithRetry(ctx context.Context, repo repository.SessionRepository, id string) (*model.Session, error) {
	session, err := repo.FindByID(ctx, id)
	if err == nil {
		return session, nil
	}
	return repo.FindByID(ctx, id)
}

// findUserWithRetry は一時的な読み取り障害を1回だけ即時リトライする。
func findUserWithRetry(ctx context.Context, repo repository.UserRepository, id string) (*model.User, error) {
	user, err := repo.FindByID(ctx, id)
	if err == nil {
		return user, nil
	}
	return repo.FindByID(ctx, id)
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
