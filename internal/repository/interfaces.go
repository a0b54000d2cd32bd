// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/smnguyen/epulo/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// (provider, provider_user_id)の一意制約に違反した場合は
	// model.ErrDuplicateIdentityを返し、ユーザー行も残さない。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateProfile はユーザーのプロフィール項目を更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentitiesはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ItemRepository はインベントリアイテムの永続化インターフェース。
type ItemRepository interface {
	// FindByID は指定IDのアイテムを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Item, error)

	// ListByUserID はユーザーの全アイテムを作成日時昇順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Item, error)

	// Create はアイテムを作成する。
	Create(ctx context.Context, item *model.Item) error

	// Update は既存アイテムを上書き更新する。
	Update(ctx context.Context, item *model.Item) error

	// Delete は指定IDのアイテムを削除する。
	Delete(ctx context.Context, id string) error

	// ReplaceAllForUser はユーザーの全アイテムを削除してitemsで置き換える。
	// インベントリ初期化フローで使用する。単一トランザクションで実行される。
	ReplaceAllForUser(ctx context.Context, userID string, items []*model.Item) error

	// SearchByTitle はタイトルの部分一致でアイテムを検索する。
	SearchByTitle(ctx context.Context, query string, limit int) ([]*model.Item, error)
}

// BulletinRepository は掲示板投稿の永続化インターフェース。
type BulletinRepository interface {
	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Bulletin, error)

	// ListRecent は全ユーザーの投稿を新しい順にlimit件返す。
	ListRecent(ctx context.Context, limit int) ([]*model.Bulletin, error)

	// ListByUserID はユーザーの投稿一覧を新しい順に返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Bulletin, error)

	// Create は投稿を作成する。
	Create(ctx context.Context, bulletin *model.Bulletin) error

	// Update は既存投稿を上書き更新する。
	Update(ctx context.Context, bulletin *model.Bulletin) error

	// Delete は指定IDの投稿を削除する。
	Delete(ctx context.Context, id string) error

	// SearchByTitle はタイトルの部分一致で投稿を検索する。
	SearchByTitle(ctx context.Context, query string, limit int) ([]*model.Bulletin, error)
}

// MessageRepository はユーザー間メッセージの永続化インターフェース。
type MessageRepository interface {
	// CreateWithEmail はメッセージと通知メールを同一トランザクションで作成する。
	// emailがnilの場合はメッセージのみを作成する。
	// どちらか一方だけが残ることはない。
	CreateWithEmail(ctx context.Context, message *model.Message, email *model.EmailMessage) error

	// ListByUserID はユーザーが送信または受信したメッセージを新しい順に返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Message, error)
}

// EmailOutboxRepository はオファーメールのアウトボックス永続化インターフェース。
// メールの作成はMessageRepository.CreateWithEmailがメッセージと同一
// トランザクションで行うため、ここには配信側の操作のみを置く。
type EmailOutboxRepository interface {
	// ClaimDue は配信予定時刻を過ぎたpendingメールをsendingに更新して確保する。
	// 確保は1文のUPDATEで行われるため、複数ワーカーが同時に呼んでも
	// 同じメールが二重に返ることはない。
	ClaimDue(ctx context.Context, limit int) ([]*model.EmailMessage, error)

	// MarkSent はメールを配信済みに更新する。
	MarkSent(ctx context.Context, id string, sentAt time.Time) error

	// MarkFailed はメールの失敗を記録する。
	// attemptsをインクリメントし、nextAttemptAtに次回配信予定を設定する。
	// terminalがtrueの場合はstatusをfailedにして以後の配信を打ち切る。
	MarkFailed(ctx context.Context, id string, lastError string, nextAttemptAt time.Time, terminal bool) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
