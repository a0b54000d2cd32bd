// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// Name、Email、PhotoURLは初回ログイン時にIdPのプロフィールから設定される。
// Location、Bio、Phoneはユーザーが後から任意に設定するアプリケーション項目。
type User struct {
	ID        string
	Email     string
	Name      string
	PhotoURL  string
	Location  string
	Bio       string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
// (Provider, ProviderUserID)の組は全体で一意であり、
// 1つの外部IDに対してUserレコードは必ず1件しか存在しない。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// 永続化される状態はUserIDのみで、Userレコード本体はセッションに保存しない。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
