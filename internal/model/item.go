// Package model はドメインモデルを定義する。
package model

import "time"

// Item はユーザーが出品するインベントリアイテムを表す。
type Item struct {
	ID          string
	UserID      string
	Title       string
	Description string // サニタイズ済み
	Category    string
	PhotoURL    string
	PhotoData   []byte
	PhotoMime   string
	Available   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Bulletin はユーザーが掲示板に投稿するお知らせを表す。
type Bulletin struct {
	ID        string
	UserID    string
	Title     string
	Body      string // サニタイズ済みHTML
	CreatedAt time.Time
	UpdatedAt time.Time
}
