// Package model はドメインモデルを定義する。
package model

import "time"

// Message はユーザー間の取引交渉メッセージを表す。
// ItemIDは交渉対象のアイテムがある場合のみ設定される。
type Message struct {
	ID          string
	SenderID    string
	RecipientID string
	ItemID      *string
	Body        string // サニタイズ済み
	CreatedAt   time.Time
}

// EmailStatus はアウトボックス内メールの配信状態を表す。
type EmailStatus string

const (
	// EmailStatusPending は配信待ちの状態。
	EmailStatusPending EmailStatus = "pending"
	// EmailStatusSending はワーカーが配信のために確保した状態。
	// 確保したまま更新が止まった行は一定時間後に再度配信対象となる。
	EmailStatusSending EmailStatus = "sending"
	// EmailStatusSent は配信済みの状態。
	EmailStatusSent EmailStatus = "sent"
	// EmailStatusFailed はリトライ上限に達して配信を断念した状態。
	EmailStatusFailed EmailStatus = "failed"
)

// EmailMessage はアウトボックスに積まれたオファーメールを表す。
// ハンドラーは行を作成するだけで、配信はワーカーが非同期に行う。
type EmailMessage struct {
	ID             string
	SenderID       string
	RecipientEmail string
	Subject        string
	Body           string
	Status         EmailStatus
	Attempts       int
	LastError      string
	NextAttemptAt  time.Time
	SentAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
