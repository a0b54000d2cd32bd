package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/smnguyen/epulo/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用したメッセージリポジトリ。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// CreateWithEmail はメッセージと通知メールを同一トランザクションで作成する。
// emailがnilの場合はメッセージのみを作成する。
// コミットに失敗した場合はどちらの行も残らない。
func (r *PostgresMessageRepo) CreateWithEmail(ctx context.Context, message *model.Message, email *model.EmailMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, sender_id, recipient_id, item_id, body, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		message.ID, message.SenderID, message.RecipientID, message.ItemID, message.Body, message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	if email != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO email_outbox (id, sender_id, recipient_email, subject, body, status, attempts, last_error, next_attempt_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			email.ID, email.SenderID, email.RecipientEmail, email.Subject, email.Body,
			email.Status, email.Attempts, email.LastError, email.NextAttemptAt, email.CreatedAt, email.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert outbox email: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListByUserID はユーザーが送信または受信したメッセージを新しい順に返す。
func (r *PostgresMessageRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sender_id, recipient_id, item_id, body, created_at
		 FROM messages
		 WHERE sender_id = $1 OR recipient_id = $1
		 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		m := &model.Message{}
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.ItemID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)

// PostgresEmailOutboxRepo はPostgreSQLを使用したメールアウトボックスリポジトリ。
type PostgresEmailOutboxRepo struct {
	db *sql.DB
}

// NewPostgresEmailOutboxRepo はPostgresEmailOutboxRepoを生成する。
func NewPostgresEmailOutboxRepo(db *sql.DB) *PostgresEmailOutboxRepo {
	return &PostgresEmailOutboxRepo{db: db}
}

// ClaimDue は配信予定時刻を過ぎたpendingメールをsendingに更新して確保する。
// 確保は1文のUPDATEで行うため、複数ワーカーが同時に呼んでも同じメールが
// 二重に返ることはない。確保したまま更新が止まった行（ワーカーのクラッシュ等）は
// 5分後に再度確保対象となる。
func (r *PostgresEmailOutboxRepo) ClaimDue(ctx context.Context, limit int) ([]*model.EmailMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE email_outbox
		 SET status = 'sending', updated_at = now()
		 WHERE id IN (
		 	SELECT id FROM email_outbox
		 	WHERE (status = 'pending' AND next_attempt_at <= now())
		 	   OR (status = 'sending' AND updated_at <= now() - interval '5 minutes')
		 	ORDER BY next_attempt_at ASC
		 	LIMIT $1
		 	FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, sender_id, recipient_email, subject, body, status, attempts, last_error, next_attempt_at, sent_at, created_at, updated_at`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due emails: %w", err)
	}
	defer rows.Close()

	var emails []*model.EmailMessage
	for rows.Next() {
		e := &model.EmailMessage{}
		if err := rows.Scan(&e.ID, &e.SenderID, &e.RecipientEmail, &e.Subject, &e.Body,
			&e.Status, &e.Attempts, &e.LastError, &e.NextAttemptAt, &e.SentAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emails: %w", err)
	}
	return emails, nil
}

// MarkSent はメールを配信済みに更新する。
func (r *PostgresEmailOutboxRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE email_outbox
		 SET status = 'sent', sent_at = $2, last_error = '', updated_at = now()
		 WHERE id = $1`,
		id, sentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark email sent: %w", err)
	}
	return nil
}

// MarkFailed はメールの失敗を記録する。
// terminalがtrueの場合はstatusをfailedにして以後の配信を打ち切る。
func (r *PostgresEmailOutboxRepo) MarkFailed(ctx context.Context, id string, lastError string, nextAttemptAt time.Time, terminal bool) error {
	status := model.EmailStatusPending
	if terminal {
		status = model.EmailStatusFailed
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE email_outbox
		 SET status = $2, attempts = attempts + 1, last_error = $3, next_attempt_at = $4, updated_at = now()
		 WHERE id = $1`,
		id, status, lastError, nextAttemptAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark email failed: %w", err)
	}
	return nil
}

// compile-time interface check
var _ EmailOutboxRepository = (*PostgresEmailOutboxRepo)(nil)
