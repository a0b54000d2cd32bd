package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/smnguyen/epulo/internal/model"
)

// PostgresBulletinRepo はPostgreSQLを使用した掲示板投稿リポジトリ。
type PostgresBulletinRepo struct {
	db *sql.DB
}

// NewPostgresBulletinRepo はPostgresBulletinRepoを生成する。
func NewPostgresBulletinRepo(db *sql.DB) *PostgresBulletinRepo {
	return &PostgresBulletinRepo{db: db}
}

const bulletinColumns = `id, user_id, title, body, created_at, updated_at`

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *PostgresBulletinRepo) FindByID(ctx context.Context, id string) (*model.Bulletin, error) {
	b := &model.Bulletin{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+bulletinColumns+` FROM bulletins WHERE id = $1`, id,
	).Scan(&b.ID, &b.UserID, &b.Title, &b.Body, &b.CreatedAt, &b.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find bulletin: %w", err)
	}
	return b, nil
}

// ListRecent は全ユーザーの投稿を新しい順にlimit件返す。
func (r *PostgresBulletinRepo) ListRecent(ctx context.Context, limit int) ([]*model.Bulletin, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bulletinColumns+` FROM bulletins ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bulletins: %w", err)
	}
	defer rows.Close()

	return collectBulletins(rows)
}

// ListByUserID はユーザーの投稿一覧を新しい順に返す。
func (r *PostgresBulletinRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Bulletin, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bulletinColumns+` FROM bulletins WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user bulletins: %w", err)
	}
	defer rows.Close()

	return collectBulletins(rows)
}

// Create は投稿を作成する。
func (r *PostgresBulletinRepo) Create(ctx context.Context, bulletin *model.Bulletin) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bulletins (id, user_id, title, body, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		bulletin.ID, bulletin.UserID, bulletin.Title, bulletin.Body, bulletin.CreatedAt, bulletin.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bulletin: %w", err)
	}
	return nil
}

// Update は既存投稿を上書き更新する。
func (r *PostgresBulletinRepo) Update(ctx context.Context, bulletin *model.Bulletin) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE bulletins SET title = $2, body = $3, updated_at = $4 WHERE id = $1`,
		bulletin.ID, bulletin.Title, bulletin.Body, bulletin.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update bulletin: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("bulletin not found: %s", bulletin.ID)
	}
	return nil
}

// Delete は指定IDの投稿を削除する。
func (r *PostgresBulletinRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM bulletins WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete bulletin: %w", err)
	}
	return nil
}

// SearchByTitle はタイトルの部分一致で投稿を検索する。
func (r *PostgresBulletinRepo) SearchByTitle(ctx context.Context, query string, limit int) ([]*model.Bulletin, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bulletinColumns+` FROM bulletins
		 WHERE title ILIKE '%' || $1 || '%'
		 ORDER BY created_at DESC
		 LIMIT $2`,
		escapeLikePattern(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search bulletins: %w", err)
	}
	defer rows.Close()

	return collectBulletins(rows)
}

// collectBulletins は複数行の投稿をスキャンして返す。
func collectBulletins(rows *sql.Rows) ([]*model.Bulletin, error) {
	var bulletins []*model.Bulletin
	for rows.Next() {
		b := &model.Bulletin{}
		if err := rows.Scan(&b.ID, &b.UserID, &b.Title, &b.Body, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bulletin: %w", err)
		}
		bulletins = append(bulletins, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bulletins: %w", err)
	}
	return bulletins, nil
}

// compile-time interface check
var _ BulletinRepository = (*PostgresBulletinRepo)(nil)
