package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/smnguyen/epulo/internal/model"
)

// likeEscaper はLIKEパターンのメタ文字をエスケープする。
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLikePattern は利用者入力をLIKEパターンに埋め込める形にする。
// %や_を含む検索語が文字どおりの部分一致として扱われるようになる。
func escapeLikePattern(s string) string {
	return likeEscaper.Replace(s)
}

// PostgresItemRepo はPostgreSQLを使用したインベントリアイテムリポジトリ。
type PostgresItemRepo struct {
	db *sql.DB
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db *sql.DB) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

const itemColumns = `id, user_id, title, description, category, photo_url, photo_data, photo_mime, available, created_at, updated_at`

// scanItem は1行分のアイテムをスキャンする。
func scanItem(row interface{ Scan(dest ...any) error }) (*model.Item, error) {
	item := &model.Item{}
	err := row.Scan(&item.ID, &item.UserID, &item.Title, &item.Description, &item.Category,
		&item.PhotoURL, &item.PhotoData, &item.PhotoMime, &item.Available, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// FindByID は指定IDのアイテムを取得する。見つからない場合はnilを返す。
func (r *PostgresItemRepo) FindByID(ctx context.Context, id string) (*model.Item, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find item: %w", err)
	}
	return item, nil
}

// ListByUserID はユーザーの全アイテムを作成日時昇順で返す。
func (r *PostgresItemRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// Create はアイテムを作成する。
func (r *PostgresItemRepo) Create(ctx context.Context, item *model.Item) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO items (id, user_id, title, description, category, photo_url, photo_data, photo_mime, available, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID, item.UserID, item.Title, item.Description, item.Category,
		item.PhotoURL, item.PhotoData, item.PhotoMime, item.Available, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// Update は既存アイテムを上書き更新する。
func (r *PostgresItemRepo) Update(ctx context.Context, item *model.Item) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE items
		 SET title = $2, description = $3, category = $4, photo_url = $5, photo_data = $6, photo_mime = $7, available = $8, updated_at = $9
		 WHERE id = $1`,
		item.ID, item.Title, item.Description, item.Category,
		item.PhotoURL, item.PhotoData, item.PhotoMime, item.Available, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("item not found: %s", item.ID)
	}
	return nil
}

// Delete は指定IDのアイテムを削除する。
func (r *PostgresItemRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

// ReplaceAllForUser はユーザーの全アイテムを削除してitemsで置き換える。
// インベントリ初期化フローで使用する。単一トランザクションで実行される。
func (r *PostgresItemRepo) ReplaceAllForUser(ctx context.Context, userID string, items []*model.Item) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear inventory: %w", err)
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO items (id, user_id, title, description, category, photo_url, photo_data, photo_mime, available, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			item.ID, item.UserID, item.Title, item.Description, item.Category,
			item.PhotoURL, item.PhotoData, item.PhotoMime, item.Available, item.CreatedAt, item.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SearchByTitle はタイトルの部分一致でアイテムを検索する。
func (r *PostgresItemRepo) SearchByTitle(ctx context.Context, query string, limit int) ([]*model.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE title ILIKE '%' || $1 || '%' AND available = true
		 ORDER BY created_at DESC
		 LIMIT $2`,
		escapeLikePattern(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search items: %w", err)
	}
	defer rows.Close()

	return collectItems(rows)
}

// collectItems は複数行のアイテムをスキャンして返す。
func collectItems(rows *sql.Rows) ([]*model.Item, error) {
	var items []*model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// compile-time interface check
var _ ItemRepository = (*PostgresItemRepo)(nil)
