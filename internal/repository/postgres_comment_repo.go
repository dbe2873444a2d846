package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/schedboard/internal/model"
)

const commentColumns = `id, content, user_id, schedule_id, created_at, updated_at`

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

func scanComment(row rowScanner) (*model.Comment, error) {
	c := &model.Comment{}
	err := row.Scan(&c.ID, &c.Content, &c.UserID, &c.ScheduleID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	if !isUUID(id) {
		return nil, nil
	}
	c, err := scanComment(r.db.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find comment by ID: %w", err)
	}
	return c, nil
}

// ListByScheduleID は予定に紐づくコメントを作成順に返す。
func (r *PostgresCommentRepo) ListByScheduleID(ctx context.Context, scheduleID string) ([]*model.Comment, error) {
	if !isUUID(scheduleID) {
		return []*model.Comment{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE schedule_id = $1 ORDER BY created_at, id`,
		scheduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := []*model.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return comments, nil
}

// Create はコメントを作成する。
func (r *PostgresCommentRepo) Create(ctx context.Context, comment *model.Comment) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO comments (id, content, user_id, schedule_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		comment.ID, comment.Content, comment.UserID, comment.ScheduleID,
	).Scan(&comment.CreatedAt, &comment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", translatePQError(err))
	}
	return nil
}

func lockComment(ctx context.Context, tx *sql.Tx, id string) (*model.Comment, error) {
	if !isUUID(id) {
		return nil, ErrNotFound
	}
	c, err := scanComment(tx.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = $1 FOR UPDATE`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock comment: %w", err)
	}
	return c, nil
}

// Update はSELECT ... FOR UPDATEで行をロックし、mutate適用後に本文のみ保存する。
func (r *PostgresCommentRepo) Update(ctx context.Context, id string, mutate CommentMutator) (*model.Comment, error) {
	var updated *model.Comment
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		c, err := lockComment(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := mutate(c); err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx,
			`UPDATE comments SET content = $2, updated_at = now()
			 WHERE id = $1
			 RETURNING user_id, schedule_id, updated_at`,
			id, c.Content,
		).Scan(&c.UserID, &c.ScheduleID, &c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update comment: %w", err)
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteByID は指定IDのコメントを削除する。
func (r *PostgresCommentRepo) DeleteByID(ctx context.Context, id string, check CommentMutator) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		c, err := lockComment(ctx, tx, id)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(c); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete comment: %w", err)
		}
		return nil
	})
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
