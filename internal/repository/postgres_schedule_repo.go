package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/schedboard/internal/model"
)

const scheduleColumns = `id, title, content, user_id, created_at, updated_at`

// PostgresScheduleRepo はPostgreSQLを使用した予定リポジトリ。
type PostgresScheduleRepo struct {
	db *sql.DB
}

// NewPostgresScheduleRepo はPostgresScheduleRepoを生成する。
func NewPostgresScheduleRepo(db *sql.DB) *PostgresScheduleRepo {
	return &PostgresScheduleRepo{db: db}
}

func scanSchedule(row rowScanner) (*model.Schedule, error) {
	s := &model.Schedule{}
	err := row.Scan(&s.ID, &s.Title, &s.Content, &s.UserID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FindByID は指定IDの予定を取得する。見つからない場合はnilを返す。
func (r *PostgresScheduleRepo) FindByID(ctx context.Context, id string) (*model.Schedule, error) {
	if !isUUID(id) {
		return nil, nil
	}
	s, err := scanSchedule(r.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find schedule by ID: %w", err)
	}
	return s, nil
}

// List は全ユーザーの予定を作成順に返す。
func (r *PostgresScheduleRepo) List(ctx context.Context) ([]*model.Schedule, error) {
	return r.query(ctx,
		`SELECT `+scheduleColumns+` FROM schedules ORDER BY created_at, id`,
	)
}

// ListByUserID は指定ユーザーが所有する予定を作成順に返す。
func (r *PostgresScheduleRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Schedule, error) {
	if !isUUID(userID) {
		return []*model.Schedule{}, nil
	}
	return r.query(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE user_id = $1 ORDER BY created_at, id`,
		userID,
	)
}

func (r *PostgresScheduleRepo) query(ctx context.Context, query string, args ...any) ([]*model.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	schedules := []*model.Schedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedules: %w", err)
	}
	return schedules, nil
}

// Create は予定を作成する。
func (r *PostgresScheduleRepo) Create(ctx context.Context, schedule *model.Schedule) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO schedules (id, title, content, user_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		schedule.ID, schedule.Title, schedule.Content, schedule.UserID,
	).Scan(&schedule.CreatedAt, &schedule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", translatePQError(err))
	}
	return nil
}

func lockSchedule(ctx context.Context, tx *sql.Tx, id string) (*model.Schedule, error) {
	if !isUUID(id) {
		return nil, ErrNotFound
	}
	s, err := scanSchedule(tx.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = $1 FOR UPDATE`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock schedule: %w", err)
	}
	return s, nil
}

// Update はSELECT ... FOR UPDATEで行をロックし、mutate適用後に保存する。
// user_idはmutateで変更されても保存しない。
func (r *PostgresScheduleRepo) Update(ctx context.Context, id string, mutate ScheduleMutator) (*model.Schedule, error) {
	var updated *model.Schedule
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		s, err := lockSchedule(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := mutate(s); err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx,
			`UPDATE schedules SET title = $2, content = $3, updated_at = now()
			 WHERE id = $1
			 RETURNING user_id, updated_at`,
			id, s.Title, s.Content,
		).Scan(&s.UserID, &s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update schedule: %w", err)
		}
		updated = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteByID は指定IDの予定を削除する。関連するcommentsはCASCADE削除される。
func (r *PostgresScheduleRepo) DeleteByID(ctx context.Context, id string, check ScheduleMutator) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		s, err := lockSchedule(ctx, tx, id)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(s); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete schedule: %w", err)
		}
		return nil
	})
}

// compile-time interface check
var _ ScheduleRepository = (*PostgresScheduleRepo)(nil)
