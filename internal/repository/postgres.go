package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgreSQLのエラーコード
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	// uuid列に不正な文字列を渡したときのinvalid_text_representation
	pqInvalidTextRepresentation = "22P02"
)

// isUUID はidがUUID列と比較可能な形式かを判定する。
// UUIDでないIDは該当行が存在しないものとして扱う。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// translatePQError は制約違反を番兵エラーに変換する。それ以外はそのまま返す。
func translatePQError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqUniqueViolation:
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	case pqForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrReferenceMissing, pqErr.Constraint)
	case pqInvalidTextRepresentation:
		return fmt.Errorf("%w: %s", ErrNotFound, pqErr.Message)
	}
	return err
}

// withTx はトランザクション内でfnを実行する。fnがエラーを返した場合はロールバックする。
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}
