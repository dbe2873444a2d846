// Package credential はパスワードのハッシュ化と照合を提供する。
package credential

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes はbcryptが扱えるパスワードの最大バイト長。
const MaxPasswordBytes = 72

// Hasher はパスワードのハッシュ化と照合のインターフェース。
type Hasher interface {
	Hash(raw string) (string, error)
	Verify(raw, digest string) bool
}

// BcryptHasher はbcryptによるHasher実装。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher はBcryptHasherを生成する。
// costがbcryptの許容範囲外の場合はbcrypt.DefaultCostを使用する。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash はソルト付きのダイジェストを生成する。同じ入力でも呼び出しごとに異なる値になる。
func (h *BcryptHasher) Hash(raw string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(raw), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify はrawがdigestと一致するかを返す。
// 不正な形式のダイジェストは不一致として扱う。
func (h *BcryptHasher) Verify(raw, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(raw)) == nil
}

var _ Hasher = (*BcryptHasher)(nil)
