// Package validation はサービス層の入力値検証を提供する。
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/schedboard/internal/credential"
	"github.com/hitoshi/schedboard/internal/model"
)

// Validator はgo-playground/validatorのラッパー。
// 検証エラーはmodel.APIError（VALIDATION_ERROR）に変換して返す。
type Validator struct {
	v *validator.Validate
}

// New はカスタムルールを登録したValidatorを生成する。
//   - pwlen: bcryptが扱える72バイト以内であること
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// エラーメッセージにはjsonタグの名前を使う
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("pwlen", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= credential.MaxPasswordBytes
	})

	return &Validator{v: v}
}

// Struct は構造体のvalidateタグに従って検証する。
// 最初に違反したフィールドの内容をVALIDATION_ERRORとして返す。
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("failed to validate input: %w", err)
	}
	return model.NewValidationError(describe(verrs[0]))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s は必須です", fe.Field())
	case "max":
		return fmt.Sprintf("%s は%s文字以内で入力してください", fe.Field(), fe.Param())
	case "pwlen":
		return fmt.Sprintf("%s は%dバイト以内で入力してください", fe.Field(), credential.MaxPasswordBytes)
	default:
		return fmt.Sprintf("%s が不正です（%s）", fe.Field(), fe.Tag())
	}
}
