package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/marquee/internal/model"
	"github.com/hitoshi/marquee/internal/security"
)

// requestValidator はリクエストボディのバリデーションを行う。
// エラーは最初の1件で打ち切らず、全フィールド分をまとめて返す。
type requestValidator struct {
	v *validator.Validate
}

func newRequestValidator(guard security.URLGuard) *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// エラーメッセージにはJSONのフィールド名を使う
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// SNSのプロフィールURLはプライベートアドレスやhttp(s)以外のスキームを拒否する
	_ = v.RegisterValidation("publicurl", func(fl validator.FieldLevel) bool {
		return guard.ValidatePublicURL(fl.Field().String()) == nil
	})

	return &requestValidator{v: v}
}

// Struct はsを検証し、失敗した場合は VALIDATION_FAILED の *model.APIError を返す。
func (rv *requestValidator) Struct(s interface{}) error {
	err := rv.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	details := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, fieldErrorMessage(fe))
	}
	return model.NewValidationError(details)
}

func fieldErrorMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", field)
	case "min":
		return fmt.Sprintf("%q length must be at least %s characters long", field, fe.Param())
	case "max":
		return fmt.Sprintf("%q length must be less than or equal to %s characters long", field, fe.Param())
	case "email":
		return fmt.Sprintf("%q must be a valid email", field)
	case "datetime":
		return fmt.Sprintf("%q must be a valid date in YYYY-MM-DD format", field)
	case "url", "publicurl":
		return fmt.Sprintf("%q must be a valid public http(s) URL", field)
	default:
		return fmt.Sprintf("%q is invalid", field)
	}
}
