package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"apartel/internal/store"
	apperrors "apartel/pkg/errors"

	money "github.com/Rhymond/go-money"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// 接受的日期格式，依次尝试
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDate 解析 ISO 日期或日期时间，无时区时按 UTC
func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// validationError 将 validator 的错误转换为 invalid_param
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg := fmt.Sprintf("Invalid %s", lowerFirst(fe.Field()))
		if fe.Tag() == "oneof" {
			msg = fmt.Sprintf("%s (allowed: %s)", msg, fe.Param())
		}
		return apperrors.Wrap(apperrors.KindInvalidParam, msg+".", err)
	}
	return apperrors.Wrap(apperrors.KindInvalidParam, "Invalid request.", err)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// normalizeCurrency 校验 ISO 4217 币种代码
func normalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if money.GetCurrency(code) == nil {
		return "", apperrors.New(apperrors.KindInvalidParam, fmt.Sprintf("Unsupported currency: %s.", code))
	}
	return code, nil
}

// displayAmount 按币种格式化金额，用于日志
func displayAmount(amount decimal.Decimal, code string) string {
	cur := money.GetCurrency(code)
	if cur == nil {
		return amount.StringFixed(2) + " " + code
	}
	factor := decimal.New(1, int32(cur.Fraction))
	return money.New(amount.Mul(factor).Round(0).IntPart(), cur.Code).Display()
}

// storeError 将持久化错误归类；已分类的业务错误原样返回
func storeError(err error, notFoundMsg string) error {
	if err == nil {
		return nil
	}
	if apperrors.KindOf(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperrors.Wrap(apperrors.KindNotFound, notFoundMsg, err)
	case errors.Is(err, store.ErrDuplicate):
		return apperrors.Wrap(apperrors.KindConflict, "Record already exists.", err)
	}
	return apperrors.Wrap(apperrors.KindPersistence, "Persistence failure.", err)
}
