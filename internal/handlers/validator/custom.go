package validator

import (
	"net/url"

	"github.com/go-playground/validator/v10"

	"github.com/cortap/cortap-rpt/internal/store/model"
)

func reportTypeValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return model.ReportType(val).Valid()
}

// callbackURLValidator accepts an empty value or an absolute http(s) URL.
func callbackURLValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	if val == "" {
		return true
	}

	u, err := url.Parse(val)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
