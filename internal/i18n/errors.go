package i18n

import (
	"errors"

	"vidpredict/internal/api"
)

// Error 返回面向用户的错误文本
// Error returns the text to show the user for a failed operation. Server-provided
// detail is shown verbatim; otherwise the per-operation fallback "error.<op>" is used.
func (i *I18n) Error(op string, err error) string {
	if err == nil {
		return ""
	}

	var ve *api.ValidationError
	if errors.As(err, &ve) {
		// 客户端校验使用本地化文本 / Client-side checks use the localized text
		if ve.Status == 0 && ve.Field != "" {
			if msg := i.T("validation."+ve.Field, ve.Args...); msg != "validation."+ve.Field {
				return msg
			}
		}
		if ve.Message != "" {
			return ve.Message
		}
	}

	if detail := api.Detail(err); detail != "" {
		return detail
	}
	if api.IsUnauthorized(err) {
		return i.T("error.unauthorized")
	}
	if api.IsNetwork(err) {
		return i.T("error.network")
	}
	if msg := i.T("error." + op); msg != "error."+op {
		return msg
	}
	return i.T("error.generic")
}

// Error 全局快捷函数 / Error is the global shortcut
func Error(op string, err error) string {
	return Global().Error(op, err)
}
