package i18n

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"
)

// catalogs 按 locale 注册的消息表；en 是所有语言的回退
// catalogs maps a locale to its messages; en is the fallback for every locale
var catalogs = map[string]map[string]string{
	"en":    EnMessages,
	"pt-BR": PtBRMessages,
}

// I18n 某个 locale 的只读消息表
// I18n is the read-only message table of one locale
type I18n struct {
	locale   string
	messages map[string]string
}

var global atomic.Pointer[I18n]

// Global 返回全局实例，首次使用时按环境变量检测 locale
// Global returns the process-wide instance, detecting the locale on first use
func Global() *I18n {
	if g := global.Load(); g != nil {
		return g
	}
	global.CompareAndSwap(nil, New(""))
	return global.Load()
}

// Init 用指定 locale 替换全局实例
// Init replaces the process-wide instance
func Init(locale string) {
	global.Store(New(locale))
}

// T 全局翻译快捷函数
// T is a global translation shortcut
func T(key string, args ...any) string {
	return Global().T(key, args...)
}

// Locales 已支持的 locale 列表
// Locales lists the supported locales
func Locales() []string {
	out := make([]string, 0, len(catalogs))
	for l := range catalogs {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// New 创建 i18n 实例；空 locale 时从环境检测，不支持的 locale 回退到 en
// New builds the table for locale. An empty locale is detected from the
// environment; unsupported locales fall back to English.
func New(locale string) *I18n {
	if strings.TrimSpace(locale) == "" {
		locale = DetectLocale()
	}
	locale = normalizeLocale(locale)
	overlay, ok := catalogs[locale]
	if !ok {
		locale, overlay = "en", nil
	}

	messages := make(map[string]string, len(EnMessages))
	for k, v := range EnMessages {
		messages[k] = v
	}
	for k, v := range overlay {
		messages[k] = v
	}
	return &I18n{locale: locale, messages: messages}
}

// T 翻译函数；缺失的 key 原样返回
// T translates key, returning the key itself when it is unknown
func (i *I18n) T(key string, args ...any) string {
	tmpl, ok := i.messages[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

func (i *I18n) Locale() string {
	return i.locale
}

// DetectLocale 按 VIDPREDICT_LANG、LC_ALL、LC_MESSAGES、LANG 的顺序检测
// DetectLocale reads the first non-empty locale variable, app-specific first
func DetectLocale() string {
	for _, env := range []string{"VIDPREDICT_LANG", "LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return normalizeLocale(v)
		}
	}
	return "en"
}

// normalizeLocale 将 pt_BR.UTF-8 之类的值规整为 catalogs 的 key
// normalizeLocale turns values such as pt_BR.UTF-8 into catalog keys
func normalizeLocale(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, ".@"); idx >= 0 {
		s = s[:idx]
	}
	if s == "" || s == "C" || s == "POSIX" {
		return "en"
	}
	s = strings.ReplaceAll(s, "_", "-")
	switch lower := strings.ToLower(s); {
	case strings.HasPrefix(lower, "pt"):
		return "pt-BR"
	case strings.HasPrefix(lower, "en"):
		return "en"
	}
	return s
}
