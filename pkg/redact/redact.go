// redact маскирует чувствительные значения перед записью в лог.
package redact

import "unicode/utf8"

// Token оставляет только короткий префикс токена, чтобы записи
// можно было сопоставить между собой, не раскрывая сам токен.
// Пустой токен возвращается как "-".
func Token(s string) string {
	if s == "" {
		return "-"
	}

	if utf8.RuneCountInString(s) <= 8 {
		return "[REDACTED_TOKEN]"
	}

	prefix := []rune(s)[:4]
	return string(prefix) + "…[REDACTED_TOKEN]"
}

// Username скрывает всё, кроме первых двух символов.
func Username(s string) string {
	r := []rune(s)
	if len(r) <= 2 {
		return "***"
	}

	return string(r[:2]) + "***"
}

func Password() string { return "[REDACTED_PASSWORD]" }
