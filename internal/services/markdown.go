package services

import (
	"strings"
	"unicode/utf8"
)

// Characters Telegram's MarkdownV2 parser treats as markup
const markdownV2Special = "_*[]()~`>#+-=|{}.!\\"

// EscapeMarkdownV2 escapes free text for a MarkdownV2 message body
func EscapeMarkdownV2(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		if strings.ContainsRune(markdownV2Special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// maskEmail keeps the first character of the local part: a***@b.com
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	_, size := utf8.DecodeRuneInString(email)
	return email[:size] + strings.Repeat("*", 3) + email[at:]
}

// maskPhone keeps the last four digits
func maskPhone(phone string) string {
	digits := onlyDigits(phone)
	if len(digits) <= 4 {
		return digits
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
