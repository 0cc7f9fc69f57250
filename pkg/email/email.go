// Package email normalizes and masks the contact addresses kept in a
// client's onboarding profile.
package email

import (
	"strings"
)

// Normalize trims and lowercases addr and reports whether it has the
// local@domain shape with a dotted domain.
func Normalize(addr string) (string, bool) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	at := strings.IndexByte(addr, '@')
	if at <= 0 || at != strings.LastIndexByte(addr, '@') {
		return "", false
	}
	domain := addr[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", false
	}
	if strings.ContainsAny(addr, " \t\r\n") {
		return "", false
	}
	return addr, true
}

// Mask hides the local part of addr for logs, keeping its first rune.
func Mask(addr string) string {
	at := strings.IndexByte(addr, '@')
	if at <= 0 {
		return "***"
	}
	runes := []rune(addr[:at])
	return string(runes[0]) + "***" + addr[at:]
}
