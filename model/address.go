package model

import (
	"strings"
	"unicode"
)

// Address suffixes used by the WhatsApp engine.
const (
	UserSuffix  = "@s.whatsapp.net"
	GroupSuffix = "@g.us"
)

// NormalizeRecipient converts an operator-entered phone number into the
// engine's canonical address: non-digits are stripped and suffix is
// appended. Addresses already ending in suffix, or in the group suffix,
// are returned unchanged. An empty suffix means UserSuffix.
func NormalizeRecipient(raw, suffix string) (string, error) {
	if suffix == "" {
		suffix = UserSuffix
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &ValidationError{Field: "phoneNumber", Reason: "is required"}
	}
	if strings.HasSuffix(raw, suffix) || strings.HasSuffix(raw, GroupSuffix) {
		return raw, nil
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return "", &ValidationError{Field: "phoneNumber", Reason: "must contain digits"}
	}
	return digits + suffix, nil
}

// IsBlank reports whether s has no visible characters.
func IsBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
