package util

import (
	"unicode"
)

// IsPunctuation reports whether s is non-empty and made only of punctuation
// or symbols, CJK and full-width forms included. Such fields become single
// tokens.
func IsPunctuation(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isPunct(r) {
			return false
		}
	}
	return true
}

func isPunct(r rune) bool {
	switch {
	case unicode.IsPunct(r), unicode.IsSymbol(r):
		return true
	case r >= 0x3000 && r <= 0x303F: // CJK symbols and punctuation
		return true
	case r >= 0xFF00 && r <= 0xFFEF: // full-width forms
		return true
	}
	return false
}
