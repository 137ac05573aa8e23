package util

import "strings"

// Tokenize splits raw text on whitespace and separates leading and trailing
// punctuation into tokens of their own, so "(dog)." becomes "(", "dog", ")."
// Punctuation inside a word ("don't", "U.S") is kept.
func Tokenize(text string) []string {
	var tokens []string
	for _, field := range strings.Fields(text) {
		if IsPunctuation(field) {
			tokens = append(tokens, field)
			continue
		}
		runes := []rune(field)
		lo, hi := 0, len(runes)
		for lo < hi && isPunct(runes[lo]) {
			lo++
		}
		for hi > lo && isPunct(runes[hi-1]) {
			hi--
		}
		if lo > 0 {
			tokens = append(tokens, string(runes[:lo]))
		}
		tokens = append(tokens, string(runes[lo:hi]))
		if hi < len(runes) {
			tokens = append(tokens, string(runes[hi:]))
		}
	}
	return tokens
}
