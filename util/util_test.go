package util

import (
	"os"
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		text     string
		expected []string
	}{
		{"The dog runs.", []string{"The", "dog", "runs", "."}},
		{"  (dog)!  ", []string{"(", "dog", ")!"}},
		{"don't stop", []string{"don't", "stop"}},
		{"... what ?", []string{"...", "what", "?"}},
		{"wait --!? ok", []string{"wait", "--!?", "ok"}},
		{"我们，是", []string{"我们，是"}},
		{"你好。", []string{"你好", "。"}},
		{"", nil},
	}

	for _, tt := range tests {
		got := Tokenize(tt.text)
		if !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("Tokenize(%q) = %q, want %q", tt.text, got, tt.expected)
		}
	}
}

func TestIsPunctuation(t *testing.T) {
	tests := []struct {
		s        string
		expected bool
	}{
		{".", true},
		{"?!", true},
		{"。", true},
		{"，", true},
		{"dog", false},
		{"U.S", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsPunctuation(tt.s); got != tt.expected {
			t.Errorf("IsPunctuation(%q) = %v, want %v", tt.s, got, tt.expected)
		}
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	if FileExists(dir) {
		t.Errorf("FileExists(%q) = true for a directory", dir)
	}
	path := dir + "/model.txt"
	if FileExists(path) {
		t.Errorf("FileExists(%q) = true before create", path)
	}
	if err := os.WriteFile(path, []byte("T A B 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(path) {
		t.Errorf("FileExists(%q) = false after create", path)
	}
}
