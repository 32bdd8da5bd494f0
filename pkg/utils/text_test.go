package utils

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if got := Truncate("hello world", 8); got != "hello..." {
		t.Errorf("got %s", got)
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("abcdef", 2); got != "ab" {
		t.Errorf("tiny maxLen: got %s", got)
	}
}

func TestTruncate_RuneSafe(t *testing.T) {
	title := strings.Repeat("é", 130)
	got := Truncate(title, 120)
	if !utf8.ValidString(got) {
		t.Fatal("truncation split a rune")
	}
	if n := utf8.RuneCountInString(got); n != 120 {
		t.Errorf("got %d runes, want 120", n)
	}
	if !strings.HasSuffix(got, Ellipsis) {
		t.Error("missing ellipsis")
	}
}

func TestIsTruncated(t *testing.T) {
	if IsTruncated("abc", 3) {
		t.Error("exact length is not truncated")
	}
	if !IsTruncated("abcd", 3) {
		t.Error("longer string is truncated")
	}
	if IsTruncated("abcd", 0) {
		t.Error("maxLen 0 never truncates")
	}
}
