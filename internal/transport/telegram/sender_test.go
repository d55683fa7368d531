package telegram

import (
	"strings"
	"testing"

	"pawtrack/internal/transport"
	logx "pawtrack/pkg/logx"
)

func TestFormatText(t *testing.T) {
	t.Parallel()
	got := formatText(transport.Notification{Title: " Walk due ", Message: "Buddy has not been out since 08:00"})
	want := "Walk due\nBuddy has not been out since 08:00"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	got = formatText(transport.Notification{Message: "no title"})
	if got != "no title" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTextShortPassthrough(t *testing.T) {
	t.Parallel()
	chunks := splitText("hello", 100)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("line one\n", 4) + "tail"
	chunks := splitText(text, 20)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %v", chunks)
	}
	for _, c := range chunks {
		if len([]rune(c)) > 20 {
			t.Fatalf("chunk over limit: %q", c)
		}
	}
	if joined := strings.Join(chunks, "\n"); !strings.HasSuffix(joined, "tail") {
		t.Fatalf("content lost: %q", joined)
	}
}

func TestNewRequiresTokenAndChat(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: "", ChatID: 1}, logx.Nop()); err == nil {
		t.Fatal("want error for empty token")
	}
	if _, err := New(Config{Token: "t", ChatID: 0}, logx.Nop()); err == nil {
		t.Fatal("want error for empty chat id")
	}
}
