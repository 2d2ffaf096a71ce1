package outputfmt

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeErrorTextRedactsBotToken(t *testing.T) {
	t.Parallel()

	in := `Post "https://api.telegram.org/bot12345:AAHdqTcvbXYZ_abc-123/sendMessage": context deadline exceeded`
	out := SanitizeErrorText(in)

	if strings.Contains(out, "AAHdqTcvbXYZ_abc-123") {
		t.Fatalf("bot token should be redacted, got %q", out)
	}
	if strings.Contains(out, "api.telegram.org") {
		t.Fatalf("host should be removed, got %q", out)
	}
	if !strings.Contains(out, "/bot[redacted]/sendMessage") {
		t.Fatalf("expected redacted bot path, got %q", out)
	}
	if !strings.Contains(out, "context deadline exceeded") {
		t.Fatalf("surrounding text should survive, got %q", out)
	}
}

func TestSanitizeErrorTextRedactsSensitiveQuery(t *testing.T) {
	t.Parallel()

	in := `fetch failed: https://a.example.com/ping?token=abc then https://b.example.com/health?ok=1`
	out := SanitizeErrorText(in)

	if strings.Contains(out, "a.example.com") || strings.Contains(out, "b.example.com") {
		t.Fatalf("hosts should be removed, got %q", out)
	}
	if !strings.Contains(out, "/ping?token=%5Bredacted%5D") {
		t.Fatalf("token query should be redacted, got %q", out)
	}
	if !strings.Contains(out, "/health?ok=1") {
		t.Fatalf("benign query should be kept, got %q", out)
	}
}

func TestFormatErrorForDisplay(t *testing.T) {
	t.Parallel()

	if got := FormatErrorForDisplay(nil); got != "" {
		t.Fatalf("nil error should format as empty string, got %q", got)
	}
	err := errors.New(`Post "https://example.com/api?apikey=123": bad gateway`)
	got := FormatErrorForDisplay(err)
	if strings.Contains(got, "example.com") {
		t.Fatalf("host should be removed, got %q", got)
	}
	if !strings.Contains(got, "/api?apikey=%5Bredacted%5D") {
		t.Fatalf("expected redacted apikey query, got %q", got)
	}
}

func TestSanitizeErrorTextPlainText(t *testing.T) {
	t.Parallel()

	if got := SanitizeErrorText("  queue write failed  "); got != "queue write failed" {
		t.Fatalf("got %q", got)
	}
	if got := SanitizeErrorText(""); got != "" {
		t.Fatalf("empty input should stay empty, got %q", got)
	}
}
