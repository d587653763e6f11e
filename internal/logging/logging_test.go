package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestRedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, "json", &slog.HandlerOptions{ReplaceAttr: redact}))
	logger.Info("verify_payment", "signature", "abc123", "order_id", "EM-1")

	out := buf.String()
	if strings.Contains(out, "abc123") {
		t.Fatalf("signature leaked: %s", out)
	}
	if !strings.Contains(out, "EM-1") {
		t.Fatalf("expected order id in output: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
