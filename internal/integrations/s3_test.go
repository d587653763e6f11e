package integrations

import (
	"context"
	"testing"
	"time"

	"eventmitra/backend/internal/config"
)

func newTestS3(t *testing.T, endpoint, public string) *S3Client {
	t.Helper()
	client, err := NewS3(context.Background(), config.S3Config{
		Endpoint:       endpoint,
		PublicEndpoint: public,
		Bucket:         "eventmitra",
		AccessKey:      "key",
		SecretKey:      "secret",
		UseSSL:         false,
	})
	if err != nil {
		t.Fatalf("new s3: %v", err)
	}
	client.now = func() time.Time { return time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC) }
	return client
}

func TestNewS3RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), config.S3Config{}); err == nil {
		t.Fatalf("expected error without bucket")
	}
}

func TestPublicURLAndKeyRoundTrip(t *testing.T) {
	client := newTestS3(t, "minio:9000", "cdn.example.com")
	url := client.publicURLForKey("tickets/7/abc.png")
	if url != "http://cdn.example.com/eventmitra/tickets/7/abc.png" {
		t.Fatalf("unexpected public url %q", url)
	}
	key, ok := client.KeyFromURL(url)
	if !ok || key != "tickets/7/abc.png" {
		t.Fatalf("unexpected key %q ok=%v", key, ok)
	}
	if _, ok := client.KeyFromURL("https://elsewhere.example.com/x.png"); ok {
		t.Fatalf("foreign url should not resolve to a key")
	}
}

func TestObjectKeys(t *testing.T) {
	client := newTestS3(t, "", "")
	if got := client.uploadKey("uploads", "my photo/1.png"); got != "uploads/2026/10/19/1792396800000000000-my-photo-1.png" {
		t.Fatalf("unexpected upload key %q", got)
	}
	if got := TicketQRKey(7, "t-1"); got != "tickets/7/t-1.png" {
		t.Fatalf("unexpected qr key %q", got)
	}
	if got := client.publicURLForKey("a.png"); got != "https://eventmitra.s3.amazonaws.com/a.png" {
		t.Fatalf("unexpected default url %q", got)
	}
}
