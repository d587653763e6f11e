package rate

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
)

func TestWindowLimiter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	l := NewWindowLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	if !l.Hit("a") || !l.Hit("a") {
		t.Fatalf("first two hits should pass")
	}
	ok, retry, _ := l.Allow(context.Background(), "a")
	if ok {
		t.Fatalf("third hit should be limited")
	}
	if retry != time.Minute {
		t.Fatalf("expected retry after 1m, got %s", retry)
	}
	if !l.Hit("b") {
		t.Fatalf("other keys are independent")
	}

	now = now.Add(time.Minute)
	if !l.Hit("a") {
		t.Fatalf("window should reset")
	}

	l.Hit("a")
	l.Reset("a")
	if !l.Hit("a") {
		t.Fatalf("reset should clear the key")
	}
}

func TestKeyedLimiter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	l := NewKeyedLimiter(3)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _, _ := l.Allow(ctx, "ip"); !ok {
			t.Fatalf("request %d should pass", i)
		}
	}
	ok, retry, _ := l.Allow(ctx, "ip")
	if ok {
		t.Fatalf("burst exhausted, request should be limited")
	}
	if retry <= 0 || retry > 20*time.Second {
		t.Fatalf("unexpected retry delay %s", retry)
	}

	now = now.Add(20 * time.Second)
	if ok, _, _ := l.Allow(ctx, "ip"); !ok {
		t.Fatalf("a token should be back after 20s")
	}
}

func TestRedisLimiter(t *testing.T) {
	t.Parallel()

	db, mock := redismock.NewClientMock()
	now := time.Date(2026, 10, 19, 12, 0, 30, 0, time.UTC)
	l := NewRedisLimiter(db, 2, time.Minute)
	l.now = func() time.Time { return now }
	key, retry := l.windowKey("1.2.3.4", now)
	if retry != 30*time.Second {
		t.Fatalf("expected 30s to the window edge, got %s", retry)
	}

	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, time.Minute).SetVal(true)
	mock.ExpectIncr(key).SetVal(2)
	mock.ExpectIncr(key).SetVal(3)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, "1.2.3.4")
		if err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, wait, err := l.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok || wait != 30*time.Second {
		t.Fatalf("expected limit with 30s wait, got ok=%v wait=%s", ok, wait)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("redis expectations: %v", err)
	}
}

func TestRedisLimiterError(t *testing.T) {
	t.Parallel()

	db, mock := redismock.NewClientMock()
	l := NewRedisLimiter(db, 2, time.Minute)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	key, _ := l.windowKey("k", now)
	mock.ExpectIncr(key).SetErr(context.DeadlineExceeded)

	if _, _, err := l.Allow(context.Background(), "k"); err == nil {
		t.Fatalf("expected redis error")
	}
}
