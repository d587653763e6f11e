package auth

import (
	"errors"
	"testing"
)

func TestSignAndParseAccessToken(t *testing.T) {
	t.Parallel()

	token, err := SignAccessToken("secret", 42, "organizer")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := ParseAccessToken("secret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 42 || claims.Role != "organizer" {
		t.Fatalf("unexpected claims: %#v", claims)
	}
	if claims.Subject != "42" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	token, err := SignAccessToken("secret", 42, "attendee")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAccessToken("other", token); err == nil {
		t.Fatalf("expected wrong secret to fail")
	}
	if _, err := ParseAccessToken("secret", "not-a-token"); err == nil {
		t.Fatalf("expected garbage token to fail")
	}
}

func TestPasswordHashing(t *testing.T) {
	t.Parallel()

	if _, err := HashPassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected short password error, got %v", err)
	}
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := CheckPassword(hash, "correct horse"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := CheckPassword(hash, "wrong horse"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected bad credentials, got %v", err)
	}
	if err := CheckPassword("", "anything"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected bad credentials for empty hash, got %v", err)
	}
}
