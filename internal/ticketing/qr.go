package ticketing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

var (
	ErrInvalidQRPayload = errors.New("invalid qr payload")
	ErrInvalidQRSign    = errors.New("invalid qr signature")
)

// QRPayload is the claim set encoded in every ticket QR code.
type QRPayload struct {
	TicketID string `json:"ticketId"`
	EventID  int64  `json:"eventId"`
	UserID   int64  `json:"userId"`
	IssuedAt int64  `json:"issuedAt"`
}

func BuildPayload(ticketID string, eventID int64, userID int64, issuedAt time.Time) QRPayload {
	return QRPayload{
		TicketID: ticketID,
		EventID:  eventID,
		UserID:   userID,
		IssuedAt: issuedAt.UTC().Unix(),
	}
}

// SignQRPayload encodes payload as base64url(json) + "." + hex(hmac-sha256).
func SignQRPayload(secret string, payload QRPayload) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("secret is required")
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	base := base64.RawURLEncoding.EncodeToString(encoded)
	return base + "." + signRaw(secret, encoded), nil
}

func VerifyQRPayload(secret string, token string) (QRPayload, error) {
	var payload QRPayload
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return payload, ErrInvalidQRPayload
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return payload, ErrInvalidQRPayload
	}
	expectedSig := signRaw(secret, raw)
	if subtle.ConstantTimeCompare([]byte(expectedSig), []byte(strings.ToLower(parts[1]))) != 1 {
		return payload, ErrInvalidQRSign
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, ErrInvalidQRPayload
	}
	if payload.TicketID == "" || payload.EventID <= 0 || payload.UserID <= 0 || payload.IssuedAt <= 0 {
		return payload, ErrInvalidQRPayload
	}
	return payload, nil
}

// PayloadsMatch compares a stored token with a scanned one in constant time.
func PayloadsMatch(stored, scanned string) bool {
	stored = strings.TrimSpace(stored)
	scanned = strings.TrimSpace(scanned)
	if stored == "" || scanned == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(scanned)) == 1
}

func HashPayloadToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func GenerateQRImagePNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}

// QRDataURI renders payload as a PNG data URI.
func QRDataURI(payload string, size int) (string, error) {
	png, err := GenerateQRImagePNG(payload, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func signRaw(secret string, raw []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}
