package ticketing

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"
)

var orderNumberEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewOrderNumber returns a human readable id like EM-20261019-K3Q7ZB.
func NewOrderNumber(now time.Time) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	suffix := orderNumberEncoding.EncodeToString(buf)[:6]
	return fmt.Sprintf("EM-%s-%s", now.UTC().Format("20060102"), suffix), nil
}
