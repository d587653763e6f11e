package integrations

import (
	"context"
	"fmt"
	"time"

	"eventmitra/backend/internal/config"

	pubnub "github.com/pubnub/go/v7"
)

// CheckInMessage is published to an event channel on every check-in.
type CheckInMessage struct {
	Type           string    `json:"type"`
	TicketID       string    `json:"ticketId"`
	EventID        int64     `json:"eventId"`
	CheckedInAt    time.Time `json:"checkedInAt"`
	CheckedInCount int64     `json:"checkedInCount"`
}

// LiveFeed pushes check-in updates to organizer dashboards. A nil *LiveFeed
// is valid and publishes nothing.
type LiveFeed struct {
	pn *pubnub.PubNub
}

func NewLiveFeed(cfg config.PubNubConfig) *LiveFeed {
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnConfig.PublishKey = cfg.PublishKey
	pnConfig.SubscribeKey = cfg.SubscribeKey
	return &LiveFeed{pn: pubnub.NewPubNub(pnConfig)}
}

func EventChannel(eventID int64) string {
	return fmt.Sprintf("event-%d-checkins", eventID)
}

func (f *LiveFeed) PublishCheckIn(ctx context.Context, msg CheckInMessage) error {
	if f == nil || f.pn == nil {
		return nil
	}
	if msg.Type == "" {
		msg.Type = "check_in"
	}
	_, _, err := f.pn.PublishWithContext(ctx).
		Channel(EventChannel(msg.EventID)).
		Message(msg).
		Execute()
	return err
}
