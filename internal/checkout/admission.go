package checkout

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"eventmitra/backend/internal/integrations"
	"eventmitra/backend/internal/metrics"
	"eventmitra/backend/internal/models"
	"eventmitra/backend/internal/repository"
	"eventmitra/backend/internal/ticketing"
)

var ErrQRMismatch = errors.New("qr code does not match this ticket")

// QRImageSize is the edge length of rendered ticket QR codes in pixels.
const QRImageSize = 320

type AdmissionStore interface {
	GetEvent(ctx context.Context, id int64) (models.Event, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	CheckInTicket(ctx context.Context, ticketID string, operatorID int64, location string, now time.Time) (repository.CheckInResult, error)
	TransferTicket(ctx context.Context, ticketID string, fromUserID int64, recipientEmail string, now time.Time) (models.Ticket, error)
}

// Publisher receives check-in updates for live dashboards.
type Publisher interface {
	PublishCheckIn(ctx context.Context, msg integrations.CheckInMessage) error
}

type ScanInput struct {
	TicketID  string
	QRPayload string
}

type CheckInInput struct {
	TicketID  string
	QRPayload string
	Location  string
}

// Admission covers everything that happens to a ticket after it is issued.
type Admission struct {
	store    AdmissionStore
	feed     Publisher
	logger   *slog.Logger
	qrSecret string
	now      func() time.Time
}

func NewAdmission(store AdmissionStore, feed Publisher, qrSecret string, logger *slog.Logger) *Admission {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admission{
		store:    store,
		feed:     feed,
		logger:   logger,
		qrSecret: qrSecret,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Ticket returns a ticket with its QR image to the holder, the event
// organizer or an admin.
func (a *Admission) Ticket(ctx context.Context, actor Actor, ticketID string) (models.Ticket, error) {
	ticket, err := a.store.GetTicket(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if ticket.UserID != actor.UserID && !actor.IsAdmin() {
		event, err := a.store.GetEvent(ctx, ticket.EventID)
		if err != nil {
			return models.Ticket{}, err
		}
		if event.OrganizerID != actor.UserID {
			return models.Ticket{}, ErrForbidden
		}
	}
	ticket.QRImage, err = ticketing.QRDataURI(ticket.QRPayload, QRImageSize)
	if err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

// QRImage renders the ticket QR as PNG bytes.
func (a *Admission) QRImage(ctx context.Context, actor Actor, ticketID string) ([]byte, error) {
	ticket, err := a.Ticket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	return ticketing.GenerateQRImagePNG(ticket.QRPayload, QRImageSize)
}

// Verify reports whether a scanned ticket would be admitted right now. It
// never mutates the ticket. When no ticket id is given the id is taken from
// the signed payload.
func (a *Admission) Verify(ctx context.Context, in ScanInput) (ticketing.VerifyResult, error) {
	ticketID := strings.TrimSpace(in.TicketID)
	if ticketID == "" {
		payload, err := ticketing.VerifyQRPayload(a.qrSecret, in.QRPayload)
		if err != nil {
			return ticketing.VerifyTicket(ticketing.VerifyInput{}), nil
		}
		ticketID = payload.TicketID
	}
	ticket, err := a.store.GetTicket(ctx, ticketID)
	if errors.Is(err, repository.ErrTicketNotFound) {
		return ticketing.VerifyTicket(ticketing.VerifyInput{}), nil
	}
	if err != nil {
		return ticketing.VerifyResult{}, err
	}
	event, err := a.store.GetEvent(ctx, ticket.EventID)
	if err != nil {
		return ticketing.VerifyResult{}, err
	}
	return ticketing.VerifyTicket(ticketing.VerifyInput{
		Ticket:     &ticket,
		EventStart: event.StartsAt,
		EventEnd:   event.EndsAt,
		Scanned:    in.QRPayload,
		Now:        a.now(),
	}), nil
}

// CheckIn redeems a ticket for entry. Only the event organizer or an admin
// may check tickets in. The event time window is not enforced here.
func (a *Admission) CheckIn(ctx context.Context, actor Actor, in CheckInInput) (repository.CheckInResult, error) {
	ticket, err := a.store.GetTicket(ctx, in.TicketID)
	if err != nil {
		metrics.CheckIn(metrics.OutcomeRejected)
		return repository.CheckInResult{}, err
	}
	if !actor.IsAdmin() {
		event, err := a.store.GetEvent(ctx, ticket.EventID)
		if err != nil {
			return repository.CheckInResult{}, err
		}
		if event.OrganizerID != actor.UserID {
			metrics.CheckIn(metrics.OutcomeRejected)
			return repository.CheckInResult{}, ErrForbidden
		}
	}
	if strings.TrimSpace(in.QRPayload) != "" && !ticketing.PayloadsMatch(ticket.QRPayload, in.QRPayload) {
		metrics.CheckIn(metrics.OutcomeRejected)
		return repository.CheckInResult{}, ErrQRMismatch
	}

	result, err := a.store.CheckInTicket(ctx, ticket.ID, actor.UserID, strings.TrimSpace(in.Location), a.now())
	if err != nil {
		if errors.Is(err, ticketing.ErrTicketAlreadyCheckedIn) || errors.Is(err, ticketing.ErrTicketNotActive) {
			metrics.CheckIn(metrics.OutcomeRejected)
		} else {
			metrics.CheckIn(metrics.OutcomeFailed)
		}
		return repository.CheckInResult{}, err
	}
	metrics.CheckIn(metrics.OutcomeOK)

	checkedInAt := a.now()
	if result.Ticket.CheckIn.CheckedInAt != nil {
		checkedInAt = *result.Ticket.CheckIn.CheckedInAt
	}
	if a.feed != nil {
		if err := a.feed.PublishCheckIn(ctx, integrations.CheckInMessage{
			TicketID:       result.Ticket.ID,
			EventID:        result.EventID,
			CheckedInAt:    checkedInAt,
			CheckedInCount: result.CheckedInCount,
		}); err != nil {
			a.logger.Warn("live_feed_publish", "status", "failed", "ticket_id", result.Ticket.ID, "error", err)
		}
	}
	return result, nil
}

// Transfer hands the caller's ticket to another registered user.
func (a *Admission) Transfer(ctx context.Context, actor Actor, ticketID, recipientEmail string) (models.Ticket, error) {
	ticket, err := a.store.TransferTicket(ctx, ticketID, actor.UserID, recipientEmail, a.now())
	if err != nil {
		return models.Ticket{}, err
	}
	a.logger.Info("ticket_transferred", "ticket_id", ticket.ID, "from_user_id", actor.UserID, "to_user_id", ticket.UserID)
	return ticket, nil
}
