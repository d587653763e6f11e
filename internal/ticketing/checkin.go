package ticketing

import (
	"time"

	"eventmitra/backend/internal/models"
)

// CheckInOpensBefore is how long before the start tickets become scannable.
const CheckInOpensBefore = 2 * time.Hour

const (
	VerifyReasonOK               = ""
	VerifyReasonNotFound         = "not_found"
	VerifyReasonQRMismatch       = "qr_mismatch"
	VerifyReasonInvalidStatus    = "invalid_status"
	VerifyReasonTooEarly         = "too_early"
	VerifyReasonEventEnded       = "event_ended"
	VerifyReasonAlreadyCheckedIn = "already_checked_in"
)

var verifyMessages = map[string]string{
	VerifyReasonOK:               "ticket is valid",
	VerifyReasonNotFound:         "ticket not found",
	VerifyReasonQRMismatch:       "qr code does not match this ticket",
	VerifyReasonInvalidStatus:    "ticket is not active",
	VerifyReasonTooEarly:         "check-in has not opened yet",
	VerifyReasonEventEnded:       "event has ended",
	VerifyReasonAlreadyCheckedIn: "ticket already checked in",
}

// VerifyInput carries a scanned ticket and its event window.
type VerifyInput struct {
	Ticket     *models.Ticket
	EventStart time.Time
	EventEnd   time.Time
	Scanned    string
	Now        time.Time
}

// VerifyResult is returned to the scanner. It never implies a mutation.
type VerifyResult struct {
	Valid       bool           `json:"valid"`
	Reason      string         `json:"reason,omitempty"`
	Message     string         `json:"message"`
	Ticket      *models.Ticket `json:"ticket,omitempty"`
	CheckedInAt *time.Time     `json:"checkedInAt,omitempty"`
	Location    string         `json:"location,omitempty"`
}

// VerifyTicket applies the read-only checks in a fixed order: existence,
// QR match, status, check-in window, previous check-in.
func VerifyTicket(in VerifyInput) VerifyResult {
	if in.Ticket == nil {
		return reject(VerifyReasonNotFound, nil)
	}
	ticket := in.Ticket
	if !PayloadsMatch(ticket.QRPayload, in.Scanned) {
		return reject(VerifyReasonQRMismatch, nil)
	}
	if ticket.Status != models.TicketStatusActive {
		res := reject(VerifyReasonInvalidStatus, ticket)
		if ticket.CheckIn.IsCheckedIn {
			res.CheckedInAt = ticket.CheckIn.CheckedInAt
			res.Location = ticket.CheckIn.Location
		}
		return res
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if now.Before(in.EventStart.Add(-CheckInOpensBefore)) {
		return reject(VerifyReasonTooEarly, ticket)
	}
	if now.After(in.EventEnd) {
		return reject(VerifyReasonEventEnded, ticket)
	}
	if ticket.CheckIn.IsCheckedIn {
		res := reject(VerifyReasonAlreadyCheckedIn, ticket)
		res.CheckedInAt = ticket.CheckIn.CheckedInAt
		res.Location = ticket.CheckIn.Location
		return res
	}
	return VerifyResult{Valid: true, Message: verifyMessages[VerifyReasonOK], Ticket: ticket}
}

// CanCheckIn reports whether a ticket in this state may be checked in.
func CanCheckIn(status string, checkedIn bool) error {
	if checkedIn {
		return ErrTicketAlreadyCheckedIn
	}
	if status != models.TicketStatusActive {
		return ErrTicketNotActive
	}
	return nil
}

// CanTransition reports whether a ticket status change is allowed.
func CanTransition(from, to string) bool {
	switch from {
	case models.TicketStatusActive:
		return to == models.TicketStatusUsed || to == models.TicketStatusCancelled || to == models.TicketStatusRefunded
	case models.TicketStatusUsed:
		return to == models.TicketStatusRefunded
	default:
		return false
	}
}

func reject(reason string, ticket *models.Ticket) VerifyResult {
	return VerifyResult{Valid: false, Reason: reason, Message: verifyMessages[reason], Ticket: ticket}
}
