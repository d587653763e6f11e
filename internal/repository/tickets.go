package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"eventmitra/backend/internal/models"
	"eventmitra/backend/internal/ticketing"

	"github.com/jackc/pgx/v5"
)

var ErrNotTicketHolder = errors.New("ticket belongs to another user")

const ticketColumns = `t.id::text, t.order_id::text, t.event_id, e.title, t.ticket_type_id, t.ticket_type_name, t.ticket_price, t.user_id,
	t.attendee_name, t.attendee_email, t.attendee_phone, t.qr_payload, t.qr_payload_hash, t.qr_image_url, t.status,
	t.is_checked_in, t.checked_in_at, t.check_in_location, t.checked_in_by, t.issued_at, t.updated_at`

// CheckInResult is a successful check-in plus the event's running count.
type CheckInResult struct {
	Ticket         models.Ticket `json:"ticket"`
	EventID        int64         `json:"eventId"`
	CheckedInCount int64         `json:"checkedInCount"`
}

// GetTicket returns a ticket with its transfer history.
func (r *Repository) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	tickets, err := listTickets(ctx, r.pool, `t.id = $1::uuid`, ticketID)
	if err != nil {
		if isInvalidUUID(err) {
			return models.Ticket{}, ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	if len(tickets) == 0 {
		return models.Ticket{}, ErrTicketNotFound
	}
	ticket := tickets[0]
	ticket.Transfers, err = listTransfers(ctx, r.pool, ticketID)
	return ticket, err
}

func (r *Repository) ListMyTickets(ctx context.Context, userID int64) ([]models.Ticket, error) {
	return listTickets(ctx, r.pool, `t.user_id = $1`, userID)
}

// CheckInTicket redeems an active ticket exactly once and credits the
// attendance bonus to its holder.
func (r *Repository) CheckInTicket(ctx context.Context, ticketID string, operatorID int64, location string, now time.Time) (CheckInResult, error) {
	var out CheckInResult
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var status string
		var checkedIn bool
		var holderID, eventID int64
		if err := tx.QueryRow(ctx, `
SELECT status, is_checked_in, user_id, event_id
FROM tickets
WHERE id = $1::uuid
FOR UPDATE;`, ticketID).Scan(&status, &checkedIn, &holderID, &eventID); err != nil {
			return notFound(err, ErrTicketNotFound)
		}
		if err := ticketing.CanCheckIn(status, checkedIn); err != nil {
			return err
		}
		cmd, err := tx.Exec(ctx, `
UPDATE tickets
SET is_checked_in = true,
	checked_in_at = $2,
	check_in_location = $3,
	checked_in_by = $4,
	status = 'used',
	updated_at = now()
WHERE id = $1::uuid
	AND NOT is_checked_in
	AND status = 'active';`, ticketID, now, nullString(location), operatorID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ticketing.ErrTicketAlreadyCheckedIn
		}
		if err := addLoyaltyPoints(ctx, tx, holderID, ticketing.AttendanceBonusPoints, models.LoyaltyReasonAttendance, ticketID); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM tickets WHERE event_id = $1 AND is_checked_in`, eventID).Scan(&out.CheckedInCount); err != nil {
			return err
		}
		tickets, err := listTickets(ctx, tx, `t.id = $1::uuid`, ticketID)
		if err != nil {
			return err
		}
		if len(tickets) == 0 {
			return ErrTicketNotFound
		}
		out.Ticket = tickets[0]
		out.EventID = eventID
		return nil
	})
	if err != nil {
		return CheckInResult{}, err
	}
	return out, nil
}

// TransferTicket hands an active ticket to the user registered under
// recipientEmail. The ticket status does not change.
func (r *Repository) TransferTicket(ctx context.Context, ticketID string, fromUserID int64, recipientEmail string, now time.Time) (models.Ticket, error) {
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var status string
		var checkedIn bool
		var holderID int64
		var startsAt time.Time
		if err := tx.QueryRow(ctx, `
SELECT t.status, t.is_checked_in, t.user_id, e.starts_at
FROM tickets t
JOIN events e ON e.id = t.event_id
WHERE t.id = $1::uuid
FOR UPDATE OF t;`, ticketID).Scan(&status, &checkedIn, &holderID, &startsAt); err != nil {
			return notFound(err, ErrTicketNotFound)
		}
		if holderID != fromUserID {
			return ErrNotTicketHolder
		}
		if status != models.TicketStatusActive || checkedIn {
			return ticketing.ErrTicketNotActive
		}
		if err := ticketing.CheckTransferWindow(startsAt, now); err != nil {
			return err
		}

		var recipientID int64
		if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE lower(email) = lower($1) AND NOT is_blocked`, strings.TrimSpace(recipientEmail)).Scan(&recipientID); err != nil {
			return notFound(err, ErrRecipientNotFound)
		}
		if recipientID == fromUserID {
			return ErrSelfTransfer
		}

		if _, err := tx.Exec(ctx, `UPDATE tickets SET user_id = $2, updated_at = now() WHERE id = $1::uuid`, ticketID, recipientID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
INSERT INTO ticket_transfers (ticket_id, from_user_id, to_user_id, transferred_at)
VALUES ($1::uuid, $2, $3, $4);`, ticketID, fromUserID, recipientID, now)
		return err
	})
	if err != nil {
		return models.Ticket{}, err
	}
	return r.GetTicket(ctx, ticketID)
}

// CancelTicket voids an active ticket.
func (r *Repository) CancelTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var status string
		if err := tx.QueryRow(ctx, `SELECT status FROM tickets WHERE id = $1::uuid FOR UPDATE`, ticketID).Scan(&status); err != nil {
			return notFound(err, ErrTicketNotFound)
		}
		if !ticketing.CanTransition(status, models.TicketStatusCancelled) {
			return ticketing.ErrTicketNotActive
		}
		_, err := tx.Exec(ctx, `UPDATE tickets SET status = 'cancelled', updated_at = now() WHERE id = $1::uuid`, ticketID)
		return err
	})
	if err != nil {
		return models.Ticket{}, err
	}
	return r.GetTicket(ctx, ticketID)
}

func (r *Repository) SetTicketQRImageURL(ctx context.Context, ticketID, url string) error {
	_, err := r.pool.Exec(ctx, `UPDATE tickets SET qr_image_url = $2, updated_at = now() WHERE id = $1::uuid`, ticketID, nullString(url))
	return err
}

func listTickets(ctx context.Context, q queryRunner, where string, args ...interface{}) ([]models.Ticket, error) {
	rows, err := q.Query(ctx, `
SELECT `+ticketColumns+`
FROM tickets t
JOIN events e ON e.id = t.event_id
WHERE `+where+`
ORDER BY t.issued_at DESC, t.id ASC;`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Ticket, 0)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ticket)
	}
	return out, rows.Err()
}

func listTransfers(ctx context.Context, q queryRunner, ticketID string) ([]models.TicketTransfer, error) {
	rows, err := q.Query(ctx, `
SELECT id, ticket_id::text, from_user_id, to_user_id, transferred_at
FROM ticket_transfers
WHERE ticket_id = $1::uuid
ORDER BY transferred_at ASC, id ASC;`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.TicketTransfer, 0)
	for rows.Next() {
		var item models.TicketTransfer
		if err := rows.Scan(&item.ID, &item.TicketID, &item.FromUserID, &item.ToUserID, &item.TransferredAt); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var out models.Ticket
	var phone sql.NullString
	var qrImageURL sql.NullString
	var checkedInAt sql.NullTime
	var location sql.NullString
	var checkedInBy sql.NullInt64
	if err := row.Scan(
		&out.ID,
		&out.OrderID,
		&out.EventID,
		&out.EventTitle,
		&out.TicketTypeID,
		&out.TicketTypeName,
		&out.TicketPrice,
		&out.UserID,
		&out.Attendee.Name,
		&out.Attendee.Email,
		&phone,
		&out.QRPayload,
		&out.QRPayloadHash,
		&qrImageURL,
		&out.Status,
		&out.CheckIn.IsCheckedIn,
		&checkedInAt,
		&location,
		&checkedInBy,
		&out.IssuedAt,
		&out.UpdatedAt,
	); err != nil {
		return out, err
	}
	out.Attendee.Phone = nullStringValue(phone)
	out.QRImageURL = nullStringValue(qrImageURL)
	out.CheckIn.CheckedInAt = nullTimeToPtr(checkedInAt)
	out.CheckIn.Location = nullStringValue(location)
	out.CheckIn.CheckedInBy = nullInt64ToPtr(checkedInBy)
	return out, nil
}
