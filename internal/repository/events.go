package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"eventmitra/backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// eventColumns expects events aliased as e and the organizer as u.
const eventColumns = `e.id, e.organizer_id, u.name, e.title, e.description, e.category, e.starts_at, e.ends_at,
	e.venue_name, e.venue_address, e.venue_city, e.venue_lat, e.venue_lng, e.venue_capacity,
	e.banner_url, e.status, e.total_tickets_sold, e.total_revenue, e.rating, e.created_at, e.updated_at`

const ticketTypeColumns = `id, event_id, name, description, price, quantity, sold, max_per_user, sale_starts_at, sale_ends_at, is_active, created_at, updated_at`

func (r *Repository) CreateEvent(ctx context.Context, organizerID int64, in models.EventInput, ticketTypes []models.TicketTypeInput) (models.Event, error) {
	var eventID int64
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO events (
	organizer_id, title, description, category, starts_at, ends_at,
	venue_name, venue_address, venue_city, venue_lat, venue_lng, venue_capacity
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id;`,
			organizerID,
			strings.TrimSpace(in.Title),
			in.Description,
			strings.ToLower(strings.TrimSpace(in.Category)),
			in.StartsAt.UTC(),
			in.EndsAt.UTC(),
			strings.TrimSpace(in.Venue.Name),
			strings.TrimSpace(in.Venue.Address),
			strings.TrimSpace(in.Venue.City),
			in.Venue.Lat,
			in.Venue.Lng,
			in.Venue.Capacity,
		)
		if err := row.Scan(&eventID); err != nil {
			return err
		}
		for _, tt := range ticketTypes {
			if _, err := insertTicketType(ctx, tx, eventID, tt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Event{}, err
	}
	return r.GetEvent(ctx, eventID)
}

// GetEvent returns the event with all of its ticket types.
func (r *Repository) GetEvent(ctx context.Context, eventID int64) (models.Event, error) {
	row := r.pool.QueryRow(ctx, `
SELECT `+eventColumns+`
FROM events e
JOIN users u ON u.id = e.organizer_id
WHERE e.id = $1;`, eventID)
	event, err := scanEvent(row)
	if err != nil {
		return event, notFound(err, ErrEventNotFound)
	}
	event.TicketTypes, err = listTicketTypes(ctx, r.pool, eventID, false)
	return event, err
}

// ListEvents returns published events that have not ended, soonest first.
func (r *Repository) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	limit := clampLimit(filter.Limit, 20, 100)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	from := filter.From
	if from.IsZero() {
		from = time.Now().UTC()
	}
	where := `
WHERE e.status = 'published'
	AND e.ends_at >= $1
	AND ($2 = '' OR e.category = lower($2))
	AND ($3 = '' OR e.venue_city ILIKE $3)
	AND ($4 = '' OR e.title ILIKE '%' || $4 || '%' OR e.description ILIKE '%' || $4 || '%')`
	args := []interface{}{from, strings.TrimSpace(filter.Category), strings.TrimSpace(filter.City), strings.TrimSpace(filter.Query)}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM events e`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+eventColumns+`
FROM events e
JOIN users u ON u.id = e.organizer_id`+where+`
ORDER BY e.starts_at ASC, e.id ASC
LIMIT $5 OFFSET $6;`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]models.Event, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, event)
		ids = append(ids, event.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return out, total, nil
	}

	byEvent, err := r.activeTicketTypesByEvent(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].TicketTypes = byEvent[out[i].ID]
		if out[i].TicketTypes == nil {
			out[i].TicketTypes = []models.TicketType{}
		}
	}
	return out, total, nil
}

// ListOrganizerEvents returns every event owned by organizerID, any status.
func (r *Repository) ListOrganizerEvents(ctx context.Context, organizerID int64) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+eventColumns+`
FROM events e
JOIN users u ON u.id = e.organizer_id
WHERE e.organizer_id = $1
ORDER BY e.starts_at DESC;`, organizerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

func (r *Repository) UpdateEvent(ctx context.Context, eventID int64, patch models.EventPatch) (models.Event, error) {
	var category interface{}
	if patch.Category != nil {
		category = strings.ToLower(strings.TrimSpace(*patch.Category))
	}
	cmd, err := r.pool.Exec(ctx, `
UPDATE events
SET title = COALESCE($2, title),
	description = COALESCE($3, description),
	category = COALESCE($4, category),
	starts_at = COALESCE($5, starts_at),
	ends_at = COALESCE($6, ends_at),
	venue_name = COALESCE($7, venue_name),
	venue_address = COALESCE($8, venue_address),
	venue_city = COALESCE($9, venue_city),
	venue_lat = COALESCE($10, venue_lat),
	venue_lng = COALESCE($11, venue_lng),
	venue_capacity = COALESCE($12, venue_capacity),
	banner_url = COALESCE($13, banner_url),
	updated_at = now()
WHERE id = $1
	AND status IN ('draft', 'published');`,
		eventID,
		stringPtrOrNil(patch.Title),
		patch.Description,
		category,
		patch.StartsAt,
		patch.EndsAt,
		stringPtrOrNil(patch.VenueName),
		stringPtrOrNil(patch.Address),
		stringPtrOrNil(patch.City),
		patch.Lat,
		patch.Lng,
		intPtrOrNil(patch.Capacity),
		stringPtrOrNil(patch.BannerURL),
	)
	if err != nil {
		if isCheckViolation(err) {
			return models.Event{}, ErrEventStateNotAllowed
		}
		return models.Event{}, err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetEvent(ctx, eventID); err != nil {
			return models.Event{}, err
		}
		return models.Event{}, ErrEventStateNotAllowed
	}
	return r.GetEvent(ctx, eventID)
}

func (r *Repository) SetEventBanner(ctx context.Context, eventID int64, url string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE events SET banner_url = $2, updated_at = now() WHERE id = $1`, eventID, nullString(url))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// PublishEvent moves a draft to published. The event must start in the
// future and carry at least one active ticket type.
func (r *Repository) PublishEvent(ctx context.Context, eventID int64, now time.Time) (models.Event, error) {
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var status string
		var startsAt time.Time
		if err := tx.QueryRow(ctx, `SELECT status, starts_at FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&status, &startsAt); err != nil {
			return notFound(err, ErrEventNotFound)
		}
		if status != models.EventStatusDraft || !startsAt.After(now) {
			return ErrEventStateNotAllowed
		}
		var active int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM ticket_types WHERE event_id = $1 AND is_active`, eventID).Scan(&active); err != nil {
			return err
		}
		if active == 0 {
			return ErrNoActiveTicketTypes
		}
		_, err := tx.Exec(ctx, `UPDATE events SET status = 'published', updated_at = now() WHERE id = $1`, eventID)
		return err
	})
	if err != nil {
		return models.Event{}, err
	}
	return r.GetEvent(ctx, eventID)
}

// CancelEvent cancels the event and every active ticket for it. It returns
// the number of tickets cancelled.
func (r *Repository) CancelEvent(ctx context.Context, eventID int64) (int64, error) {
	var cancelled int64
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var status string
		if err := tx.QueryRow(ctx, `SELECT status FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&status); err != nil {
			return notFound(err, ErrEventNotFound)
		}
		if status == models.EventStatusCancelled || status == models.EventStatusCompleted {
			return ErrEventStateNotAllowed
		}
		if _, err := tx.Exec(ctx, `UPDATE events SET status = 'cancelled', updated_at = now() WHERE id = $1`, eventID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE ticket_types SET is_active = false, updated_at = now() WHERE event_id = $1`, eventID); err != nil {
			return err
		}
		cmd, err := tx.Exec(ctx, `
UPDATE tickets
SET status = 'cancelled',
	updated_at = now()
WHERE event_id = $1
	AND status = 'active';`, eventID)
		if err != nil {
			return err
		}
		cancelled = cmd.RowsAffected()
		return nil
	})
	return cancelled, err
}

func (r *Repository) CompleteEvent(ctx context.Context, eventID int64) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE events SET status = 'completed', updated_at = now() WHERE id = $1 AND status = 'published'`, eventID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetEvent(ctx, eventID); err != nil {
			return err
		}
		return ErrEventStateNotAllowed
	}
	return nil
}

// DeleteEvent removes an event that never took an order.
func (r *Repository) DeleteEvent(ctx context.Context, eventID int64) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT true FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&exists); err != nil {
			return notFound(err, ErrEventNotFound)
		}
		var orders int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM orders WHERE event_id = $1`, eventID).Scan(&orders); err != nil {
			return err
		}
		if orders > 0 {
			return ErrEventHasOrders
		}
		_, err := tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, eventID)
		return err
	})
}

func (r *Repository) CreateTicketType(ctx context.Context, eventID int64, in models.TicketTypeInput) (models.TicketType, error) {
	var out models.TicketType
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var status string
		if err := tx.QueryRow(ctx, `SELECT status FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&status); err != nil {
			return notFound(err, ErrEventNotFound)
		}
		if status != models.EventStatusDraft && status != models.EventStatusPublished {
			return ErrEventStateNotAllowed
		}
		var err error
		out, err = insertTicketType(ctx, tx, eventID, in)
		return err
	})
	return out, err
}

// UpdateTicketType applies patch. Quantity may never drop below sold.
func (r *Repository) UpdateTicketType(ctx context.Context, eventID, ticketTypeID int64, patch models.TicketTypePatch) (models.TicketType, error) {
	var out models.TicketType
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var sold int
		if err := tx.QueryRow(ctx, `SELECT sold FROM ticket_types WHERE id = $1 AND event_id = $2 FOR UPDATE`, ticketTypeID, eventID).Scan(&sold); err != nil {
			return notFound(err, ErrNotFound)
		}
		if patch.Quantity != nil && *patch.Quantity < sold {
			return ErrQuantityBelowSold
		}
		row := tx.QueryRow(ctx, `
UPDATE ticket_types
SET name = COALESCE($3, name),
	description = COALESCE($4, description),
	price = COALESCE($5, price),
	quantity = COALESCE($6, quantity),
	max_per_user = COALESCE($7, max_per_user),
	sale_starts_at = COALESCE($8, sale_starts_at),
	sale_ends_at = COALESCE($9, sale_ends_at),
	is_active = COALESCE($10, is_active),
	updated_at = now()
WHERE id = $1 AND event_id = $2
RETURNING `+ticketTypeColumns+`;`,
			ticketTypeID,
			eventID,
			stringPtrOrNil(patch.Name),
			patch.Description,
			int64PtrOrNil(patch.Price),
			intPtrOrNil(patch.Quantity),
			intPtrOrNil(patch.MaxPerUser),
			patch.SaleStartsAt,
			patch.SaleEndsAt,
			boolPtrOrNil(patch.IsActive),
		)
		var err error
		out, err = scanTicketType(row)
		if isUniqueViolation(err, "") {
			return ErrTicketTypeNameTaken
		}
		return err
	})
	return out, err
}

func insertTicketType(ctx context.Context, tx pgx.Tx, eventID int64, in models.TicketTypeInput) (models.TicketType, error) {
	maxPerUser := in.MaxPerUser
	if maxPerUser <= 0 {
		maxPerUser = 10
	}
	row := tx.QueryRow(ctx, `
INSERT INTO ticket_types (event_id, name, description, price, quantity, max_per_user, sale_starts_at, sale_ends_at, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+ticketTypeColumns+`;`,
		eventID,
		strings.TrimSpace(in.Name),
		in.Description,
		in.Price,
		in.Quantity,
		maxPerUser,
		in.SaleStartsAt,
		in.SaleEndsAt,
		in.IsActive,
	)
	out, err := scanTicketType(row)
	if isUniqueViolation(err, "") {
		return out, ErrTicketTypeNameTaken
	}
	return out, err
}

func listTicketTypes(ctx context.Context, q queryRunner, eventID int64, forUpdate bool) ([]models.TicketType, error) {
	query := `SELECT ` + ticketTypeColumns + ` FROM ticket_types WHERE event_id = $1 ORDER BY price ASC, id ASC`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.TicketType, 0)
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tt)
	}
	return out, rows.Err()
}

func (r *Repository) activeTicketTypesByEvent(ctx context.Context, eventIDs []int64) (map[int64][]models.TicketType, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+ticketTypeColumns+`
FROM ticket_types
WHERE event_id = ANY($1) AND is_active
ORDER BY price ASC, id ASC;`, eventIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64][]models.TicketType{}
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, err
		}
		out[tt.EventID] = append(out[tt.EventID], tt)
	}
	return out, rows.Err()
}

// GetEventStats reports per ticket type sales and check-ins.
func (r *Repository) GetEventStats(ctx context.Context, eventID int64) (models.EventStats, error) {
	stats := models.EventStats{EventID: eventID, TicketTypes: []models.TicketTypeStats{}}
	if err := r.pool.QueryRow(ctx, `
SELECT e.total_tickets_sold, e.total_revenue,
	(SELECT count(*) FROM tickets t WHERE t.event_id = e.id AND t.is_checked_in)
FROM events e
WHERE e.id = $1;`, eventID).Scan(&stats.TotalTicketsSold, &stats.TotalRevenue, &stats.CheckedIn); err != nil {
		return stats, notFound(err, ErrEventNotFound)
	}

	rows, err := r.pool.Query(ctx, `
SELECT tt.id, tt.name, tt.quantity, tt.sold,
	count(t.id) FILTER (WHERE t.is_checked_in)
FROM ticket_types tt
LEFT JOIN tickets t ON t.ticket_type_id = tt.id
WHERE tt.event_id = $1
GROUP BY tt.id
ORDER BY tt.price ASC, tt.id ASC;`, eventID)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var item models.TicketTypeStats
		if err := rows.Scan(&item.TicketTypeID, &item.Name, &item.Quantity, &item.Sold, &item.CheckedIn); err != nil {
			return stats, err
		}
		item.Remaining = item.Quantity - item.Sold
		if item.Remaining < 0 {
			item.Remaining = 0
		}
		stats.TicketTypes = append(stats.TicketTypes, item)
	}
	return stats, rows.Err()
}

// ListAttendees returns one row per issued ticket of the event.
func (r *Repository) ListAttendees(ctx context.Context, eventID int64) ([]models.Attendance, error) {
	rows, err := r.pool.Query(ctx, `
SELECT t.id::text, o.order_number, t.ticket_type_name, t.attendee_name, t.attendee_email, t.attendee_phone, t.status, t.checked_in_at
FROM tickets t
JOIN orders o ON o.id = t.order_id
WHERE t.event_id = $1
ORDER BY t.ticket_type_name ASC, t.attendee_name ASC, t.id ASC;`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Attendance, 0)
	for rows.Next() {
		var item models.Attendance
		var phone sql.NullString
		var checkedInAt sql.NullTime
		if err := rows.Scan(&item.TicketID, &item.OrderNumber, &item.TicketTypeName, &item.AttendeeName, &item.AttendeeEmail, &phone, &item.Status, &checkedInAt); err != nil {
			return nil, err
		}
		item.AttendeePhone = nullStringValue(phone)
		item.CheckedInAt = nullTimeToPtr(checkedInAt)
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanEvent(row pgx.Row) (models.Event, error) {
	var out models.Event
	var lat sql.NullFloat64
	var lng sql.NullFloat64
	var banner sql.NullString
	if err := row.Scan(
		&out.ID,
		&out.OrganizerID,
		&out.OrganizerName,
		&out.Title,
		&out.Description,
		&out.Category,
		&out.StartsAt,
		&out.EndsAt,
		&out.Venue.Name,
		&out.Venue.Address,
		&out.Venue.City,
		&lat,
		&lng,
		&out.Venue.Capacity,
		&banner,
		&out.Status,
		&out.TotalTicketsSold,
		&out.TotalRevenue,
		&out.Rating,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return out, err
	}
	out.Venue.Lat = nullFloat64ToPtr(lat)
	out.Venue.Lng = nullFloat64ToPtr(lng)
	out.BannerURL = nullStringValue(banner)
	out.TicketTypes = []models.TicketType{}
	return out, nil
}

func scanTicketType(row pgx.Row) (models.TicketType, error) {
	var out models.TicketType
	var saleStartsAt sql.NullTime
	var saleEndsAt sql.NullTime
	if err := row.Scan(
		&out.ID,
		&out.EventID,
		&out.Name,
		&out.Description,
		&out.Price,
		&out.Quantity,
		&out.Sold,
		&out.MaxPerUser,
		&saleStartsAt,
		&saleEndsAt,
		&out.IsActive,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return out, ErrNotFound
		}
		return out, err
	}
	out.SaleStartsAt = nullTimeToPtr(saleStartsAt)
	out.SaleEndsAt = nullTimeToPtr(saleEndsAt)
	return out, nil
}
