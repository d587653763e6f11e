package repository

import (
	"context"
	"database/sql"

	"eventmitra/backend/internal/models"
	"eventmitra/backend/internal/ticketing"
)

// GetAdminStats aggregates sales across events. A non-zero eventID limits
// the scan to one event.
func (r *Repository) GetAdminStats(ctx context.Context, eventID int64) (models.AdminStats, error) {
	rows, err := r.pool.Query(ctx, `
SELECT o.id::text, o.event_id, e.title, o.status, o.total,
	COALESCE((SELECT sum(rf.amount) FROM refunds rf WHERE rf.order_id = o.id), 0),
	t.status, COALESCE(t.is_checked_in, false)
FROM orders o
JOIN events e ON e.id = o.event_id
LEFT JOIN tickets t ON t.order_id = o.id
WHERE ($1::bigint = 0 OR o.event_id = $1)
ORDER BY o.created_at ASC;`, eventID)
	if err != nil {
		return models.AdminStats{}, err
	}
	defer rows.Close()

	statsRows := make([]ticketing.StatsRow, 0)
	for rows.Next() {
		var row ticketing.StatsRow
		var ticketStatus sql.NullString
		if err := rows.Scan(&row.OrderID, &row.EventID, &row.EventTitle, &row.OrderStatus, &row.OrderTotal, &row.RefundedAmount, &ticketStatus, &row.CheckedIn); err != nil {
			return models.AdminStats{}, err
		}
		row.TicketStatus = nullStringValue(ticketStatus)
		statsRows = append(statsRows, row)
	}
	if err := rows.Err(); err != nil {
		return models.AdminStats{}, err
	}

	global, perEvent := ticketing.AggregateStats(statsRows)
	return models.AdminStats{Global: global, Events: perEvent}, nil
}
