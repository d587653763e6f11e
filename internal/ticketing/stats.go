package ticketing

import (
	"sort"

	"eventmitra/backend/internal/models"
)

// StatsRow is one ticket joined with its order. Orders without tickets
// (pending, cancelled) appear once with an empty TicketStatus.
type StatsRow struct {
	OrderID        string
	EventID        int64
	EventTitle     string
	OrderStatus    string
	OrderTotal     int64
	RefundedAmount int64
	TicketStatus   string
	CheckedIn      bool
}

// AggregateStats handles aggregate stats.
func AggregateStats(rows []StatsRow) (models.SalesStats, []models.SalesStats) {
	global := models.SalesStats{}
	perEvent := map[int64]*models.SalesStats{}
	seenOrder := map[string]struct{}{}
	for _, row := range rows {
		if row.EventID <= 0 {
			continue
		}
		bucket, ok := perEvent[row.EventID]
		if !ok {
			bucket = &models.SalesStats{EventID: row.EventID, EventTitle: row.EventTitle}
			perEvent[row.EventID] = bucket
		}
		if bucket.EventTitle == "" && row.EventTitle != "" {
			bucket.EventTitle = row.EventTitle
		}

		// Order amounts count once per order regardless of ticket fan-out.
		if _, exists := seenOrder[row.OrderID]; !exists {
			seenOrder[row.OrderID] = struct{}{}
			if isPaidStatus(row.OrderStatus) {
				bucket.Orders++
				global.Orders++
				bucket.GrossAmount += row.OrderTotal
				global.GrossAmount += row.OrderTotal
				bucket.RefundedAmount += row.RefundedAmount
				global.RefundedAmount += row.RefundedAmount
			}
		}

		if row.TicketStatus == "" {
			continue
		}
		bucket.TicketsIssued++
		global.TicketsIssued++
		if row.TicketStatus == models.TicketStatusRefunded {
			bucket.TicketsRefunded++
			global.TicketsRefunded++
		}
		if row.CheckedIn {
			bucket.CheckedIn++
			global.CheckedIn++
		}
	}

	out := make([]models.SalesStats, 0, len(perEvent))
	for _, bucket := range perEvent {
		out = append(out, *bucket)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	return global, out
}

// isPaidStatus reports whether money was captured for the order.
func isPaidStatus(status string) bool {
	switch status {
	case models.OrderStatusConfirmed, models.OrderStatusRefunded, models.OrderStatusPartiallyRefunded:
		return true
	default:
		return false
	}
}
