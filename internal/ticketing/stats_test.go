package ticketing

import (
	"testing"

	"eventmitra/backend/internal/models"
)

// TestAggregateStats verifies aggregate stats behavior.
func TestAggregateStats(t *testing.T) {
	rows := []StatsRow{
		{OrderID: "o1", EventID: 1, EventTitle: "Event A", OrderStatus: models.OrderStatusConfirmed, OrderTotal: 1200, TicketStatus: models.TicketStatusActive, CheckedIn: true},
		{OrderID: "o1", EventID: 1, EventTitle: "Event A", OrderStatus: models.OrderStatusConfirmed, OrderTotal: 1200, TicketStatus: models.TicketStatusUsed},
		{OrderID: "o2", EventID: 1, EventTitle: "Event A", OrderStatus: models.OrderStatusPartiallyRefunded, OrderTotal: 600, RefundedAmount: 590, TicketStatus: models.TicketStatusRefunded},
		{OrderID: "o3", EventID: 2, EventTitle: "Event B", OrderStatus: models.OrderStatusConfirmed, OrderTotal: 300, TicketStatus: models.TicketStatusActive},
		{OrderID: "o4", EventID: 2, EventTitle: "Event B", OrderStatus: models.OrderStatusPending, OrderTotal: 300},
		{OrderID: "o5", EventID: 2, EventTitle: "Event B", OrderStatus: models.OrderStatusCancelled, OrderTotal: 300},
	}

	global, perEvent := AggregateStats(rows)
	if global.Orders != 3 {
		t.Fatalf("expected 3 paid orders, got %d", global.Orders)
	}
	if global.GrossAmount != 2100 {
		t.Fatalf("expected gross=2100, got %d", global.GrossAmount)
	}
	if global.RefundedAmount != 590 {
		t.Fatalf("expected refunded=590, got %d", global.RefundedAmount)
	}
	if global.TicketsIssued != 4 || global.TicketsRefunded != 1 || global.CheckedIn != 1 {
		t.Fatalf("unexpected ticket counters: %#v", global)
	}

	if len(perEvent) != 2 {
		t.Fatalf("expected 2 event buckets, got %d", len(perEvent))
	}
	eventOne := perEvent[0]
	if eventOne.EventID != 1 || eventOne.GrossAmount != 1800 || eventOne.TicketsIssued != 3 {
		t.Fatalf("unexpected event 1 bucket: %#v", eventOne)
	}
	eventTwo := perEvent[1]
	if eventTwo.EventID != 2 || eventTwo.GrossAmount != 300 || eventTwo.Orders != 1 {
		t.Fatalf("unexpected event 2 bucket: %#v", eventTwo)
	}
}
