package ticketing

import (
	"fmt"
	"time"

	"eventmitra/backend/internal/models"
)

// OrderValidationInput is everything needed to validate and price a checkout.
type OrderValidationInput struct {
	Now   time.Time
	Event models.Event
	Lines []models.OrderLine
	// Purchased holds quantities already confirmed for this user, by ticket type.
	Purchased  map[int64]int
	CouponCode string
	// Coupon is nil when CouponCode did not match any coupon.
	Coupon *CouponRule
}

// QuotedLine is a validated line with its price snapshot.
type QuotedLine struct {
	TicketType models.TicketType
	Quantity   int
	UnitPrice  int64
	LineTotal  int64
	Attendees  []models.Attendee
}

// OrderQuote is the priced, validated checkout.
type OrderQuote struct {
	Lines   []QuotedLine
	Pricing models.Pricing
	Coupon  *models.CouponSnapshot
}

// Quantity returns the number of seats across all lines.
func (q OrderQuote) Quantity() int {
	total := 0
	for _, line := range q.Lines {
		total += line.Quantity
	}
	return total
}

// ValidateOrder runs the checkout validation chain and prices the order.
// The first violation wins: event state, then each line, then the coupon.
func ValidateOrder(in OrderValidationInput) (OrderQuote, error) {
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if in.Event.Status != models.EventStatusPublished {
		return OrderQuote{}, ErrEventNotPublished
	}
	if !in.Event.StartsAt.After(now) {
		return OrderQuote{}, ErrEventStarted
	}

	lines, err := mergeLines(in.Lines)
	if err != nil {
		return OrderQuote{}, err
	}

	quote := OrderQuote{Lines: make([]QuotedLine, 0, len(lines))}
	subtotal := int64(0)
	for _, line := range lines {
		tt, ok := in.Event.TicketType(line.TicketTypeID)
		if !ok {
			return OrderQuote{}, fmt.Errorf("%w: %d", ErrTicketTypeNotFound, line.TicketTypeID)
		}
		if !onSale(tt, now) {
			return OrderQuote{}, fmt.Errorf("%w: %s", ErrTicketTypeUnavailable, tt.Name)
		}
		if line.Quantity > tt.Remaining() {
			return OrderQuote{}, fmt.Errorf("%w: %s has %d left", ErrInsufficientInventory, tt.Name, tt.Remaining())
		}
		if tt.MaxPerUser > 0 && line.Quantity+in.Purchased[tt.ID] > tt.MaxPerUser {
			return OrderQuote{}, fmt.Errorf("%w: %s allows %d per user", ErrMaxPerUserExceeded, tt.Name, tt.MaxPerUser)
		}
		if len(line.Attendees) > line.Quantity {
			return OrderQuote{}, fmt.Errorf("%w: %s", ErrTooManyAttendees, tt.Name)
		}
		lineTotal := tt.Price * int64(line.Quantity)
		subtotal += lineTotal
		quote.Lines = append(quote.Lines, QuotedLine{
			TicketType: tt,
			Quantity:   line.Quantity,
			UnitPrice:  tt.Price,
			LineTotal:  lineTotal,
			Attendees:  line.Attendees,
		})
	}

	discount := int64(0)
	if code := NormalizeCouponCode(in.CouponCode); code != "" {
		if in.Coupon == nil {
			return OrderQuote{}, fmt.Errorf("%w: %s", ErrCouponInvalid, CouponReasonNotFound)
		}
		result := ValidateCoupon(*in.Coupon, CouponValidationInput{
			Now:      now,
			EventID:  in.Event.ID,
			Subtotal: subtotal,
		})
		if !result.Valid {
			return OrderQuote{}, fmt.Errorf("%w: %s", ErrCouponInvalid, result.Reason)
		}
		discount = result.Discount
		quote.Coupon = &models.CouponSnapshot{
			ID:            in.Coupon.ID,
			Code:          in.Coupon.Code,
			DiscountType:  in.Coupon.DiscountType,
			DiscountValue: in.Coupon.Value,
		}
	}

	quote.Pricing = ComputePricing(subtotal, discount)
	return quote, nil
}

// AttendeeFor returns the attendee for seat i, falling back to the purchaser contact.
func AttendeeFor(line QuotedLine, seat int, contact models.Contact) models.Attendee {
	if seat < len(line.Attendees) {
		a := line.Attendees[seat]
		if a.Name == "" {
			a.Name = contact.Name
		}
		if a.Email == "" {
			a.Email = contact.Email
		}
		if a.Phone == "" {
			a.Phone = contact.Phone
		}
		return a
	}
	return models.Attendee{Name: contact.Name, Email: contact.Email, Phone: contact.Phone}
}

// mergeLines folds repeated ticket types into one line, keeping request order.
func mergeLines(in []models.OrderLine) ([]models.OrderLine, error) {
	if len(in) == 0 {
		return nil, ErrEmptyOrder
	}
	index := map[int64]int{}
	out := make([]models.OrderLine, 0, len(in))
	for _, line := range in {
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if pos, ok := index[line.TicketTypeID]; ok {
			out[pos].Quantity += line.Quantity
			out[pos].Attendees = append(out[pos].Attendees, line.Attendees...)
			continue
		}
		index[line.TicketTypeID] = len(out)
		out = append(out, models.OrderLine{
			TicketTypeID: line.TicketTypeID,
			Quantity:     line.Quantity,
			Attendees:    append([]models.Attendee(nil), line.Attendees...),
		})
	}
	return out, nil
}

func onSale(tt models.TicketType, now time.Time) bool {
	if !tt.IsActive {
		return false
	}
	if tt.SaleStartsAt != nil && now.Before(*tt.SaleStartsAt) {
		return false
	}
	if tt.SaleEndsAt != nil && now.After(*tt.SaleEndsAt) {
		return false
	}
	return true
}
