package models

import "time"

const (
	RoleAttendee  = "attendee"
	RoleOrganizer = "organizer"
	RoleAdmin     = "admin"
)

const (
	EventStatusDraft     = "draft"
	EventStatusPublished = "published"
	EventStatusCancelled = "cancelled"
	EventStatusCompleted = "completed"
)

const (
	NotificationKindBookingConfirmed = "booking_confirmed"
	NotificationKindEventReminder    = "event_reminder"
	NotificationKindOrderRefunded    = "order_refunded"
)

// ValidRole reports whether role is assignable.
func ValidRole(role string) bool {
	switch role {
	case RoleAttendee, RoleOrganizer, RoleAdmin:
		return true
	default:
		return false
	}
}

// User represents user.
type User struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone,omitempty"`
	Role          string    `json:"role"`
	LoyaltyPoints int64     `json:"loyaltyPoints"`
	Badges        []string  `json:"badges"`
	IsBlocked     bool      `json:"isBlocked"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// IsAdmin reports whether the user has the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CanOrganize reports whether the user may create events.
func (u User) CanOrganize() bool {
	return u.Role == RoleOrganizer || u.Role == RoleAdmin
}

// Venue represents venue.
type Venue struct {
	Name     string   `json:"name"`
	Address  string   `json:"address"`
	City     string   `json:"city"`
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
	Capacity int      `json:"capacity"`
}

// Event represents event.
type Event struct {
	ID               int64        `json:"id"`
	OrganizerID      int64        `json:"organizerId"`
	OrganizerName    string       `json:"organizerName,omitempty"`
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	Category         string       `json:"category"`
	StartsAt         time.Time    `json:"startsAt"`
	EndsAt           time.Time    `json:"endsAt"`
	Venue            Venue        `json:"venue"`
	BannerURL        string       `json:"bannerUrl,omitempty"`
	Status           string       `json:"status"`
	TotalTicketsSold int64        `json:"totalTicketsSold"`
	TotalRevenue     int64        `json:"totalRevenue"`
	Rating           float64      `json:"rating"`
	TicketTypes      []TicketType `json:"ticketTypes"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// TicketType finds a ticket type of the event by id.
func (e Event) TicketType(id int64) (TicketType, bool) {
	for _, tt := range e.TicketTypes {
		if tt.ID == id {
			return tt, true
		}
	}
	return TicketType{}, false
}

// TicketType represents ticket type.
type TicketType struct {
	ID           int64      `json:"id"`
	EventID      int64      `json:"eventId"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	Price        int64      `json:"price"`
	Quantity     int        `json:"quantity"`
	Sold         int        `json:"sold"`
	MaxPerUser   int        `json:"maxPerUser"`
	SaleStartsAt *time.Time `json:"saleStartsAt,omitempty"`
	SaleEndsAt   *time.Time `json:"saleEndsAt,omitempty"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Remaining returns unsold inventory.
func (t TicketType) Remaining() int {
	if t.Sold >= t.Quantity {
		return 0
	}
	return t.Quantity - t.Sold
}

// EventInput represents event input.
type EventInput struct {
	Title       string
	Description string
	Category    string
	StartsAt    time.Time
	EndsAt      time.Time
	Venue       Venue
}

// EventPatch represents event patch.
type EventPatch struct {
	Title       *string
	Description *string
	Category    *string
	StartsAt    *time.Time
	EndsAt      *time.Time
	VenueName   *string
	Address     *string
	City        *string
	Lat         *float64
	Lng         *float64
	Capacity    *int
	BannerURL   *string
}

// EventFilter represents event filter.
type EventFilter struct {
	Category string
	City     string
	Query    string
	From     time.Time
	Limit    int
	Offset   int
}

// TicketTypeInput represents ticket type input.
type TicketTypeInput struct {
	Name         string
	Description  string
	Price        int64
	Quantity     int
	MaxPerUser   int
	SaleStartsAt *time.Time
	SaleEndsAt   *time.Time
	IsActive     bool
}

// TicketTypePatch represents ticket type patch.
type TicketTypePatch struct {
	Name         *string
	Description  *string
	Price        *int64
	Quantity     *int
	MaxPerUser   *int
	SaleStartsAt *time.Time
	SaleEndsAt   *time.Time
	IsActive     *bool
}

type NotificationJob struct {
	ID        int64                  `json:"id"`
	UserID    int64                  `json:"userId"`
	Kind      string                 `json:"kind"`
	EventID   *int64                 `json:"eventId,omitempty"`
	RunAt     time.Time              `json:"runAt"`
	Payload   map[string]interface{} `json:"payload"`
	Status    string                 `json:"status"`
	Attempts  int                    `json:"attempts"`
	LastError string                 `json:"lastError,omitempty"`
}

// LoyaltyTransaction represents loyalty transaction.
type LoyaltyTransaction struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Points    int64     `json:"points"`
	Reason    string    `json:"reason"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
