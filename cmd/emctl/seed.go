package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"eventmitra/backend/internal/auth"
	"eventmitra/backend/internal/models"
	"eventmitra/backend/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load users, events, ticket types and coupons from a YAML fixture",
	Long: `Load fixture data for local development and demos.

Users that already exist and coupons whose code is taken are skipped, so a
fixture can be applied more than once. Events are always created.

Examples:
  emctl seed fixtures/goa-weekend.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

type seedFile struct {
	Users   []seedUser   `yaml:"users" validate:"dive"`
	Events  []seedEvent  `yaml:"events" validate:"dive"`
	Coupons []seedCoupon `yaml:"coupons" validate:"dive"`
}

type seedUser struct {
	Email    string `yaml:"email" validate:"required,email"`
	Name     string `yaml:"name" validate:"required"`
	Password string `yaml:"password" validate:"required,min=8"`
	Phone    string `yaml:"phone"`
	Role     string `yaml:"role" validate:"omitempty,oneof=attendee organizer admin"`
}

type seedVenue struct {
	Name     string   `yaml:"name" validate:"required"`
	Address  string   `yaml:"address"`
	City     string   `yaml:"city" validate:"required"`
	Lat      *float64 `yaml:"lat"`
	Lng      *float64 `yaml:"lng"`
	Capacity int      `yaml:"capacity" validate:"min=0"`
}

type seedTicketType struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`
	Price       int64  `yaml:"price" validate:"min=0"`
	Quantity    int    `yaml:"quantity" validate:"min=1"`
	MaxPerUser  int    `yaml:"maxPerUser" validate:"min=0"`
}

type seedEvent struct {
	Organizer   string           `yaml:"organizer" validate:"required,email"`
	Title       string           `yaml:"title" validate:"required"`
	Description string           `yaml:"description"`
	Category    string           `yaml:"category" validate:"required"`
	StartsAt    time.Time        `yaml:"startsAt" validate:"required"`
	EndsAt      time.Time        `yaml:"endsAt" validate:"required,gtfield=StartsAt"`
	Venue       seedVenue        `yaml:"venue"`
	Publish     bool             `yaml:"publish"`
	TicketTypes []seedTicketType `yaml:"ticketTypes" validate:"required,min=1,dive"`
}

type seedCoupon struct {
	Code            string     `yaml:"code" validate:"required,alphanum"`
	Description     string     `yaml:"description"`
	CreatedBy       string     `yaml:"createdBy" validate:"required,email"`
	DiscountType    string     `yaml:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue   int64      `yaml:"discountValue" validate:"min=1"`
	MinimumAmount   int64      `yaml:"minimumAmount" validate:"min=0"`
	MaximumDiscount *int64     `yaml:"maximumDiscount"`
	UsageLimit      *int       `yaml:"usageLimit"`
	UserLimit       int        `yaml:"userLimit" validate:"min=0"`
	ValidUntil      *time.Time `yaml:"validUntil"`
	Events          []string   `yaml:"events"`
}

// parseSeed decodes and validates a fixture. Unknown keys are rejected so
// typos do not silently drop data.
func parseSeed(r io.Reader) (seedFile, error) {
	var out seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return seedFile{}, fmt.Errorf("parse fixture: %w", err)
	}
	if err := validator.New().Struct(out); err != nil {
		return seedFile{}, fmt.Errorf("invalid fixture: %w", err)
	}
	for _, c := range out.Coupons {
		if c.DiscountType == models.DiscountTypePercentage && c.DiscountValue > 100 {
			return seedFile{}, fmt.Errorf("coupon %s: percentage above 100", c.Code)
		}
	}
	return out, nil
}

type seedStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	CreateEvent(ctx context.Context, organizerID int64, in models.EventInput, ticketTypes []models.TicketTypeInput) (models.Event, error)
	PublishEvent(ctx context.Context, eventID int64, now time.Time) (models.Event, error)
	CreateCoupon(ctx context.Context, createdBy int64, in models.CouponInput) (models.Coupon, error)
}

type seedSummary struct {
	UsersCreated   int
	UsersSkipped   int
	Events         int
	Published      int
	CouponsCreated int
	CouponsSkipped int
}

func runSeed(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	fixture, err := parseSeed(f)
	if err != nil {
		return err
	}
	summary, err := applySeed(cmd.Context(), current.repo, fixture, time.Now().UTC())
	if err != nil {
		return err
	}
	current.logger.Info("seed", "status", "success", "file", args[0],
		"users_created", summary.UsersCreated, "events", summary.Events, "coupons_created", summary.CouponsCreated)
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Users: %d created, %d existing\n", summary.UsersCreated, summary.UsersSkipped)
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Events: %d created, %d published\n", summary.Events, summary.Published)
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Coupons: %d created, %d existing\n", summary.CouponsCreated, summary.CouponsSkipped)
	return nil
}

func applySeed(ctx context.Context, store seedStore, fixture seedFile, now time.Time) (seedSummary, error) {
	var summary seedSummary
	userIDs := map[string]int64{}
	eventIDs := map[string]int64{}

	for _, u := range fixture.Users {
		hash, err := auth.HashPassword(u.Password)
		if err != nil {
			return summary, fmt.Errorf("user %s: %w", u.Email, err)
		}
		created, err := store.CreateUser(ctx, models.User{
			Email:        u.Email,
			PasswordHash: hash,
			Name:         u.Name,
			Phone:        u.Phone,
			Role:         u.Role,
		})
		switch {
		case err == nil:
			summary.UsersCreated++
			userIDs[strings.ToLower(u.Email)] = created.ID
		case errors.Is(err, repository.ErrEmailTaken):
			summary.UsersSkipped++
		default:
			return summary, fmt.Errorf("user %s: %w", u.Email, err)
		}
	}

	resolveUser := func(email string) (int64, error) {
		key := strings.ToLower(strings.TrimSpace(email))
		if id, ok := userIDs[key]; ok {
			return id, nil
		}
		user, err := store.GetUserByEmail(ctx, key)
		if err != nil {
			return 0, fmt.Errorf("user %s: %w", email, err)
		}
		userIDs[key] = user.ID
		return user.ID, nil
	}

	for _, e := range fixture.Events {
		organizerID, err := resolveUser(e.Organizer)
		if err != nil {
			return summary, fmt.Errorf("event %q: %w", e.Title, err)
		}
		types := make([]models.TicketTypeInput, 0, len(e.TicketTypes))
		for _, tt := range e.TicketTypes {
			maxPerUser := tt.MaxPerUser
			if maxPerUser == 0 {
				maxPerUser = 10
			}
			types = append(types, models.TicketTypeInput{
				Name:        tt.Name,
				Description: tt.Description,
				Price:       tt.Price,
				Quantity:    tt.Quantity,
				MaxPerUser:  maxPerUser,
				IsActive:    true,
			})
		}
		event, err := store.CreateEvent(ctx, organizerID, models.EventInput{
			Title:       e.Title,
			Description: e.Description,
			Category:    e.Category,
			StartsAt:    e.StartsAt.UTC(),
			EndsAt:      e.EndsAt.UTC(),
			Venue: models.Venue{
				Name:     e.Venue.Name,
				Address:  e.Venue.Address,
				City:     e.Venue.City,
				Lat:      e.Venue.Lat,
				Lng:      e.Venue.Lng,
				Capacity: e.Venue.Capacity,
			},
		}, types)
		if err != nil {
			return summary, fmt.Errorf("event %q: %w", e.Title, err)
		}
		summary.Events++
		eventIDs[e.Title] = event.ID
		if e.Publish {
			if _, err := store.PublishEvent(ctx, event.ID, now); err != nil {
				return summary, fmt.Errorf("publish %q: %w", e.Title, err)
			}
			summary.Published++
		}
	}

	for _, c := range fixture.Coupons {
		createdBy, err := resolveUser(c.CreatedBy)
		if err != nil {
			return summary, fmt.Errorf("coupon %s: %w", c.Code, err)
		}
		applicable := make([]int64, 0, len(c.Events))
		for _, title := range c.Events {
			id, ok := eventIDs[title]
			if !ok {
				return summary, fmt.Errorf("coupon %s: event %q is not part of this fixture", c.Code, title)
			}
			applicable = append(applicable, id)
		}
		_, err = store.CreateCoupon(ctx, createdBy, models.CouponInput{
			Code:             c.Code,
			Description:      c.Description,
			DiscountType:     c.DiscountType,
			DiscountValue:    c.DiscountValue,
			MinimumAmount:    c.MinimumAmount,
			MaximumDiscount:  c.MaximumDiscount,
			UsageLimit:       c.UsageLimit,
			UserLimit:        c.UserLimit,
			ValidUntil:       c.ValidUntil,
			ApplicableEvents: applicable,
			IsActive:         true,
		})
		switch {
		case err == nil:
			summary.CouponsCreated++
		case errors.Is(err, repository.ErrCouponCodeTaken):
			summary.CouponsSkipped++
		default:
			return summary, fmt.Errorf("coupon %s: %w", c.Code, err)
		}
	}
	return summary, nil
}
