package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrEmailTaken            = errors.New("email already registered")
	ErrEventNotFound         = errors.New("event not found")
	ErrEventHasOrders        = errors.New("event has orders")
	ErrEventStateNotAllowed  = errors.New("event state not allowed")
	ErrNoActiveTicketTypes   = errors.New("event has no active ticket types")
	ErrQuantityBelowSold     = errors.New("quantity below sold count")
	ErrTicketTypeNameTaken   = errors.New("ticket type name already used")
	ErrCouponNotFound        = errors.New("coupon not found")
	ErrCouponCodeTaken       = errors.New("coupon code already exists")
	ErrCouponExhausted       = errors.New("coupon usage limit reached")
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderStateNotAllowed  = errors.New("order state not allowed")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrInventoryLimitReached = errors.New("inventory limit reached")
	ErrPurchaseLimitReached  = errors.New("per-user ticket limit reached")
	ErrTicketNotFound        = errors.New("ticket not found")
	ErrRecipientNotFound     = errors.New("recipient not found")
	ErrSelfTransfer          = errors.New("cannot transfer a ticket to yourself")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type queryRunner interface {
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Ping checks that the pool can reach the database.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.ensurePool(); err != nil {
		return err
	}
	return r.pool.Ping(ctx)
}

func (r *Repository) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) ensurePool() error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("db pool is nil")
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}

// notFound maps a missing row, or an id that is not even a valid uuid, to target.
func notFound(err error, target error) error {
	if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
		return target
	}
	return err
}

func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func nullString(val string) interface{} {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return val
}

func nullStringValue(value sql.NullString) string {
	if !value.Valid {
		return ""
	}
	return value.String
}

func int64PtrOrNil(value *int64) interface{} {
	if value == nil {
		return nil
	}
	return *value
}

func intPtrOrNil(value *int) interface{} {
	if value == nil {
		return nil
	}
	return *value
}

func boolPtrOrNil(value *bool) interface{} {
	if value == nil {
		return nil
	}
	return *value
}

func stringPtrOrNil(value *string) interface{} {
	if value == nil {
		return nil
	}
	return strings.TrimSpace(*value)
}

func nullInt32ToIntPtr(value sql.NullInt32) *int {
	if !value.Valid {
		return nil
	}
	v := int(value.Int32)
	return &v
}

func nullTimeToPtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	v := value.Time
	return &v
}

func nullInt64ToPtr(value sql.NullInt64) *int64 {
	if !value.Valid {
		return nil
	}
	v := value.Int64
	return &v
}

func nullFloat64ToPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}

func decodeJSONMap(raw []byte) map[string]interface{} {
	if len(raw) == 0 {
		return map[string]interface{}{}
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}

func clampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
