package repository

import (
	"context"
	"database/sql"
	"strings"

	"eventmitra/backend/internal/models"
	"eventmitra/backend/internal/ticketing"

	"github.com/jackc/pgx/v5"
)

const couponColumns = `c.id, c.code, c.description, c.discount_type, c.discount_value, c.minimum_amount, c.maximum_discount,
	c.usage_limit, c.used_count, c.user_limit, c.valid_from, c.valid_until, c.is_active, c.created_by, c.created_at, c.updated_at,
	COALESCE((SELECT array_agg(ce.event_id ORDER BY ce.event_id) FROM coupon_events ce WHERE ce.coupon_id = c.id), '{}')`

// ListCoupons lists coupons. A non-zero eventID limits the result to coupons
// valid for that event, including unscoped ones.
func (r *Repository) ListCoupons(ctx context.Context, eventID int64, active *bool) ([]models.Coupon, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+couponColumns+`
FROM coupons c
WHERE ($1::bigint = 0
		OR NOT EXISTS (SELECT 1 FROM coupon_events ce WHERE ce.coupon_id = c.id)
		OR EXISTS (SELECT 1 FROM coupon_events ce WHERE ce.coupon_id = c.id AND ce.event_id = $1))
	AND ($2::boolean IS NULL OR c.is_active = $2)
ORDER BY c.created_at DESC;`, eventID, boolPtrOrNil(active))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.Coupon, 0)
	for rows.Next() {
		item, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *Repository) GetCoupon(ctx context.Context, id int64) (models.Coupon, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons c WHERE c.id = $1`, id)
	coupon, err := scanCoupon(row)
	return coupon, notFound(err, ErrCouponNotFound)
}

func (r *Repository) GetCouponByCode(ctx context.Context, code string) (models.Coupon, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons c WHERE upper(c.code) = $1`, ticketing.NormalizeCouponCode(code))
	coupon, err := scanCoupon(row)
	return coupon, notFound(err, ErrCouponNotFound)
}

func (r *Repository) CreateCoupon(ctx context.Context, createdBy int64, in models.CouponInput) (models.Coupon, error) {
	var id int64
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO coupons (code, description, discount_type, discount_value, minimum_amount, maximum_discount, usage_limit, user_limit, valid_from, valid_until, is_active, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id;`,
			ticketing.NormalizeCouponCode(in.Code),
			strings.TrimSpace(in.Description),
			strings.ToLower(strings.TrimSpace(in.DiscountType)),
			in.DiscountValue,
			in.MinimumAmount,
			int64PtrOrNil(in.MaximumDiscount),
			intPtrOrNil(in.UsageLimit),
			userLimitOrDefault(in.UserLimit),
			in.ValidFrom,
			in.ValidUntil,
			in.IsActive,
			createdBy,
		)
		if err := row.Scan(&id); err != nil {
			if isUniqueViolation(err, "coupons_code_key") {
				return ErrCouponCodeTaken
			}
			return err
		}
		return replaceCouponEvents(ctx, tx, id, in.ApplicableEvents)
	})
	if err != nil {
		return models.Coupon{}, err
	}
	return r.GetCoupon(ctx, id)
}

func (r *Repository) UpdateCoupon(ctx context.Context, id int64, patch models.CouponPatch) (models.Coupon, error) {
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
UPDATE coupons
SET description = COALESCE($2, description),
	minimum_amount = COALESCE($3, minimum_amount),
	maximum_discount = COALESCE($4, maximum_discount),
	usage_limit = COALESCE($5, usage_limit),
	user_limit = COALESCE($6, user_limit),
	valid_from = COALESCE($7, valid_from),
	valid_until = COALESCE($8, valid_until),
	is_active = COALESCE($9, is_active),
	updated_at = now()
WHERE id = $1;`,
			id,
			stringPtrOrNil(patch.Description),
			int64PtrOrNil(patch.MinimumAmount),
			int64PtrOrNil(patch.MaximumDiscount),
			intPtrOrNil(patch.UsageLimit),
			intPtrOrNil(patch.UserLimit),
			patch.ValidFrom,
			patch.ValidUntil,
			boolPtrOrNil(patch.IsActive),
		)
		if err != nil {
			if isCheckViolation(err) {
				return ErrCouponExhausted
			}
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrCouponNotFound
		}
		if patch.ApplicableEvents != nil {
			return replaceCouponEvents(ctx, tx, id, *patch.ApplicableEvents)
		}
		return nil
	})
	if err != nil {
		return models.Coupon{}, err
	}
	return r.GetCoupon(ctx, id)
}

// DeleteCoupon removes an unused coupon and deactivates a used one, so that
// order snapshots keep pointing at a real row.
func (r *Repository) DeleteCoupon(ctx context.Context, id int64) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		var usedCount int
		if err := tx.QueryRow(ctx, `SELECT used_count FROM coupons WHERE id = $1 FOR UPDATE`, id).Scan(&usedCount); err != nil {
			return notFound(err, ErrCouponNotFound)
		}
		if usedCount > 0 {
			_, err := tx.Exec(ctx, `UPDATE coupons SET is_active = false, updated_at = now() WHERE id = $1`, id)
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
		return err
	})
}

// CountCouponUsesByUser returns how many times userID consumed the coupon.
func (r *Repository) CountCouponUsesByUser(ctx context.Context, couponID, userID int64) (int, error) {
	return countCouponUses(ctx, r.pool, couponID, userID)
}

func countCouponUses(ctx context.Context, q queryRunner, couponID, userID int64) (int, error) {
	var count int
	err := q.QueryRow(ctx, `SELECT count(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`, couponID, userID).Scan(&count)
	return count, err
}

func replaceCouponEvents(ctx context.Context, tx pgx.Tx, couponID int64, eventIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM coupon_events WHERE coupon_id = $1`, couponID); err != nil {
		return err
	}
	seen := map[int64]struct{}{}
	for _, eventID := range eventIDs {
		if eventID <= 0 {
			continue
		}
		if _, ok := seen[eventID]; ok {
			continue
		}
		seen[eventID] = struct{}{}
		cmd, err := tx.Exec(ctx, `
INSERT INTO coupon_events (coupon_id, event_id)
SELECT $1, id FROM events WHERE id = $2;`, couponID, eventID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrEventNotFound
		}
	}
	return nil
}

func userLimitOrDefault(limit int) int {
	if limit <= 0 {
		return 1
	}
	return limit
}

func scanCoupon(row pgx.Row) (models.Coupon, error) {
	var out models.Coupon
	var maximumDiscount sql.NullInt64
	var usageLimit sql.NullInt32
	var validFrom sql.NullTime
	var validUntil sql.NullTime
	var createdBy sql.NullInt64
	if err := row.Scan(
		&out.ID,
		&out.Code,
		&out.Description,
		&out.DiscountType,
		&out.DiscountValue,
		&out.MinimumAmount,
		&maximumDiscount,
		&usageLimit,
		&out.UsedCount,
		&out.UserLimit,
		&validFrom,
		&validUntil,
		&out.IsActive,
		&createdBy,
		&out.CreatedAt,
		&out.UpdatedAt,
		&out.ApplicableEvents,
	); err != nil {
		return out, err
	}
	out.MaximumDiscount = nullInt64ToPtr(maximumDiscount)
	out.UsageLimit = nullInt32ToIntPtr(usageLimit)
	out.ValidFrom = nullTimeToPtr(validFrom)
	out.ValidUntil = nullTimeToPtr(validUntil)
	out.CreatedBy = nullInt64ToPtr(createdBy)
	if out.ApplicableEvents == nil {
		out.ApplicableEvents = []int64{}
	}
	return out, nil
}
