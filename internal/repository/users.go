package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"eventmitra/backend/internal/models"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, password_hash, name, phone, role, loyalty_points, badges, is_blocked, created_at, updated_at`

func (r *Repository) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	role := user.Role
	if role == "" {
		role = models.RoleAttendee
	}
	row := r.pool.QueryRow(ctx, `
INSERT INTO users (email, password_hash, name, phone, role)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+userColumns+`;`,
		strings.ToLower(strings.TrimSpace(user.Email)),
		user.PasswordHash,
		strings.TrimSpace(user.Name),
		nullString(user.Phone),
		role,
	)
	out, err := scanUser(row)
	if isUniqueViolation(err, "users_email_key") {
		return out, ErrEmailTaken
	}
	return out, err
}

// UpsertAdmin creates an admin account or promotes and re-keys an existing one.
func (r *Repository) UpsertAdmin(ctx context.Context, email, passwordHash, name string) (models.User, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO users (email, password_hash, name, role)
VALUES ($1, $2, $3, 'admin')
ON CONFLICT (lower(email)) DO UPDATE SET
	password_hash = EXCLUDED.password_hash,
	role = 'admin',
	is_blocked = false,
	updated_at = now()
RETURNING `+userColumns+`;`,
		strings.ToLower(strings.TrimSpace(email)),
		passwordHash,
		strings.TrimSpace(name),
	)
	return scanUser(row)
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	return user, notFound(err, ErrNotFound)
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, strings.TrimSpace(email))
	user, err := scanUser(row)
	return user, notFound(err, ErrNotFound)
}

func (r *Repository) UpdateUserProfile(ctx context.Context, id int64, name, phone *string) (models.User, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE users
SET name = COALESCE($2, name),
	phone = COALESCE($3, phone),
	updated_at = now()
WHERE id = $1
RETURNING `+userColumns+`;`, id, stringPtrOrNil(name), stringPtrOrNil(phone))
	user, err := scanUser(row)
	return user, notFound(err, ErrNotFound)
}

func (r *Repository) ListUsers(ctx context.Context, search, role string, limit, offset int) ([]models.User, int, error) {
	limit = clampLimit(limit, 50, 200)
	if offset < 0 {
		offset = 0
	}
	search = strings.TrimSpace(search)
	var total int
	if err := r.pool.QueryRow(ctx, `
SELECT count(*)
FROM users
WHERE ($1 = '' OR email ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%')
	AND ($2 = '' OR role = $2);`, search, role).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+userColumns+`
FROM users
WHERE ($1 = '' OR email ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%')
	AND ($2 = '' OR role = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4;`, search, role, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, user)
	}
	return out, total, rows.Err()
}

func (r *Repository) SetUserRole(ctx context.Context, id int64, role string) (models.User, error) {
	row := r.pool.QueryRow(ctx, `UPDATE users SET role = $2, updated_at = now() WHERE id = $1 RETURNING `+userColumns, id, role)
	user, err := scanUser(row)
	return user, notFound(err, ErrNotFound)
}

func (r *Repository) SetUserBlocked(ctx context.Context, id int64, blocked bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE users SET is_blocked = $2, updated_at = now() WHERE id = $1`, id, blocked)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) IsUserBlocked(ctx context.Context, userID int64) (bool, error) {
	var blocked bool
	err := r.pool.QueryRow(ctx, `SELECT is_blocked FROM users WHERE id = $1`, userID).Scan(&blocked)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return blocked, err
}

func (r *Repository) ListLoyaltyTransactions(ctx context.Context, userID int64, limit int) ([]models.LoyaltyTransaction, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, points, reason, reference, created_at
FROM loyalty_transactions
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;`, userID, clampLimit(limit, 50, 200))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.LoyaltyTransaction, 0)
	for rows.Next() {
		var item models.LoyaltyTransaction
		var reference sql.NullString
		if err := rows.Scan(&item.ID, &item.UserID, &item.Points, &item.Reason, &reference, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.Reference = nullStringValue(reference)
		out = append(out, item)
	}
	return out, rows.Err()
}

// addLoyaltyPoints credits points and writes the ledger row in tx.
func addLoyaltyPoints(ctx context.Context, tx pgx.Tx, userID, points int64, reason, reference string) error {
	if points <= 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET loyalty_points = loyalty_points + $2, updated_at = now() WHERE id = $1`, userID, points); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
INSERT INTO loyalty_transactions (user_id, points, reason, reference)
VALUES ($1, $2, $3, $4);`, userID, points, reason, nullString(reference))
	return err
}

func (r *Repository) AddFavorite(ctx context.Context, userID, eventID int64) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO user_favorites (user_id, event_id)
SELECT $1, id FROM events WHERE id = $2
ON CONFLICT DO NOTHING;`, userID, eventID)
	return err
}

func (r *Repository) RemoveFavorite(ctx context.Context, userID, eventID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_favorites WHERE user_id = $1 AND event_id = $2`, userID, eventID)
	return err
}

func (r *Repository) ListFavoriteEvents(ctx context.Context, userID int64) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+eventColumns+`
FROM user_favorites f
JOIN events e ON e.id = f.event_id
JOIN users u ON u.id = e.organizer_id
WHERE f.user_id = $1
ORDER BY f.created_at DESC;`, userID)
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

func scanUser(row pgx.Row) (models.User, error) {
	var out models.User
	var phone sql.NullString
	if err := row.Scan(
		&out.ID,
		&out.Email,
		&out.PasswordHash,
		&out.Name,
		&phone,
		&out.Role,
		&out.LoyaltyPoints,
		&out.Badges,
		&out.IsBlocked,
		&out.CreatedAt,
		&out.UpdatedAt,
	); err != nil {
		return out, err
	}
	out.Phone = nullStringValue(phone)
	if out.Badges == nil {
		out.Badges = []string{}
	}
	return out, nil
}
