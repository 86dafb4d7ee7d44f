// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/out"
	"inboxt_server/pkg/crypto"
	"inboxt_server/pkg/logger"
)

// UserAdapter implements out.UserRepository over users and user_profiles.
type UserAdapter struct {
	db     *sqlx.DB
	cipher *crypto.TokenCipher
}

// NewUserAdapter creates a UserAdapter. A nil cipher stores tokens as given.
func NewUserAdapter(db *sqlx.DB, cipher *crypto.TokenCipher) *UserAdapter {
	if cipher == nil {
		logger.Warn("Gmail token encryption disabled: no encryption key configured")
	}
	return &UserAdapter{db: db, cipher: cipher}
}

type userRow struct {
	ID        uuid.UUID      `db:"id"`
	Email     sql.NullString `db:"email"`
	CheckTime sql.NullString `db:"prefs_check_time"`
	TopN      sql.NullInt64  `db:"prefs_top_n"`
	UpdatedAt sql.NullTime   `db:"updated_at"`
}

func (r *userRow) toDomain() *domain.User {
	u := &domain.User{ID: r.ID, Email: r.Email.String}
	u.Prefs.CheckTime = r.CheckTime.String
	u.Prefs.TopN = int(r.TopN.Int64)
	if r.UpdatedAt.Valid {
		u.Prefs.UpdatedAt = r.UpdatedAt.Time
	}
	return u
}

const userColumns = `id, email, prefs_check_time, prefs_top_n, updated_at`

func (a *UserAdapter) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var row userRow
	err := a.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return row.toDomain(), nil
}

func (a *UserAdapter) ListUsers(ctx context.Context) ([]*domain.User, error) {
	var rows []userRow
	if err := a.db.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return toUsers(rows), nil
}

// ListUsersByCheckTime matches the stored time, falling back to the default
// delivery time for users who never saved one.
func (a *UserAdapter) ListUsersByCheckTime(ctx context.Context, times []string) ([]*domain.User, error) {
	if len(times) == 0 {
		return []*domain.User{}, nil
	}
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE COALESCE(NULLIF(prefs_check_time, ''), $2) = ANY($1)
		ORDER BY id`

	var rows []userRow
	if err := a.db.SelectContext(ctx, &rows, query, pq.Array(times), domain.DefaultCheckTime); err != nil {
		return nil, fmt.Errorf("list users by check time: %w", err)
	}
	return toUsers(rows), nil
}

func toUsers(rows []userRow) []*domain.User {
	users := make([]*domain.User, len(rows))
	for i := range rows {
		users[i] = rows[i].toDomain()
	}
	return users
}

func (a *UserAdapter) UpdatePreferences(ctx context.Context, userID uuid.UUID, upd domain.PreferencesUpdate) (*domain.Preferences, error) {
	query := `
		UPDATE users SET
			prefs_check_time = COALESCE($2, prefs_check_time),
			prefs_top_n = COALESCE($3, prefs_top_n),
			updated_at = $4
		WHERE id = $1
		RETURNING ` + userColumns

	var topN any
	if upd.TopN != nil {
		topN = *upd.TopN
	}

	var row userRow
	err := a.db.GetContext(ctx, &row, query, userID, nullString(upd.CheckTime), topN, time.Now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update preferences: %w", err)
	}
	return &row.toDomain().Prefs, nil
}

type tokenRow struct {
	AccessToken  sql.NullString `db:"gmail_access_token"`
	RefreshToken sql.NullString `db:"gmail_refresh_token"`
}

func (a *UserAdapter) GetGmailTokens(ctx context.Context, userID uuid.UUID) (*domain.GmailTokens, error) {
	var row tokenRow
	err := a.db.GetContext(ctx, &row,
		`SELECT gmail_access_token, gmail_refresh_token FROM user_profiles WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get gmail tokens: %w", err)
	}

	access, err := a.open(row.AccessToken.String)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	refresh, err := a.open(row.RefreshToken.String)
	if err != nil {
		return nil, fmt.Errorf("decrypt refresh token: %w", err)
	}
	return &domain.GmailTokens{AccessToken: access, RefreshToken: refresh}, nil
}

func (a *UserAdapter) SaveGmailAccessToken(ctx context.Context, userID uuid.UUID, accessToken string) error {
	sealed, err := a.seal(accessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	res, err := a.db.ExecContext(ctx,
		`UPDATE user_profiles SET gmail_access_token = $2, updated_at = $3 WHERE user_id = $1`,
		userID, sealed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save gmail access token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (a *UserAdapter) seal(token string) (string, error) {
	if a.cipher == nil || token == "" {
		return token, nil
	}
	return a.cipher.Seal(token)
}

func (a *UserAdapter) open(value string) (string, error) {
	if a.cipher == nil || value == "" {
		return value, nil
	}
	return a.cipher.Open(value)
}

var _ out.UserRepository = (*UserAdapter)(nil)
