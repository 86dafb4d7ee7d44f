package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/out"
)

const maxDigestList = 30

// DigestAdapter implements out.DigestRepository on pgx. Entries live in a jsonb column.
type DigestAdapter struct {
	pool *pgxpool.Pool
}

func NewDigestAdapter(pool *pgxpool.Pool) *DigestAdapter {
	return &DigestAdapter{pool: pool}
}

const digestColumns = `id, user_id, date::text, emails, created_at`

// Insert stores a new digest. A digest already present for the same user and
// date yields ErrDuplicate.
func (a *DigestAdapter) Insert(ctx context.Context, d *domain.Digest) error {
	return a.write(ctx, d, `
		INSERT INTO digests (id, user_id, date, emails, created_at)
		VALUES ($1, $2, $3::date, $4::jsonb, $5)
		ON CONFLICT (user_id, date) DO NOTHING
		RETURNING id, created_at`)
}

// Upsert stores d, replacing the entries of an existing digest for the same day.
func (a *DigestAdapter) Upsert(ctx context.Context, d *domain.Digest) error {
	return a.write(ctx, d, `
		INSERT INTO digests (id, user_id, date, emails, created_at)
		VALUES ($1, $2, $3::date, $4::jsonb, $5)
		ON CONFLICT (user_id, date) DO UPDATE
			SET emails = EXCLUDED.emails, created_at = EXCLUDED.created_at
		RETURNING id, created_at`)
}

func (a *DigestAdapter) write(ctx context.Context, d *domain.Digest, query string) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	emails, err := encodeEntries(d.Emails)
	if err != nil {
		return err
	}

	err = a.pool.QueryRow(ctx, query, d.ID, d.UserID, d.Date, emails, d.CreatedAt).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("write digest: %w", err)
	}
	return nil
}

func (a *DigestAdapter) Exists(ctx context.Context, userID uuid.UUID, date string) (bool, error) {
	var exists bool
	err := a.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM digests WHERE user_id = $1 AND date = $2::date)`,
		userID, date).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check digest: %w", err)
	}
	return exists, nil
}

func (a *DigestAdapter) GetByDate(ctx context.Context, userID uuid.UUID, date string) (*domain.Digest, error) {
	row := a.pool.QueryRow(ctx,
		`SELECT `+digestColumns+` FROM digests WHERE user_id = $1 AND date = $2::date`, userID, date)
	d, err := scanDigest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get digest: %w", err)
	}
	return d, nil
}

// ListRecent returns the user's latest digests, newest first.
func (a *DigestAdapter) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Digest, error) {
	if limit <= 0 || limit > maxDigestList {
		limit = maxDigestList
	}
	rows, err := a.pool.Query(ctx,
		`SELECT `+digestColumns+` FROM digests WHERE user_id = $1 ORDER BY date DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list digests: %w", err)
	}
	defer rows.Close()

	digests := make([]*domain.Digest, 0, limit)
	for rows.Next() {
		d, err := scanDigest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan digest: %w", err)
		}
		digests = append(digests, d)
	}
	return digests, rows.Err()
}

func scanDigest(row pgx.Row) (*domain.Digest, error) {
	var (
		d   domain.Digest
		raw []byte
	)
	if err := row.Scan(&d.ID, &d.UserID, &d.Date, &raw, &d.CreatedAt); err != nil {
		return nil, err
	}
	entries, err := decodeEntries(raw)
	if err != nil {
		return nil, err
	}
	d.Emails = entries
	return &d, nil
}

// encodeEntries renders entries as a JSON text argument for a ::jsonb cast.
func encodeEntries(entries []domain.DigestEntry) (string, error) {
	if entries == nil {
		entries = []domain.DigestEntry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode digest entries: %w", err)
	}
	return string(b), nil
}

func decodeEntries(raw []byte) ([]domain.DigestEntry, error) {
	entries := []domain.DigestEntry{}
	if len(raw) == 0 || string(raw) == "null" {
		return entries, nil
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode digest entries: %w", err)
	}
	return entries, nil
}

var _ out.DigestRepository = (*DigestAdapter)(nil)
