package core

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// AuthenticatedUser is the freshness record kept per email.
type AuthenticatedUser struct {
	Email           string    `json:"email"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
	LastUsedAt      time.Time `json:"last_used_at"`
}

// LedgerStats summarises the ledger for the status endpoint.
type LedgerStats struct {
	Total int64 `json:"total"`
	Fresh int64 `json:"fresh"`
}

// FreshnessLedger persists one AuthenticatedUser per email.
type FreshnessLedger interface {
	// Upsert writes both timestamps, creating the row or overwriting it in place.
	Upsert(ctx context.Context, email string, authenticatedAt, lastUsedAt time.Time) error
	// FindFresh returns the row for email if authenticated_at is after cutoff.
	FindFresh(ctx context.Context, email string, cutoff time.Time) (AuthenticatedUser, bool, error)
	// TouchLastUsed sets last_used_at; a missing row is not an error.
	TouchLastUsed(ctx context.Context, email string, at time.Time) error
	// Get reads the row without side effects.
	Get(ctx context.Context, email string) (AuthenticatedUser, error)
	// Stats counts all rows and rows fresher than cutoff.
	Stats(ctx context.Context, cutoff time.Time) (LedgerStats, error)
}

// PgFreshnessLedger implements FreshnessLedger on the authenticated_users table.
type PgFreshnessLedger struct {
	db PgxPool
}

func NewPgFreshnessLedger(db PgxPool) *PgFreshnessLedger {
	return &PgFreshnessLedger{db: db}
}

func (r *PgFreshnessLedger) Upsert(ctx context.Context, email string, authenticatedAt, lastUsedAt time.Time) error {
	const q = `
INSERT INTO authenticated_users (email, authenticated_at, last_used_at)
VALUES ($1, $2, $3)
ON CONFLICT (email)
DO UPDATE SET authenticated_at = EXCLUDED.authenticated_at, last_used_at = EXCLUDED.last_used_at`
	_, err := r.db.Exec(ctx, q, email, authenticatedAt.UTC(), lastUsedAt.UTC())
	return err
}

func (r *PgFreshnessLedger) FindFresh(ctx context.Context, email string, cutoff time.Time) (AuthenticatedUser, bool, error) {
	const q = `
SELECT email, authenticated_at, last_used_at
FROM authenticated_users
WHERE email = $1 AND authenticated_at > $2`
	var u AuthenticatedUser
	err := r.db.QueryRow(ctx, q, email, cutoff.UTC()).Scan(&u.Email, &u.AuthenticatedAt, &u.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AuthenticatedUser{}, false, nil
		}
		return AuthenticatedUser{}, false, err
	}
	return u, true, nil
}

func (r *PgFreshnessLedger) TouchLastUsed(ctx context.Context, email string, at time.Time) error {
	const q = `UPDATE authenticated_users SET last_used_at = $2 WHERE email = $1`
	_, err := r.db.Exec(ctx, q, email, at.UTC())
	return err
}

func (r *PgFreshnessLedger) Get(ctx context.Context, email string) (AuthenticatedUser, error) {
	const q = `SELECT email, authenticated_at, last_used_at FROM authenticated_users WHERE email = $1`
	var u AuthenticatedUser
	if err := r.db.QueryRow(ctx, q, email).Scan(&u.Email, &u.AuthenticatedAt, &u.LastUsedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AuthenticatedUser{}, ErrNotFound
		}
		return AuthenticatedUser{}, err
	}
	return u, nil
}

func (r *PgFreshnessLedger) Stats(ctx context.Context, cutoff time.Time) (LedgerStats, error) {
	const q = `
SELECT COUNT(*), COUNT(*) FILTER (WHERE authenticated_at > $1)
FROM authenticated_users`
	var st LedgerStats
	if err := r.db.QueryRow(ctx, q, cutoff.UTC()).Scan(&st.Total, &st.Fresh); err != nil {
		return LedgerStats{}, err
	}
	return st, nil
}
