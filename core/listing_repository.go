package core

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ListingRepository interface {
	Create(ctx context.Context, l Listing) error
	Get(ctx context.Context, id uuid.UUID) (Listing, error)
}

type PgListingRepository struct {
	db PgxPool
}

func NewPgListingRepository(db PgxPool) *PgListingRepository {
	return &PgListingRepository{db: db}
}

func (r *PgListingRepository) Create(ctx context.Context, l Listing) error {
	const q = `
INSERT INTO listings (id, user_id, title, story, price_cents, quantity, sold_count, image_url, theme, shipping_info, returns_info, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.Exec(ctx, q,
		l.ID, l.UserID, l.Title, l.Story, l.PriceCents, l.Quantity, l.SoldCount,
		l.ImageURL, l.Theme, l.ShippingInfo, l.ReturnsInfo, l.Status, l.CreatedAt,
	)
	return err
}

func (r *PgListingRepository) Get(ctx context.Context, id uuid.UUID) (Listing, error) {
	const q = `
SELECT id, user_id, title, story, price_cents, quantity, sold_count, image_url, theme, shipping_info, returns_info, status, created_at
FROM listings WHERE id = $1`
	var l Listing
	err := r.db.QueryRow(ctx, q, id).Scan(
		&l.ID, &l.UserID, &l.Title, &l.Story, &l.PriceCents, &l.Quantity, &l.SoldCount,
		&l.ImageURL, &l.Theme, &l.ShippingInfo, &l.ReturnsInfo, &l.Status, &l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrNotFound
		}
		return Listing{}, err
	}
	return l, nil
}

// PgImageUploadRepository tracks shortcut uploads in image_uploads.
type PgImageUploadRepository struct {
	db PgxPool
}

func NewPgImageUploadRepository(db PgxPool) *PgImageUploadRepository {
	return &PgImageUploadRepository{db: db}
}

// Track records a draft upload not yet attached to a listing.
func (r *PgImageUploadRepository) Track(ctx context.Context, publicIDs []string, email string) error {
	const q = `INSERT INTO image_uploads (public_ids, status, email, listing_id) VALUES ($1, 'draft', $2, NULL)`
	_, err := r.db.Exec(ctx, q, publicIDs, NormalizeEmail(email))
	return err
}
