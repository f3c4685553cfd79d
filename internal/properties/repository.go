package properties

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/havenlist/havenlist/internal/shared"
)

const listingColumns = `id, owner_id, title, description, city, price, approved, created_at, updated_at`

// Repository is the PostgreSQL backed Catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all listings newest first.
func (r *Repository) List(ctx context.Context) ([]Listing, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+listingColumns+` FROM properties ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var listings []Listing
	for rows.Next() {
		var l Listing
		if err := scanListing(rows.Scan, &l); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// Get fetches one listing.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Listing, error) {
	var l Listing
	err := scanListing(r.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM properties WHERE id = $1`, id).Scan, &l)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, shared.ErrNotFound
		}
		return Listing{}, err
	}
	return l, nil
}

// Create inserts a listing.
func (r *Repository) Create(ctx context.Context, listing Listing) (Listing, error) {
	var l Listing
	err := scanListing(r.pool.QueryRow(ctx, `
		INSERT INTO properties (id, owner_id, title, description, city, price, approved)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING `+listingColumns,
		uuid.New(), listing.OwnerID, listing.Title, listing.Description, listing.City, listing.Price).Scan, &l)
	if err != nil {
		return Listing{}, err
	}
	return l, nil
}

// Update rewrites the mutable listing fields.
func (r *Repository) Update(ctx context.Context, listing Listing) (Listing, error) {
	var l Listing
	err := scanListing(r.pool.QueryRow(ctx, `
		UPDATE properties SET title = $2, description = $3, city = $4, price = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING `+listingColumns,
		listing.ID, listing.Title, listing.Description, listing.City, listing.Price).Scan, &l)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, shared.ErrNotFound
		}
		return Listing{}, err
	}
	return l, nil
}

// Delete removes a listing.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM properties WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Approve flips the moderation flag.
func (r *Repository) Approve(ctx context.Context, id uuid.UUID, approved bool) (Listing, error) {
	var l Listing
	err := scanListing(r.pool.QueryRow(ctx, `
		UPDATE properties SET approved = $2, updated_at = NOW() WHERE id = $1
		RETURNING `+listingColumns, id, approved).Scan, &l)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, shared.ErrNotFound
		}
		return Listing{}, err
	}
	return l, nil
}

func scanListing(scan func(...any) error, l *Listing) error {
	return scan(&l.ID, &l.OwnerID, &l.Title, &l.Description, &l.City, &l.Price, &l.Approved, &l.CreatedAt, &l.UpdatedAt)
}
