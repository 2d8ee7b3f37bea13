package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrListingNotFound = errors.New("listing not found")

type Repository interface {
	CreateListing(ctx context.Context, listing *Listing) error
	GetListingByID(ctx context.Context, id uuid.UUID) (*Listing, error)
	GetListingsByIDs(ctx context.Context, ids []uuid.UUID) ([]Listing, error)
	ListListings(ctx context.Context, filter Filter) ([]Listing, error)
	UpdateListing(ctx context.Context, listing *Listing) error
	DeleteListing(ctx context.Context, id uuid.UUID) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const listingColumns = `id, name, category, breed, age, price, image, description, weight, health_status, tags, status, quantity, created_at, updated_at`

func scanListing(row pgx.Row) (*Listing, error) {
	var l Listing
	err := row.Scan(
		&l.ID,
		&l.Name,
		&l.Category,
		&l.Breed,
		&l.Age,
		&l.Price,
		&l.Image,
		&l.Description,
		&l.Weight,
		&l.HealthStatus,
		&l.Tags,
		&l.Status,
		&l.Quantity,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if l.Tags == nil {
		l.Tags = []string{}
	}
	return &l, nil
}

func (r *postgresRepository) CreateListing(ctx context.Context, listing *Listing) error {
	if listing.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate listing ID: %w", err)
		}
		listing.ID = id
	}

	now := time.Now().UTC()
	listing.CreatedAt = now
	listing.UpdatedAt = now

	query := `
		INSERT INTO livestock (` + listingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.db.Exec(ctx, query,
		listing.ID,
		listing.Name,
		string(listing.Category),
		listing.Breed,
		listing.Age,
		listing.Price,
		listing.Image,
		listing.Description,
		listing.Weight,
		listing.HealthStatus,
		listing.Tags,
		string(listing.Status),
		listing.Quantity,
		listing.CreatedAt,
		listing.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert listing: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetListingByID(ctx context.Context, id uuid.UUID) (*Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM livestock WHERE id = $1`

	listing, err := scanListing(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("repository: failed to select listing %s: %w", id, err)
	}
	return listing, nil
}

func (r *postgresRepository) GetListingsByIDs(ctx context.Context, ids []uuid.UUID) ([]Listing, error) {
	if len(ids) == 0 {
		return []Listing{}, nil
	}

	idStrings := make([]string, 0, len(ids))
	for _, id := range ids {
		idStrings = append(idStrings, id.String())
	}

	query := `SELECT ` + listingColumns + ` FROM livestock WHERE id = ANY($1::uuid[])`
	return r.queryListings(ctx, query, idStrings)
}

func (r *postgresRepository) ListListings(ctx context.Context, filter Filter) ([]Listing, error) {
	if filter.AvailableOnly {
		query := `SELECT ` + listingColumns + ` FROM livestock WHERE status = $1 ORDER BY created_at DESC`
		return r.queryListings(ctx, query, string(StatusAvailable))
	}

	query := `SELECT ` + listingColumns + ` FROM livestock ORDER BY created_at DESC`
	return r.queryListings(ctx, query)
}

func (r *postgresRepository) queryListings(ctx context.Context, query string, args ...any) ([]Listing, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query listings: %w", err)
	}
	defer rows.Close()

	listings := make([]Listing, 0)
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan listing: %w", err)
		}
		listings = append(listings, *listing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating listings: %w", err)
	}
	return listings, nil
}

func (r *postgresRepository) UpdateListing(ctx context.Context, listing *Listing) error {
	listing.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE livestock
		SET name = $1, category = $2, breed = $3, age = $4, price = $5, image = $6,
			description = $7, weight = $8, health_status = $9, tags = $10, status = $11,
			quantity = $12, updated_at = $13
		WHERE id = $14
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		listing.Name,
		string(listing.Category),
		listing.Breed,
		listing.Age,
		listing.Price,
		listing.Image,
		listing.Description,
		listing.Weight,
		listing.HealthStatus,
		listing.Tags,
		string(listing.Status),
		listing.Quantity,
		listing.UpdatedAt,
		listing.ID,
	).Scan(&listing.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrListingNotFound
		}
		return fmt.Errorf("repository: failed to update listing %s: %w", listing.ID, err)
	}
	return nil
}

func (r *postgresRepository) DeleteListing(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM livestock WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete listing %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}
