package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

var ErrInvalidListing = errors.New("invalid listing")

type Service interface {
	ListListings(ctx context.Context, filter Filter) ([]Listing, error)
	GetListing(ctx context.Context, id uuid.UUID) (*Listing, error)
	GetListingsByIDs(ctx context.Context, ids []uuid.UUID) ([]Listing, error)
	CreateListing(ctx context.Context, input ListingInput) (*Listing, error)
	UpdateListing(ctx context.Context, id uuid.UUID, input ListingInput) (*Listing, error)
	DeleteListing(ctx context.Context, id uuid.UUID) error
	ExportListings(ctx context.Context, w io.Writer) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func validateInput(input *ListingInput) error {
	input.Name = strings.TrimSpace(input.Name)
	input.Breed = strings.TrimSpace(input.Breed)
	if input.Status == "" {
		input.Status = StatusAvailable
	}

	switch {
	case input.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidListing)
	case input.Breed == "":
		return fmt.Errorf("%w: breed is required", ErrInvalidListing)
	case !input.Category.Valid():
		return fmt.Errorf("%w: unknown category %q", ErrInvalidListing, input.Category)
	case !input.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidListing, input.Status)
	case input.Price <= 0:
		return fmt.Errorf("%w: price must be positive", ErrInvalidListing)
	case input.Quantity < 0:
		return fmt.Errorf("%w: quantity cannot be negative", ErrInvalidListing)
	}
	return nil
}

func applyInput(l *Listing, input ListingInput) {
	l.Name = input.Name
	l.Category = input.Category
	l.Breed = input.Breed
	l.Age = input.Age
	l.Price = input.Price
	l.Image = input.Image
	l.Description = input.Description
	l.Weight = input.Weight
	l.HealthStatus = input.HealthStatus
	l.Tags = append([]string{}, input.Tags...)
	l.Status = input.Status
	l.Quantity = input.Quantity
}

func (s *service) ListListings(ctx context.Context, filter Filter) ([]Listing, error) {
	listings, err := s.repo.ListListings(ctx, filter)
	if err != nil {
		log.Error().Err(err).Bool("available_only", filter.AvailableOnly).Msg("service: failed to list listings")
		return nil, fmt.Errorf("service: failed to list listings: %w", err)
	}
	return listings, nil
}

func (s *service) GetListing(ctx context.Context, id uuid.UUID) (*Listing, error) {
	listing, err := s.repo.GetListingByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrListingNotFound) {
			return nil, ErrListingNotFound
		}
		log.Error().Err(err).Stringer("listing_id", id).Msg("service: failed to get listing")
		return nil, fmt.Errorf("service: failed to get listing: %w", err)
	}
	return listing, nil
}

func (s *service) GetListingsByIDs(ctx context.Context, ids []uuid.UUID) ([]Listing, error) {
	listings, err := s.repo.GetListingsByIDs(ctx, ids)
	if err != nil {
		log.Error().Err(err).Int("count", len(ids)).Msg("service: failed to get listings by ids")
		return nil, fmt.Errorf("service: failed to get listings by ids: %w", err)
	}
	return listings, nil
}

func (s *service) CreateListing(ctx context.Context, input ListingInput) (*Listing, error) {
	if err := validateInput(&input); err != nil {
		return nil, err
	}

	listing := &Listing{}
	applyInput(listing, input)

	if err := s.repo.CreateListing(ctx, listing); err != nil {
		log.Error().Err(err).Str("name", listing.Name).Msg("service: failed to create listing")
		return nil, fmt.Errorf("service: failed to create listing: %w", err)
	}

	log.Info().Stringer("listing_id", listing.ID).Str("breed", listing.Breed).Msg("service: listing created")
	return listing, nil
}

func (s *service) UpdateListing(ctx context.Context, id uuid.UUID, input ListingInput) (*Listing, error) {
	if err := validateInput(&input); err != nil {
		return nil, err
	}

	listing := &Listing{ID: id}
	applyInput(listing, input)

	if err := s.repo.UpdateListing(ctx, listing); err != nil {
		if errors.Is(err, ErrListingNotFound) {
			return nil, ErrListingNotFound
		}
		log.Error().Err(err).Stringer("listing_id", id).Msg("service: failed to update listing")
		return nil, fmt.Errorf("service: failed to update listing: %w", err)
	}
	return listing, nil
}

func (s *service) DeleteListing(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteListing(ctx, id); err != nil {
		if errors.Is(err, ErrListingNotFound) {
			return ErrListingNotFound
		}
		log.Error().Err(err).Stringer("listing_id", id).Msg("service: failed to delete listing")
		return fmt.Errorf("service: failed to delete listing: %w", err)
	}

	log.Info().Stringer("listing_id", id).Msg("service: listing deleted")
	return nil
}

func (s *service) ExportListings(ctx context.Context, w io.Writer) error {
	listings, err := s.ListListings(ctx, Filter{})
	if err != nil {
		return err
	}
	if err := WriteXLSX(w, listings); err != nil {
		log.Error().Err(err).Msg("service: failed to render listings export")
		return fmt.Errorf("service: failed to export listings: %w", err)
	}
	return nil
}
