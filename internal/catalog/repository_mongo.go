package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type listingDocument struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Category     string    `bson:"category"`
	Breed        string    `bson:"breed"`
	Age          string    `bson:"age"`
	Price        float64   `bson:"price"`
	Image        string    `bson:"image"`
	Description  string    `bson:"description"`
	Weight       string    `bson:"weight"`
	HealthStatus string    `bson:"health_status"`
	Tags         []string  `bson:"tags"`
	Status       string    `bson:"status"`
	Quantity     int       `bson:"quantity"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toListingDocument(l *Listing) listingDocument {
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	return listingDocument{
		ID:           l.ID.String(),
		Name:         l.Name,
		Category:     string(l.Category),
		Breed:        l.Breed,
		Age:          l.Age,
		Price:        l.Price,
		Image:        l.Image,
		Description:  l.Description,
		Weight:       l.Weight,
		HealthStatus: l.HealthStatus,
		Tags:         tags,
		Status:       string(l.Status),
		Quantity:     l.Quantity,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
}

func (d listingDocument) toListing() (Listing, error) {
	id, err := uuid.FromString(d.ID)
	if err != nil {
		return Listing{}, fmt.Errorf("repository: invalid listing id %q: %w", d.ID, err)
	}
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return Listing{
		ID:           id,
		Name:         d.Name,
		Category:     Category(d.Category),
		Breed:        d.Breed,
		Age:          d.Age,
		Price:        d.Price,
		Image:        d.Image,
		Description:  d.Description,
		Weight:       d.Weight,
		HealthStatus: d.HealthStatus,
		Tags:         tags,
		Status:       Status(d.Status),
		Quantity:     d.Quantity,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}, nil
}

type mongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) Repository {
	return &mongoRepository{collection: db.Collection("livestock")}
}

func (r *mongoRepository) CreateListing(ctx context.Context, listing *Listing) error {
	if listing.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate listing ID: %w", err)
		}
		listing.ID = id
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	listing.CreatedAt = now
	listing.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, toListingDocument(listing)); err != nil {
		return fmt.Errorf("repository: failed to insert listing: %w", err)
	}
	return nil
}

func (r *mongoRepository) GetListingByID(ctx context.Context, id uuid.UUID) (*Listing, error) {
	var doc listingDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("repository: failed to find listing %s: %w", id, err)
	}

	listing, err := doc.toListing()
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *mongoRepository) GetListingsByIDs(ctx context.Context, ids []uuid.UUID) ([]Listing, error) {
	if len(ids) == 0 {
		return []Listing{}, nil
	}
	idStrings := make([]string, 0, len(ids))
	for _, id := range ids {
		idStrings = append(idStrings, id.String())
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": idStrings}})
}

func (r *mongoRepository) ListListings(ctx context.Context, filter Filter) ([]Listing, error) {
	query := bson.M{}
	if filter.AvailableOnly {
		query["status"] = string(StatusAvailable)
	}
	return r.find(ctx, query)
}

func (r *mongoRepository) find(ctx context.Context, query bson.M) ([]Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query listings: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []listingDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("repository: failed to decode listings: %w", err)
	}

	listings := make([]Listing, 0, len(docs))
	for _, doc := range docs {
		listing, err := doc.toListing()
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}
	return listings, nil
}

func (r *mongoRepository) UpdateListing(ctx context.Context, listing *Listing) error {
	listing.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	doc := toListingDocument(listing)

	update := bson.M{"$set": bson.M{
		"name":          doc.Name,
		"category":      doc.Category,
		"breed":         doc.Breed,
		"age":           doc.Age,
		"price":         doc.Price,
		"image":         doc.Image,
		"description":   doc.Description,
		"weight":        doc.Weight,
		"health_status": doc.HealthStatus,
		"tags":          doc.Tags,
		"status":        doc.Status,
		"quantity":      doc.Quantity,
		"updated_at":    doc.UpdatedAt,
	}}

	var stored listingDocument
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": doc.ID}, update).Decode(&stored)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrListingNotFound
		}
		return fmt.Errorf("repository: failed to update listing %s: %w", listing.ID, err)
	}
	listing.CreatedAt = stored.CreatedAt.UTC()
	return nil
}

func (r *mongoRepository) DeleteListing(ctx context.Context, id uuid.UUID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("repository: failed to delete listing %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrListingNotFound
	}
	return nil
}
