package account

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

type cartItemDocument struct {
	ListingID string `bson:"listing_id"`
	Quantity  int    `bson:"quantity"`
	Selected  bool   `bson:"selected"`
}

type accountDocument struct {
	ID           string             `bson:"_id"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password_hash"`
	Role         string             `bson:"role"`
	Cart         []cartItemDocument `bson:"cart"`
	Wishlist     []string           `bson:"wishlist"`
	Addresses    []Address          `bson:"addresses"`
	OTPHash      string             `bson:"otp_hash,omitempty"`
	OTPExpiresAt *time.Time         `bson:"otp_expires_at,omitempty"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

func cartDocuments(cart []CartItem) []cartItemDocument {
	docs := make([]cartItemDocument, 0, len(cart))
	for _, item := range cart {
		docs = append(docs, cartItemDocument{ListingID: item.ListingID.String(), Quantity: item.Quantity, Selected: item.Selected})
	}
	return docs
}

func wishlistDocuments(wishlist []uuid.UUID) []string {
	docs := make([]string, 0, len(wishlist))
	for _, id := range wishlist {
		docs = append(docs, id.String())
	}
	return docs
}

func (d accountDocument) toAccount() (*Account, error) {
	id, err := uuid.FromString(d.ID)
	if err != nil {
		return nil, fmt.Errorf("repository: invalid account id %q: %w", d.ID, err)
	}

	a := &Account{
		ID:           id,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Role:         Role(d.Role),
		Cart:         make([]CartItem, 0, len(d.Cart)),
		Wishlist:     make([]uuid.UUID, 0, len(d.Wishlist)),
		Addresses:    d.Addresses,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
	if a.Addresses == nil {
		a.Addresses = []Address{}
	}
	for _, item := range d.Cart {
		listingID, err := uuid.FromString(item.ListingID)
		if err != nil {
			continue
		}
		a.Cart = append(a.Cart, CartItem{ListingID: listingID, Quantity: item.Quantity, Selected: item.Selected})
	}
	for _, raw := range d.Wishlist {
		if listingID, err := uuid.FromString(raw); err == nil {
			a.Wishlist = append(a.Wishlist, listingID)
		}
	}
	return a, nil
}

type MongoRepository struct {
	collection *mongo.Collection
}

// NewMongoRepository stores accounts in the "accounts" collection. Cart
// entries use the listing_id key that order creation pulls from.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection("accounts")}
}

func (r *MongoRepository) Create(ctx context.Context, a *Account) error {
	if a.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate account ID: %w", err)
		}
		a.ID = id
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Cart = []CartItem{}
	a.Wishlist = []uuid.UUID{}
	a.Addresses = []Address{}

	doc := accountDocument{
		ID:           a.ID.String(),
		Name:         a.Name,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Role:         string(a.Role),
		Cart:         []cartItemDocument{},
		Wishlist:     []string{},
		Addresses:    []Address{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("repository: failed to insert account: %w", err)
	}
	return nil
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*Account, error) {
	var doc accountDocument
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to find account: %w", err)
	}
	return doc.toAccount()
}

func (r *MongoRepository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

// GetByEmail expects the normalized (lower-case) email that the service stores.
func (r *MongoRepository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoRepository) SaveState(ctx context.Context, id uuid.UUID, state State) error {
	addresses := state.Addresses
	if addresses == nil {
		addresses = []Address{}
	}
	update := bson.M{"$set": bson.M{
		"cart":       cartDocuments(state.Cart),
		"wishlist":   wishlistDocuments(state.Wishlist),
		"addresses":  addresses,
		"updated_at": time.Now().UTC(),
	}}

	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id.String()}, update)
	if err != nil {
		return fmt.Errorf("repository: failed to save state of account %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) SaveOTP(ctx context.Context, email, codeHash string, expiresAt time.Time) error {
	update := bson.M{"$set": bson.M{"otp_hash": codeHash, "otp_expires_at": expiresAt.UTC(), "otp_attempts": 0}}
	res, err := r.collection.UpdateOne(ctx, bson.M{"email": email}, update)
	if err != nil {
		return fmt.Errorf("repository: failed to store otp: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoRepository) ConsumeOTP(ctx context.Context, email, codeHash string, now time.Time) (bool, error) {
	filter := bson.M{
		"email":          email,
		"otp_hash":       codeHash,
		"otp_expires_at": bson.M{"$gt": now.UTC()},
	}
	reset := bson.M{"$unset": bson.M{"otp_hash": "", "otp_expires_at": "", "otp_attempts": ""}}

	res, err := r.collection.UpdateOne(ctx, filter, reset)
	if err != nil {
		return false, fmt.Errorf("repository: failed to consume otp: %w", err)
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}

	var attempts struct {
		Count int `bson:"otp_attempts"`
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"otp_attempts": 1})
	err = r.collection.FindOneAndUpdate(ctx,
		bson.M{"email": email, "otp_hash": bson.M{"$exists": true}},
		bson.M{"$inc": bson.M{"otp_attempts": 1}},
		opts,
	).Decode(&attempts)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("repository: failed to record otp attempt: %w", err)
	}

	if attempts.Count >= MaxOTPAttempts {
		lockout := bson.M{"email": email, "otp_attempts": bson.M{"$gte": MaxOTPAttempts}}
		if _, err := r.collection.UpdateOne(ctx, lockout, reset); err != nil {
			return false, fmt.Errorf("repository: failed to clear otp after failed attempts: %w", err)
		}
	}
	return false, nil
}
