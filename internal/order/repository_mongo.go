package order

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

type lineItemDocument struct {
	ItemID   string  `bson:"item_id"`
	Name     string  `bson:"name"`
	Price    float64 `bson:"price"`
	Breed    string  `bson:"breed"`
	Category string  `bson:"category"`
	Image    string  `bson:"image"`
	Quantity int     `bson:"qty"`
}

type statusChangeDocument struct {
	From    string    `bson:"from"`
	To      string    `bson:"to"`
	ActorID string    `bson:"actor_id"`
	At      time.Time `bson:"at"`
}

type orderDocument struct {
	ID               string                 `bson:"_id"`
	UserID           string                 `bson:"user_id"`
	Customer         string                 `bson:"customer"`
	Items            []lineItemDocument     `bson:"items"`
	TotalAmount      float64                `bson:"total_amount"`
	Address          Address                `bson:"address"`
	PaymentMethod    string                 `bson:"payment_method"`
	PaymentStatus    string                 `bson:"payment_status"`
	PaymentReference string                 `bson:"payment_reference"`
	Status           string                 `bson:"status"`
	Tracking         []TrackingStep         `bson:"tracking"`
	History          []statusChangeDocument `bson:"history"`
	Version          int                    `bson:"version"`
	CreatedAt        time.Time              `bson:"created_at"`
	UpdatedAt        time.Time              `bson:"updated_at"`
}

func toOrderDocument(o *Order) orderDocument {
	items := make([]lineItemDocument, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, lineItemDocument{
			ItemID:   item.ItemID.String(),
			Name:     item.Name,
			Price:    item.Price,
			Breed:    item.Breed,
			Category: item.Category,
			Image:    item.Image,
			Quantity: item.Quantity,
		})
	}
	return orderDocument{
		ID:               o.ID.String(),
		UserID:           o.UserID.String(),
		Customer:         o.Customer,
		Items:            items,
		TotalAmount:      o.TotalAmount,
		Address:          o.Address,
		PaymentMethod:    string(o.PaymentMethod),
		PaymentStatus:    string(o.PaymentStatus),
		PaymentReference: o.PaymentReference,
		Status:           string(o.Status),
		Tracking:         o.Tracking,
		History:          historyDocuments(o.History),
		Version:          o.Version,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func historyDocuments(history []StatusChange) []statusChangeDocument {
	docs := make([]statusChangeDocument, 0, len(history))
	for _, h := range history {
		docs = append(docs, statusChangeDocument{
			From:    string(h.From),
			To:      string(h.To),
			ActorID: h.ActorID.String(),
			At:      h.At,
		})
	}
	return docs
}

func (d orderDocument) toOrder() (*Order, error) {
	id, err := uuid.FromString(d.ID)
	if err != nil {
		return nil, fmt.Errorf("repository: invalid order id %q: %w", d.ID, err)
	}
	userID, err := uuid.FromString(d.UserID)
	if err != nil {
		return nil, fmt.Errorf("repository: invalid user id on order %s: %w", d.ID, err)
	}

	items := make([]LineItem, 0, len(d.Items))
	for _, item := range d.Items {
		itemID, err := uuid.FromString(item.ItemID)
		if err != nil {
			return nil, fmt.Errorf("repository: invalid item id on order %s: %w", d.ID, err)
		}
		items = append(items, LineItem{
			ItemID:   itemID,
			Name:     item.Name,
			Price:    item.Price,
			Breed:    item.Breed,
			Category: item.Category,
			Image:    item.Image,
			Quantity: item.Quantity,
		})
	}

	history := make([]StatusChange, 0, len(d.History))
	for _, h := range d.History {
		actorID, _ := uuid.FromString(h.ActorID)
		history = append(history, StatusChange{
			From:    Status(h.From),
			To:      Status(h.To),
			ActorID: actorID,
			At:      h.At.UTC(),
		})
	}

	return &Order{
		ID:               id,
		UserID:           userID,
		Customer:         d.Customer,
		Items:            items,
		TotalAmount:      d.TotalAmount,
		Address:          d.Address,
		PaymentMethod:    PaymentMethod(d.PaymentMethod),
		PaymentStatus:    PaymentStatus(d.PaymentStatus),
		PaymentReference: d.PaymentReference,
		Status:           Status(d.Status),
		Tracking:         d.Tracking,
		History:          history,
		Version:          d.Version,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}, nil
}

type mongoRepository struct {
	client   *mongo.Client
	orders   *mongo.Collection
	accounts *mongo.Collection
}

// NewMongoRepository needs a replica set deployment: order creation and cart
// clearing share a multi-document transaction.
func NewMongoRepository(db *mongo.Database) Repository {
	return &mongoRepository{
		client:   db.Client(),
		orders:   db.Collection("orders"),
		accounts: db.Collection("accounts"),
	}
}

func (r *mongoRepository) CreateOrder(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		o.ID = id
	}
	if o.Version == 0 {
		o.Version = 1
	}
	o.CreatedAt = o.CreatedAt.Truncate(time.Millisecond)
	o.UpdatedAt = o.UpdatedAt.Truncate(time.Millisecond)

	purchased := make([]string, 0, len(o.Items))
	for _, id := range o.ItemIDs() {
		purchased = append(purchased, id.String())
	}

	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("repository: failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := r.orders.InsertOne(sc, toOrderDocument(o)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, ErrPaymentReferenceInUse
			}
			return nil, fmt.Errorf("repository: failed to insert order: %w", err)
		}

		update := bson.M{
			"$pull": bson.M{"cart": bson.M{"listing_id": bson.M{"$in": purchased}}},
			"$set":  bson.M{"updated_at": o.UpdatedAt},
		}
		if _, err := r.accounts.UpdateOne(sc, bson.M{"_id": o.UserID.String()}, update); err != nil {
			return nil, fmt.Errorf("repository: failed to clear purchased items from cart: %w", err)
		}
		return nil, nil
	})
	return err
}

func (r *mongoRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	var doc orderDocument
	err := r.orders.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to find order %s: %w", id, err)
	}
	return doc.toOrder()
}

func (r *mongoRepository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	query := bson.M{}
	if filter.UserID != uuid.Nil {
		query["user_id"] = filter.UserID.String()
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.orders.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("repository: failed to decode orders: %w", err)
	}

	orders := make([]Order, 0, len(docs))
	for _, doc := range docs {
		o, err := doc.toOrder()
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

func (r *mongoRepository) UpdateOrder(ctx context.Context, o *Order, expectedVersion int) error {
	updatedAt := o.UpdatedAt.Truncate(time.Millisecond)
	update := bson.M{
		"$set": bson.M{
			"status":            string(o.Status),
			"tracking":          o.Tracking,
			"history":           historyDocuments(o.History),
			"payment_status":    string(o.PaymentStatus),
			"payment_reference": o.PaymentReference,
			"updated_at":        updatedAt,
		},
		"$inc": bson.M{"version": 1},
	}

	res, err := r.orders.UpdateOne(ctx, bson.M{"_id": o.ID.String(), "version": expectedVersion}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrPaymentReferenceInUse
		}
		return fmt.Errorf("repository: failed to update order %s: %w", o.ID, err)
	}

	if res.MatchedCount == 0 {
		count, err := r.orders.CountDocuments(ctx, bson.M{"_id": o.ID.String()})
		if err != nil {
			return fmt.Errorf("repository: failed to check order %s: %w", o.ID, err)
		}
		if count == 0 {
			return ErrOrderNotFound
		}
		return ErrConcurrentUpdate
	}

	o.UpdatedAt = updatedAt
	o.Version = expectedVersion + 1
	return nil
}
