package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrConcurrentUpdate = errors.New("order was modified concurrently")
	// ErrPaymentReferenceInUse means another order already carries the
	// payment reference.
	ErrPaymentReferenceInUse = errors.New("payment reference already used by another order")
)

type Repository interface {
	// CreateOrder stores the order and removes its listings from the owner's
	// cart in one transaction.
	CreateOrder(ctx context.Context, o *Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, error)
	// UpdateOrder writes status, tracking, history and payment fields only if
	// the stored version still equals expectedVersion.
	UpdateOrder(ctx context.Context, o *Order, expectedVersion int) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `id, user_id, customer, items, total_amount, address, payment_method, payment_status, payment_reference, status, tracking, history, version, created_at, updated_at`

func (r *postgresRepository) CreateOrder(ctx context.Context, o *Order) (err error) {
	if o.ID == uuid.Nil {
		id, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", genErr)
		}
		o.ID = id
	}
	if o.Version == 0 {
		o.Version = 1
	}

	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("repository: failed to encode order items: %w", err)
	}
	address, err := json.Marshal(o.Address)
	if err != nil {
		return fmt.Errorf("repository: failed to encode order address: %w", err)
	}
	tracking, err := json.Marshal(o.Tracking)
	if err != nil {
		return fmt.Errorf("repository: failed to encode order tracking: %w", err)
	}
	history, err := json.Marshal(o.History)
	if err != nil {
		return fmt.Errorf("repository: failed to encode order history: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Stringer("order_id", o.ID).Msg("repository: panic during CreateOrder, rolling back")
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("repository: failed to rollback transaction")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	queryOrder := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = tx.Exec(ctx, queryOrder,
		o.ID,
		o.UserID,
		o.Customer,
		items,
		o.TotalAmount,
		address,
		string(o.PaymentMethod),
		string(o.PaymentStatus),
		o.PaymentReference,
		string(o.Status),
		tracking,
		history,
		o.Version,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		if isPaymentReferenceConflict(err) {
			return ErrPaymentReferenceInUse
		}
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	purchased := make([]string, 0, len(o.Items))
	for _, id := range o.ItemIDs() {
		purchased = append(purchased, id.String())
	}

	// Cart entries are stored as {"listingId": ..., "quantity": ..., "selected": ...}.
	queryCart := `
		UPDATE accounts
		SET cart = COALESCE((
				SELECT jsonb_agg(entry ORDER BY position)
				FROM jsonb_array_elements(CASE WHEN jsonb_typeof(cart) = 'array' THEN cart ELSE '[]'::jsonb END) WITH ORDINALITY AS e(entry, position)
				WHERE NOT ((entry->>'listingId') = ANY($2::text[]))
			), '[]'::jsonb),
			updated_at = $3
		WHERE id = $1
	`
	if _, err = tx.Exec(ctx, queryCart, o.UserID, purchased, o.UpdatedAt); err != nil {
		return fmt.Errorf("repository: failed to clear purchased items from cart: %w", err)
	}

	return nil
}

func isPaymentReferenceConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgerrcode.UniqueViolation &&
		pgErr.ConstraintName == "orders_payment_reference_key"
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                                 Order
		items, address, tracking, history []byte
	)
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.Customer,
		&items,
		&o.TotalAmount,
		&address,
		&o.PaymentMethod,
		&o.PaymentStatus,
		&o.PaymentReference,
		&o.Status,
		&tracking,
		&history,
		&o.Version,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("repository: failed to decode items of order %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(address, &o.Address); err != nil {
		return nil, fmt.Errorf("repository: failed to decode address of order %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(tracking, &o.Tracking); err != nil {
		return nil, fmt.Errorf("repository: failed to decode tracking of order %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(history, &o.History); err != nil {
		return nil, fmt.Errorf("repository: failed to decode history of order %s: %w", o.ID, err)
	}
	return &o, nil
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}
	return o, nil
}

func (r *postgresRepository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if filter.UserID != uuid.Nil {
		query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
		rows, err = r.db.Query(ctx, query, filter.UserID)
	} else {
		query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`
		rows, err = r.db.Query(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders: %w", err)
	}
	return orders, nil
}

func (r *postgresRepository) UpdateOrder(ctx context.Context, o *Order, expectedVersion int) error {
	tracking, err := json.Marshal(o.Tracking)
	if err != nil {
		return fmt.Errorf("repository: failed to encode order tracking: %w", err)
	}
	history, err := json.Marshal(o.History)
	if err != nil {
		return fmt.Errorf("repository: failed to encode order history: %w", err)
	}

	query := `
		UPDATE orders
		SET status = $1, tracking = $2, history = $3, payment_status = $4, payment_reference = $5,
			version = version + 1, updated_at = $6
		WHERE id = $7 AND version = $8
	`
	cmdTag, err := r.db.Exec(ctx, query,
		string(o.Status),
		tracking,
		history,
		string(o.PaymentStatus),
		o.PaymentReference,
		o.UpdatedAt,
		o.ID,
		expectedVersion,
	)
	if err != nil {
		if isPaymentReferenceConflict(err) {
			return ErrPaymentReferenceInUse
		}
		return fmt.Errorf("repository: failed to update order %s: %w", o.ID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
			return fmt.Errorf("repository: failed to check order %s: %w", o.ID, err)
		}
		if !exists {
			return ErrOrderNotFound
		}
		return ErrConcurrentUpdate
	}

	o.Version = expectedVersion + 1
	return nil
}
