package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound    = errors.New("account not found")
	ErrEmailExists = errors.New("email already exists")
)

type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	SaveState(ctx context.Context, id uuid.UUID, state State) error
}

// OTPStore keeps at most one pending one-time code per email.
type OTPStore interface {
	SaveOTP(ctx context.Context, email, codeHash string, expiresAt time.Time) error
	// ConsumeOTP clears the stored code and reports true only when it matches
	// codeHash and has not expired at now. A mismatch counts as a failed
	// attempt, and MaxOTPAttempts of them clear the code as well.
	ConsumeOTP(ctx context.Context, email, codeHash string, now time.Time) (bool, error)
}

type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewRepository returns a Postgres-backed store that also serves as the
// default OTPStore.
func NewRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, a *Account) error {
	if a.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate account ID: %w", err)
		}
		a.ID = id
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	query := `
		INSERT INTO accounts (id, name, email, password_hash, role, cart, wishlist, addresses, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '[]'::jsonb, '[]'::jsonb, '[]'::jsonb, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, a.ID, a.Name, a.Email, a.PasswordHash, string(a.Role), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrEmailExists
		}
		return fmt.Errorf("repository: failed to insert account: %w", err)
	}

	a.Cart = []CartItem{}
	a.Wishlist = []uuid.UUID{}
	a.Addresses = []Address{}
	return nil
}

const accountColumns = `id, name, email, password_hash, role, cart, wishlist, addresses, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		a                         Account
		cart, wishlist, addresses []byte
	)
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &cart, &wishlist, &addresses, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(cart, &a.Cart); err != nil {
		return nil, fmt.Errorf("repository: failed to decode cart of account %s: %w", a.ID, err)
	}
	if err := json.Unmarshal(wishlist, &a.Wishlist); err != nil {
		return nil, fmt.Errorf("repository: failed to decode wishlist of account %s: %w", a.ID, err)
	}
	if err := json.Unmarshal(addresses, &a.Addresses); err != nil {
		return nil, fmt.Errorf("repository: failed to decode addresses of account %s: %w", a.ID, err)
	}
	return &a, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select account %s: %w", id, err)
	}
	return a, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = LOWER($1)`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select account by email: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) SaveState(ctx context.Context, id uuid.UUID, state State) error {
	cart, err := json.Marshal(state.Cart)
	if err != nil {
		return fmt.Errorf("repository: failed to encode cart: %w", err)
	}
	wishlist, err := json.Marshal(state.Wishlist)
	if err != nil {
		return fmt.Errorf("repository: failed to encode wishlist: %w", err)
	}
	addresses, err := json.Marshal(state.Addresses)
	if err != nil {
		return fmt.Errorf("repository: failed to encode addresses: %w", err)
	}

	query := `
		UPDATE accounts
		SET cart = $1, wishlist = $2, addresses = $3, updated_at = $4
		WHERE id = $5
	`
	cmdTag, err := r.db.Exec(ctx, query, cart, wishlist, addresses, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("repository: failed to save state of account %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) SaveOTP(ctx context.Context, email, codeHash string, expiresAt time.Time) error {
	query := `UPDATE accounts SET otp_hash = $1, otp_expires_at = $2, otp_attempts = 0 WHERE LOWER(email) = LOWER($3)`
	cmdTag, err := r.db.Exec(ctx, query, codeHash, expiresAt, email)
	if err != nil {
		return fmt.Errorf("repository: failed to store otp: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ConsumeOTP(ctx context.Context, email, codeHash string, now time.Time) (bool, error) {
	query := `
		UPDATE accounts
		SET otp_hash = NULL, otp_expires_at = NULL, otp_attempts = 0
		WHERE LOWER(email) = LOWER($1) AND otp_hash = $2 AND otp_expires_at > $3
	`
	cmdTag, err := r.db.Exec(ctx, query, email, codeHash, now)
	if err != nil {
		return false, fmt.Errorf("repository: failed to consume otp: %w", err)
	}
	if cmdTag.RowsAffected() == 1 {
		return true, nil
	}

	missQuery := `
		UPDATE accounts
		SET otp_attempts = otp_attempts + 1,
			otp_hash = CASE WHEN otp_attempts + 1 >= $2 THEN NULL ELSE otp_hash END,
			otp_expires_at = CASE WHEN otp_attempts + 1 >= $2 THEN NULL ELSE otp_expires_at END
		WHERE LOWER(email) = LOWER($1) AND otp_hash IS NOT NULL
	`
	if _, err := r.db.Exec(ctx, missQuery, email, MaxOTPAttempts); err != nil {
		return false, fmt.Errorf("repository: failed to record otp attempt: %w", err)
	}
	return false, nil
}
