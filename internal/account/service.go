package account

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/livestockmart/internal/catalog"
	"golang.org/x/crypto/bcrypt"
)

const (
	OTPLength = 6
	OTPTTL    = 5 * time.Minute
	// MaxOTPAttempts wrong guesses clear the pending code.
	MaxOTPAttempts = 5
)

var (
	ErrInvalidInput       = errors.New("invalid account input")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidOTP         = errors.New("invalid or expired code")
)

// Mailer delivers one-time codes out of band.
type Mailer interface {
	SendOTP(ctx context.Context, to, code string) error
}

// ListingLookup resolves cart entries against the live catalog.
type ListingLookup interface {
	GetListingsByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Listing, error)
}

type Service interface {
	Register(ctx context.Context, input RegisterInput) (*Account, error)
	Authenticate(ctx context.Context, email, password string) (*Account, error)
	RequestOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) (*Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	GetState(ctx context.Context, id uuid.UUID) (*StateView, error)
	SaveState(ctx context.Context, id uuid.UUID, state State) (*State, error)
}

type Option func(*service)

func WithOTPStore(store OTPStore) Option {
	return func(s *service) {
		s.otps = store
	}
}

func WithMailer(m Mailer) Option {
	return func(s *service) {
		s.mailer = m
	}
}

// WithOTPLogFallback logs codes that could not be mailed. Never enable it in
// production.
func WithOTPLogFallback(enabled bool) Option {
	return func(s *service) {
		s.logOTPFallback = enabled
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

type service struct {
	repo           Repository
	listings       ListingLookup
	otps           OTPStore
	mailer         Mailer
	logOTPFallback bool
	now            func() time.Time
}

// NewService wires the account store. When repo can also hold OTP challenges
// it is used as the OTP store unless WithOTPStore overrides it.
func NewService(repo Repository, listings ListingLookup, opts ...Option) Service {
	s := &service{
		repo:     repo,
		listings: listings,
		now:      time.Now,
	}
	if store, ok := repo.(OTPStore); ok {
		s.otps = store
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// compareDummy spends the same bcrypt work as a real check so that unknown
// emails cannot be told apart by timing.
func compareDummy(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("livestockmart-dummy-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*Account, error) {
	name := strings.TrimSpace(input.Name)
	email := NormalizeEmail(input.Email)
	if name == "" || email == "" || input.Password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", ErrInvalidInput)
	}

	role := input.Role
	if role == "" {
		role = RoleCustomer
	}
	if role != RoleCustomer && role != RoleAdmin {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to hash password")
		return nil, fmt.Errorf("service: failed to hash password: %w", err)
	}

	a := &Account{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, ErrEmailExists
		}
		log.Error().Err(err).Msg("service: failed to create account in repository")
		return nil, fmt.Errorf("service: failed to create account: %w", err)
	}

	log.Info().Stringer("user_id", a.ID).Str("role", string(a.Role)).Msg("service: account registered")
	return a, nil
}

func (s *service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	a, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			compareDummy(password)
			return nil, ErrInvalidCredentials
		}
		log.Error().Err(err).Msg("service: failed to load account for login")
		return nil, fmt.Errorf("service: failed to authenticate: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		log.Warn().Stringer("user_id", a.ID).Msg("service: password mismatch")
		return nil, ErrInvalidCredentials
	}
	return a, nil
}

func generateOTP() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", OTPLength, n.Int64()), nil
}

func hashOTP(email, code string) string {
	sum := sha256.Sum256([]byte(email + ":" + code))
	return hex.EncodeToString(sum[:])
}

func (s *service) RequestOTP(ctx context.Context, email string) error {
	if s.otps == nil {
		return errors.New("service: no otp store configured")
	}
	email = NormalizeEmail(email)

	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Debug().Msg("service: otp requested for unknown email")
			return nil
		}
		log.Error().Err(err).Msg("service: failed to load account for otp")
		return fmt.Errorf("service: failed to request otp: %w", err)
	}

	code, err := generateOTP()
	if err != nil {
		return fmt.Errorf("service: failed to generate otp: %w", err)
	}

	expiresAt := s.now().UTC().Add(OTPTTL)
	if err := s.otps.SaveOTP(ctx, email, hashOTP(email, code), expiresAt); err != nil {
		log.Error().Err(err).Stringer("user_id", a.ID).Msg("service: failed to store otp")
		return fmt.Errorf("service: failed to store otp: %w", err)
	}

	if s.mailer != nil {
		err = s.mailer.SendOTP(ctx, email, code)
		if err == nil {
			log.Info().Stringer("user_id", a.ID).Msg("service: otp sent")
			return nil
		}
		log.Warn().Err(err).Stringer("user_id", a.ID).Msg("service: failed to send otp email")
	}

	if s.logOTPFallback {
		log.Warn().Str("email", email).Str("otp", code).Msg("service: otp not delivered, logging code for development")
	}
	return nil
}

func (s *service) VerifyOTP(ctx context.Context, email, code string) (*Account, error) {
	if s.otps == nil {
		return nil, errors.New("service: no otp store configured")
	}
	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)

	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidOTP
		}
		return nil, fmt.Errorf("service: failed to verify otp: %w", err)
	}

	ok, err := s.otps.ConsumeOTP(ctx, email, hashOTP(email, code), s.now().UTC())
	if err != nil {
		log.Error().Err(err).Stringer("user_id", a.ID).Msg("service: failed to consume otp")
		return nil, fmt.Errorf("service: failed to verify otp: %w", err)
	}
	if !ok {
		log.Warn().Stringer("user_id", a.ID).Msg("service: otp rejected")
		return nil, ErrInvalidOTP
	}
	return a, nil
}

func (s *service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("user_id", id).Msg("service: failed to get account")
		return nil, fmt.Errorf("service: failed to get account: %w", err)
	}
	return a, nil
}

func (s *service) GetState(ctx context.Context, id uuid.UUID) (*StateView, error) {
	a, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(a.Cart))
	for _, item := range a.Cart {
		ids = append(ids, item.ListingID)
	}

	byID := make(map[uuid.UUID]catalog.Listing, len(ids))
	if len(ids) > 0 {
		listings, err := s.listings.GetListingsByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("service: failed to load cart listings: %w", err)
		}
		for _, l := range listings {
			byID[l.ID] = l
		}
	}

	view := &StateView{
		Cart:      make([]CartEntry, 0, len(a.Cart)),
		Wishlist:  a.Wishlist,
		Addresses: a.Addresses,
	}
	for _, item := range a.Cart {
		listing, ok := byID[item.ListingID]
		if !ok {
			continue
		}
		view.Cart = append(view.Cart, CartEntry{CartItem: item, Listing: listing})
	}
	if view.Wishlist == nil {
		view.Wishlist = []uuid.UUID{}
	}
	if view.Addresses == nil {
		view.Addresses = []Address{}
	}
	return view, nil
}

// normalizeState drops duplicate listings and fills defaults so the stored
// snapshot is always well formed.
func normalizeState(state State) (State, error) {
	out := State{
		Cart:      make([]CartItem, 0, len(state.Cart)),
		Wishlist:  make([]uuid.UUID, 0, len(state.Wishlist)),
		Addresses: make([]Address, 0, len(state.Addresses)),
	}

	seen := make(map[uuid.UUID]bool, len(state.Cart))
	for _, item := range state.Cart {
		if item.ListingID == uuid.Nil {
			return State{}, fmt.Errorf("%w: cart item without listing id", ErrInvalidInput)
		}
		if seen[item.ListingID] {
			continue
		}
		seen[item.ListingID] = true
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		out.Cart = append(out.Cart, item)
	}

	inWishlist := make(map[uuid.UUID]bool, len(state.Wishlist))
	for _, id := range state.Wishlist {
		if id == uuid.Nil || inWishlist[id] {
			continue
		}
		inWishlist[id] = true
		out.Wishlist = append(out.Wishlist, id)
	}

	out.Addresses = append(out.Addresses, state.Addresses...)
	return out, nil
}

func (s *service) SaveState(ctx context.Context, id uuid.UUID, state State) (*State, error) {
	normalized, err := normalizeState(state)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SaveState(ctx, id, normalized); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("user_id", id).Msg("service: failed to save account state")
		return nil, fmt.Errorf("service: failed to save state: %w", err)
	}
	return &normalized, nil
}
