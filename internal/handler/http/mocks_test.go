package http_test

import (
	"context"
	"io"
	"net/http"
	"net/netip"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/livestockmart/internal/account"
	"github.com/vasiliy-maslov/livestockmart/internal/auth"
	"github.com/vasiliy-maslov/livestockmart/internal/catalog"
	"github.com/vasiliy-maslov/livestockmart/internal/config"
	handler "github.com/vasiliy-maslov/livestockmart/internal/handler/http"
	"github.com/vasiliy-maslov/livestockmart/internal/notify"
	"github.com/vasiliy-maslov/livestockmart/internal/order"
	"github.com/vasiliy-maslov/livestockmart/internal/payment"
)

type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) Register(ctx context.Context, input account.RegisterInput) (*account.Account, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountService) Authenticate(ctx context.Context, email, password string) (*account.Account, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountService) RequestOTP(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockAccountService) VerifyOTP(ctx context.Context, email, code string) (*account.Account, error) {
	args := m.Called(ctx, email, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountService) GetAccount(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountService) GetState(ctx context.Context, id uuid.UUID) (*account.StateView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.StateView), args.Error(1)
}

func (m *MockAccountService) SaveState(ctx context.Context, id uuid.UUID, state account.State) (*account.State, error) {
	args := m.Called(ctx, id, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.State), args.Error(1)
}

type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) ListListings(ctx context.Context, filter catalog.Filter) ([]catalog.Listing, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Listing), args.Error(1)
}

func (m *MockCatalogService) GetListing(ctx context.Context, id uuid.UUID) (*catalog.Listing, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Listing), args.Error(1)
}

func (m *MockCatalogService) GetListingsByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Listing, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Listing), args.Error(1)
}

func (m *MockCatalogService) CreateListing(ctx context.Context, input catalog.ListingInput) (*catalog.Listing, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Listing), args.Error(1)
}

func (m *MockCatalogService) UpdateListing(ctx context.Context, id uuid.UUID, input catalog.ListingInput) (*catalog.Listing, error) {
	args := m.Called(ctx, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Listing), args.Error(1)
}

func (m *MockCatalogService) DeleteListing(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCatalogService) ExportListings(ctx context.Context, w io.Writer) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, actor order.Actor, input order.CreateOrderInput) (*order.Order, error) {
	args := m.Called(ctx, actor, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, actor order.Actor, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) ListOrders(ctx context.Context, actor order.Actor) ([]order.Order, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) UpdateOrderStatus(ctx context.Context, actor order.Actor, id uuid.UUID, newStatus order.Status) (*order.Order, error) {
	args := m.Called(ctx, actor, id, newStatus)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) CancelOrder(ctx context.Context, actor order.Actor, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status order.PaymentStatus, reference string) (*order.Order, error) {
	args := m.Called(ctx, id, status, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

type MockCardGateway struct {
	mock.Mock
}

func (m *MockCardGateway) CreateIntent(ctx context.Context, userID, orderID uuid.UUID, amount float64) (*payment.Request, error) {
	args := m.Called(ctx, userID, orderID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Request), args.Error(1)
}

func (m *MockCardGateway) ParseWebhook(payload []byte, signature string) (*payment.WebhookResult, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.WebhookResult), args.Error(1)
}

type stubFeed struct {
	sub notify.Subscriber
}

func (f *stubFeed) ServeWS(w http.ResponseWriter, _ *http.Request, sub notify.Subscriber) {
	f.sub = sub
	w.WriteHeader(http.StatusSwitchingProtocols)
}

type testServer struct {
	router   http.Handler
	tokens   *auth.Manager
	accounts *MockAccountService
	catalog  *MockCatalogService
	orders   *MockOrderService
	card     *MockCardGateway
	feed     *stubFeed
}

type serverOption func(*handler.RouterConfig, *testServer)

func withoutCard() serverOption {
	return func(cfg *handler.RouterConfig, ts *testServer) {
		cfg.Payments = handler.NewPaymentHandler(ts.orders, nil, nil)
	}
}

func withRateLimit(perMinute, burst int) serverOption {
	return func(cfg *handler.RouterConfig, ts *testServer) {
		cfg.Auth = handler.NewAuthHandler(ts.accounts, ts.tokens, handler.NewRateLimiter(perMinute, burst))
	}
}

func withTrustedProxies(proxies ...string) serverOption {
	return func(cfg *handler.RouterConfig, _ *testServer) {
		for _, p := range proxies {
			cfg.TrustedProxies = append(cfg.TrustedProxies, netip.MustParsePrefix(p))
		}
	}
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	ts := &testServer{
		tokens:   auth.NewManager(config.AuthConfig{JWTSecret: "handler-test-secret", TokenTTL: time.Hour}),
		accounts: new(MockAccountService),
		catalog:  new(MockCatalogService),
		orders:   new(MockOrderService),
		card:     new(MockCardGateway),
		feed:     &stubFeed{},
	}
	upi := payment.NewUPI(config.UPIConfig{VPA: "livestockmart@upi", PayeeName: "LivestockMart"})
	require.NotNil(t, upi)

	cfg := handler.RouterConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		Tokens:         ts.tokens,
		Auth:           handler.NewAuthHandler(ts.accounts, ts.tokens, nil),
		State:          handler.NewStateHandler(ts.accounts),
		Catalog:        handler.NewCatalogHandler(ts.catalog),
		Orders:         handler.NewOrderHandler(ts.orders, ts.feed),
		Payments:       handler.NewPaymentHandler(ts.orders, ts.card, upi),
	}
	for _, opt := range opts {
		opt(&cfg, ts)
	}
	ts.router = handler.NewRouter(cfg)
	return ts
}

type caller struct {
	identity auth.Identity
	token    string
}

func (ts *testServer) login(t *testing.T, role string) caller {
	t.Helper()
	id := auth.Identity{
		UserID: uuid.Must(uuid.NewV4()),
		Email:  role + "@livestockmart.com",
		Name:   "Test " + role,
		Role:   role,
	}
	token, err := ts.tokens.Issue(id)
	require.NoError(t, err)
	return caller{identity: id, token: token}
}

func (c caller) authorize(r *http.Request) {
	r.Header.Set("Authorization", "Bearer "+c.token)
}

func (c caller) actor() order.Actor {
	return order.Actor{UserID: c.identity.UserID, Name: c.identity.Name, Admin: c.identity.Role == auth.RoleAdmin}
}
