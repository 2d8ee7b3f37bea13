package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/livestockmart/internal/config"
)

func newTestManager() *Manager {
	return NewManager(config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour})
}

func testIdentity(role string) Identity {
	return Identity{
		UserID: uuid.Must(uuid.NewV4()),
		Email:  "asha@example.com",
		Name:   "Asha",
		Role:   role,
	}
}

func TestManager_IssueAndParse(t *testing.T) {
	m := newTestManager()
	want := testIdentity("customer")

	token, err := m.Issue(want)
	require.NoError(t, err)

	got, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestManager_Parse_Rejects(t *testing.T) {
	m := newTestManager()
	id := testIdentity("customer")

	expired := newTestManager()
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, err := expired.Issue(id)
	require.NoError(t, err)

	other := NewManager(config.AuthConfig{JWTSecret: "other-secret", TokenTTL: time.Hour})
	foreignToken, err := other.Issue(id)
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: id.UserID.String()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	testCases := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "expired", token: expiredToken},
		{name: "wrong secret", token: foreignToken},
		{name: "unsigned", token: noneToken},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Parse(tc.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func newProtectedRouter(m *Manager) *chi.Mux {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(m.Authenticate)
		r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
			id, _ := FromContext(r.Context())
			w.Write([]byte(id.Email))
		})
		r.With(RequireAdmin).Get("/admin", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r
}

func TestAuthenticate(t *testing.T) {
	m := newTestManager()
	router := newProtectedRouter(m)

	customerToken, err := m.Issue(testIdentity("customer"))
	require.NoError(t, err)
	adminToken, err := m.Issue(testIdentity(RoleAdmin))
	require.NoError(t, err)

	testCases := []struct {
		name       string
		path       string
		setup      func(r *http.Request)
		wantStatus int
	}{
		{
			name:       "no credentials",
			path:       "/me",
			setup:      func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "cookie",
			path:       "/me",
			setup:      func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: customerToken}) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "bearer header",
			path:       "/me",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+customerToken) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "tampered token",
			path:       "/me",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+customerToken+"x") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "query token ignored outside websocket",
			path:       "/me?token=" + customerToken,
			setup:      func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "customer on admin route",
			path:       "/admin",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+customerToken) },
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "admin on admin route",
			path:       "/admin",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+adminToken) },
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			tc.setup(req)
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
		})
	}
}

func TestManager_Cookies(t *testing.T) {
	m := NewManager(config.AuthConfig{JWTSecret: "s", TokenTTL: 24 * time.Hour, CookieSecure: true})

	rr := httptest.NewRecorder()
	m.SetCookie(rr, "abc")
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "abc", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, 86400, cookies[0].MaxAge)

	rr = httptest.NewRecorder()
	m.ClearCookie(rr)
	cookies = rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}
