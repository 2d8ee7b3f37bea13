package catalog_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/livestockmart/internal/catalog"
	"github.com/vasiliy-maslov/livestockmart/internal/config"
	"github.com/vasiliy-maslov/livestockmart/internal/db"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func postgresRepository(t *testing.T) catalog.Repository {
	t.Helper()

	host := os.Getenv("DB_HOST_TEST")
	if host == "" {
		t.Skip("DB_HOST_TEST not set, skipping postgres repository test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := db.NewPostgres(ctx, config.PostgresConfig{
		Host:            host,
		Port:            envOr("DB_PORT_TEST", "5432"),
		User:            envOr("DB_USER_TEST", "postgres"),
		Password:        envOr("DB_PASSWORD_TEST", "postgres"),
		DBName:          envOr("DB_NAME_TEST", "livestockmart_test"),
		SSLMode:         envOr("DB_SSLMODE_TEST", "disable"),
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: time.Minute,
		MigrationsPath:  "../../migrations",
	})
	require.NoError(t, err)
	t.Cleanup(pg.Close)

	return catalog.NewRepository(pg.Pool)
}

// mongoRepository works in a throwaway database that is dropped afterwards.
func mongoRepository(t *testing.T) catalog.Repository {
	t.Helper()

	uri := os.Getenv("MONGO_URI_TEST")
	if uri == "" {
		t.Skip("MONGO_URI_TEST not set, skipping mongo repository test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbName := "livestockmart_test_" + uuid.Must(uuid.NewV4()).String()[:8]
	store, err := db.NewMongo(ctx, config.MongoConfig{URI: uri, Database: dbName})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Database.Drop(ctx)
		store.Close(ctx)
	})

	return catalog.NewMongoRepository(store.Database)
}

func testListing(name string, status catalog.Status) *catalog.Listing {
	return &catalog.Listing{
		Name:         name,
		Category:     catalog.CategoryGoat,
		Breed:        "Saanen",
		Age:          "1.5 years",
		Price:        22000,
		Image:        "🐐",
		Description:  "Pure breed Saanen goat",
		Weight:       "50 kg",
		HealthStatus: "Excellent",
		Tags:         []string{"Dairy", "High Yield"},
		Status:       status,
		Quantity:     4,
	}
}

func containsListing(listings []catalog.Listing, id uuid.UUID) bool {
	for _, l := range listings {
		if l.ID == id {
			return true
		}
	}
	return false
}

func runRepositoryContract(t *testing.T, repo catalog.Repository) {
	ctx := context.Background()

	available := testListing("Contract Available Goat", catalog.StatusAvailable)
	sold := testListing("Contract Sold Goat", catalog.StatusSold)
	require.NoError(t, repo.CreateListing(ctx, available))
	require.NoError(t, repo.CreateListing(ctx, sold))
	require.NotEqual(t, uuid.Nil, available.ID)
	t.Cleanup(func() {
		_ = repo.DeleteListing(context.Background(), available.ID)
		_ = repo.DeleteListing(context.Background(), sold.ID)
	})

	t.Run("get round trip", func(t *testing.T) {
		got, err := repo.GetListingByID(ctx, available.ID)
		require.NoError(t, err)
		if diff := cmp.Diff(available, got, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
			t.Errorf("listing mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("storefront filter", func(t *testing.T) {
		storefront, err := repo.ListListings(ctx, catalog.Filter{AvailableOnly: true})
		require.NoError(t, err)
		assert.True(t, containsListing(storefront, available.ID))
		assert.False(t, containsListing(storefront, sold.ID))

		all, err := repo.ListListings(ctx, catalog.Filter{})
		require.NoError(t, err)
		assert.True(t, containsListing(all, sold.ID))
	})

	t.Run("get by ids", func(t *testing.T) {
		got, err := repo.GetListingsByIDs(ctx, []uuid.UUID{available.ID, sold.ID, uuid.Must(uuid.NewV4())})
		require.NoError(t, err)
		assert.Len(t, got, 2)

		none, err := repo.GetListingsByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("update", func(t *testing.T) {
		available.Price = 19500
		available.Status = catalog.StatusReserved
		require.NoError(t, repo.UpdateListing(ctx, available))

		got, err := repo.GetListingByID(ctx, available.ID)
		require.NoError(t, err)
		assert.Equal(t, 19500.0, got.Price)
		assert.Equal(t, catalog.StatusReserved, got.Status)

		missing := testListing("Ghost", catalog.StatusAvailable)
		missing.ID = uuid.Must(uuid.NewV4())
		assert.ErrorIs(t, repo.UpdateListing(ctx, missing), catalog.ErrListingNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteListing(ctx, sold.ID))
		_, err := repo.GetListingByID(ctx, sold.ID)
		assert.ErrorIs(t, err, catalog.ErrListingNotFound)
		assert.ErrorIs(t, repo.DeleteListing(ctx, sold.ID), catalog.ErrListingNotFound)
	})
}

func TestPostgresRepository(t *testing.T) {
	runRepositoryContract(t, postgresRepository(t))
}

func TestMongoRepository(t *testing.T) {
	runRepositoryContract(t, mongoRepository(t))
}
