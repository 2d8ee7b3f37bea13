package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/vasiliy-maslov/livestockmart/internal/account"
	"github.com/vasiliy-maslov/livestockmart/internal/catalog"
	"github.com/vasiliy-maslov/livestockmart/internal/config"
	"github.com/vasiliy-maslov/livestockmart/internal/db"
	"github.com/vasiliy-maslov/livestockmart/internal/order"
)

// Repositories bundles the repositories of the configured storage driver.
type Repositories struct {
	Accounts account.Repository
	Catalog  catalog.Repository
	Orders   order.Repository

	ping  func(ctx context.Context) error
	close func()
}

// Open connects to the storage selected by STORAGE_DRIVER.
func Open(ctx context.Context, cfg *config.Config) (*Repositories, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		store, err := db.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return &Repositories{
			Accounts: account.NewRepository(store.Pool),
			Catalog:  catalog.NewRepository(store.Pool),
			Orders:   order.NewRepository(store.Pool),
			ping:     store.Pool.Ping,
			close:    store.Close,
		}, nil
	case config.StorageDriverMongo:
		store, err := db.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		return &Repositories{
			Accounts: account.NewMongoRepository(store.Database),
			Catalog:  catalog.NewMongoRepository(store.Database),
			Orders:   order.NewMongoRepository(store.Database),
			ping: func(ctx context.Context) error {
				return store.Client.Ping(ctx, nil)
			},
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				store.Close(ctx)
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

// Ping checks that the backing database answers.
func (r *Repositories) Ping(ctx context.Context) error {
	return r.ping(ctx)
}

func (r *Repositories) Close() {
	r.close()
}
