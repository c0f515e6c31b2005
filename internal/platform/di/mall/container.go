// internal/platform/di/mall/container.go
package mall

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storefront/internal/adapters/in/http/middleware"
	outdb "storefront/internal/adapters/out/db"
	dbcommon "storefront/internal/adapters/out/db/common"
	outfs "storefront/internal/adapters/out/firestore"
	"storefront/internal/adapters/out/memory"
	redisrepo "storefront/internal/adapters/out/redis"
	usecase "storefront/internal/application/usecase"
	cartdom "storefront/internal/domain/cart"
	appcfg "storefront/internal/infra/config"
	shared "storefront/internal/platform/di/shared"
)

// Container is the mall DI container.
//   - builds the cart repository and catalog for the configured store
//   - wires the cart usecase and the bearer-token verifier
type Container struct {
	Infra *shared.Infra
	Log   *zap.Logger

	CartRepo cartdom.Repository
	Catalog  cartdom.ProductCatalog
	CartUC   *usecase.CartUsecase

	// Verifier is nil when no token backend is available; the auth
	// middleware then answers bearer requests with 503.
	Verifier middleware.IDTokenVerifier
}

func NewContainer(ctx context.Context, infra *shared.Infra) (*Container, error) {
	if infra == nil || infra.Config == nil {
		return nil, errors.New("di.mall: infra is nil")
	}
	log := infra.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("di.mall")
	cfg := infra.Config

	c := &Container{Infra: infra, Log: log}

	// ------------------------------------------------------------
	// Repositories (by store)
	// ------------------------------------------------------------
	switch cfg.CartStore {
	case appcfg.StoreMemory:
		c.CartRepo = memory.NewCartRepositoryMem()
		if len(cfg.ProductStock) > 0 {
			c.Catalog = memory.NewProductCatalogMem(cfg.ProductStock)
		}

	case appcfg.StoreFirestore:
		if infra.Firestore == nil || infra.Firestore.Client == nil {
			return nil, errors.New("di.mall: firestore client is nil")
		}
		c.CartRepo = outfs.NewCartRepositoryFS(infra.Firestore.Client)
		c.Catalog = outfs.NewProductCatalogFS(infra.Firestore.Client)

	case appcfg.StorePostgres, appcfg.StoreSQLite:
		if infra.SQL == nil || infra.SQL.Client == nil {
			return nil, errors.New("di.mall: sql client is nil")
		}
		dialect := dbcommon.Dialect(infra.SQL.Driver)
		repo := outdb.NewCartRepositorySQL(infra.SQL.Client, dialect)
		if err := repo.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("di.mall: %w", err)
		}
		catalog := outdb.NewProductCatalogSQL(infra.SQL.Client, dialect)
		for pid, stock := range cfg.ProductStock {
			if err := catalog.PutStock(ctx, pid, stock); err != nil {
				return nil, fmt.Errorf("di.mall: seed stock %q: %w", pid, err)
			}
		}
		c.CartRepo = repo
		c.Catalog = catalog

	case appcfg.StoreRedis:
		if infra.Redis == nil {
			return nil, errors.New("di.mall: redis client is nil")
		}
		catalog := redisrepo.NewProductCatalogRedis(infra.Redis)
		for pid, stock := range cfg.ProductStock {
			if err := catalog.PutStock(ctx, pid, stock); err != nil {
				return nil, fmt.Errorf("di.mall: seed stock %q: %w", pid, err)
			}
		}
		c.CartRepo = redisrepo.NewCartRepositoryRedis(infra.Redis)
		c.Catalog = catalog

	default:
		return nil, fmt.Errorf("di.mall: unsupported cart store %q", cfg.CartStore)
	}

	if c.Catalog == nil {
		log.Warn("no product catalog; merges are not clamped to stock")
	}

	// ------------------------------------------------------------
	// Usecases
	// ------------------------------------------------------------
	c.CartUC = usecase.NewCartUsecase(c.CartRepo, c.Catalog, log)

	// ------------------------------------------------------------
	// Auth
	// ------------------------------------------------------------
	switch {
	case cfg.AuthDevTokens:
		c.Verifier = middleware.DevTokenVerifier{}
	case infra.FirebaseAuth != nil:
		c.Verifier = infra.FirebaseAuth
	}

	log.Info("mall container ready",
		zap.String("store", cfg.CartStore),
		zap.Bool("catalog", c.Catalog != nil),
		zap.Bool("verifier", c.Verifier != nil),
	)
	return c, nil
}

// Close releases infra owned by the container.
func (c *Container) Close() error {
	if c == nil || c.Infra == nil {
		return nil
	}
	return c.Infra.Close()
}
