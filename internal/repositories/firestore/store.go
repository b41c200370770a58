// Package firestore implements the repositories on Cloud Firestore. Every transactional read goes
// through the transaction carried on the context, which Firestore locks until commit.
package firestore

import (
	"context"
	"time"

	pfirestore "github.com/orderflow/api/internal/platform/firestore"
	"github.com/orderflow/api/internal/repositories"
)

// Store is the Firestore repository registry.
type Store struct {
	provider  *pfirestore.Provider
	catalog   *CatalogRepository
	inventory *InventoryRepository
	carts     *CartRepository
	orders    *OrderRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Store)(nil)

// NewStore builds the registry on top of provider. Extra probes are added to readiness reports.
func NewStore(provider *pfirestore.Provider, extraProbes ...repositories.DependencyProbe) (*Store, error) {
	probes := append([]repositories.DependencyProbe{{Name: "firestore", Ping: provider.Ping}}, extraProbes...)
	health, err := repositories.NewProbeHealthRepository(probes, repositories.WithProbeTimeout(3*time.Second))
	if err != nil {
		return nil, err
	}
	return &Store{
		provider:  provider,
		catalog:   NewCatalogRepository(provider),
		inventory: NewInventoryRepository(provider),
		carts:     NewCartRepository(provider),
		orders:    NewOrderRepository(provider),
		health:    health,
	}, nil
}

func (s *Store) Catalog() repositories.CatalogRepository     { return s.catalog }
func (s *Store) Inventory() repositories.InventoryRepository { return s.inventory }
func (s *Store) Carts() repositories.CartRepository          { return s.carts }
func (s *Store) Orders() repositories.OrderRepository        { return s.orders }
func (s *Store) Health() repositories.HealthRepository       { return s.health }

// RunInTx implements repositories.UnitOfWork.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.provider.RunInTx(ctx, fn)
}

// Close releases the Firestore client.
func (s *Store) Close(ctx context.Context) error {
	return s.provider.Close(ctx)
}
