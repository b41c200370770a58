// Package memory implements the repositories on process memory. Transactions are serialised
// and run against a copy of the dataset that replaces the live one on commit.
package memory

import (
	"context"
	"sync"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/repositories"
)

type dataset struct {
	products   map[string]domain.Product
	promotions map[string]domain.Promotion
	stocks     map[string]domain.InventoryStock
	carts      map[string]domain.Cart
	orders     map[string]domain.Order
}

func newDataset() *dataset {
	return &dataset{
		products:   make(map[string]domain.Product),
		promotions: make(map[string]domain.Promotion),
		stocks:     make(map[string]domain.InventoryStock),
		carts:      make(map[string]domain.Cart),
		orders:     make(map[string]domain.Order),
	}
}

func (d *dataset) clone() *dataset {
	out := newDataset()
	for id, p := range d.products {
		p.PromotionIDs = append([]string(nil), p.PromotionIDs...)
		out.products[id] = p
	}
	for id, p := range d.promotions {
		p.ProductIDs = append([]string(nil), p.ProductIDs...)
		out.promotions[id] = p
	}
	for id, s := range d.stocks {
		out.stocks[id] = s
	}
	for id, c := range d.carts {
		out.carts[id] = c.Clone()
	}
	for id, o := range d.orders {
		out.orders[id] = o.Clone()
	}
	return out
}

type txKey struct{ store *Store }

// Store is the in-memory repository registry.
type Store struct {
	mu   sync.Mutex
	data *dataset

	catalog   *catalogRepository
	inventory *inventoryRepository
	carts     *cartRepository
	orders    *orderRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Store)(nil)

// NewStore constructs an empty store.
func NewStore() *Store {
	s := &Store{data: newDataset()}
	s.catalog = &catalogRepository{store: s}
	s.inventory = &inventoryRepository{store: s}
	s.carts = &cartRepository{store: s}
	s.orders = &orderRepository{store: s}
	s.health, _ = repositories.NewProbeHealthRepository([]repositories.DependencyProbe{{
		Name: "memory",
		Ping: func(context.Context) error { return nil },
	}})
	return s
}

func (s *Store) Catalog() repositories.CatalogRepository     { return s.catalog }
func (s *Store) Inventory() repositories.InventoryRepository { return s.inventory }
func (s *Store) Carts() repositories.CartRepository          { return s.carts }
func (s *Store) Orders() repositories.OrderRepository        { return s.orders }
func (s *Store) Health() repositories.HealthRepository       { return s.health }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// RunInTx implements repositories.UnitOfWork.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Value(txKey{store: s}).(*dataset); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{store: s}, work)); err != nil {
		return err
	}
	s.data = work
	return nil
}

// view returns the dataset visible to ctx and a release func that must be called when done.
func (s *Store) view(ctx context.Context) (*dataset, func()) {
	if ctx != nil {
		if work, ok := ctx.Value(txKey{store: s}).(*dataset); ok {
			return work, func() {}
		}
	}
	s.mu.Lock()
	return s.data, s.mu.Unlock
}
