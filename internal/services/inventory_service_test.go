package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/repositories"
)

type stubInventoryRepo struct {
	getFn  func(ctx context.Context, ids []string) (map[string]domain.InventoryStock, error)
	putFn  func(ctx context.Context, stocks []domain.InventoryStock) error
	listFn func(ctx context.Context, threshold, limit int) ([]domain.InventoryStock, error)
}

func (s *stubInventoryRepo) GetStocks(ctx context.Context, ids []string) (map[string]domain.InventoryStock, error) {
	if s.getFn != nil {
		return s.getFn(ctx, ids)
	}
	return map[string]domain.InventoryStock{}, nil
}

func (s *stubInventoryRepo) PutStocks(ctx context.Context, stocks []domain.InventoryStock) error {
	if s.putFn != nil {
		return s.putFn(ctx, stocks)
	}
	return nil
}

func (s *stubInventoryRepo) ListLowStock(ctx context.Context, threshold, limit int) ([]domain.InventoryStock, error) {
	if s.listFn != nil {
		return s.listFn(ctx, threshold, limit)
	}
	return nil, nil
}

func TestInventoryReserveAggregatesLinesAndLocksInOrder(t *testing.T) {
	var requested []string
	var written []domain.InventoryStock
	repo := &stubInventoryRepo{
		getFn: func(_ context.Context, ids []string) (map[string]domain.InventoryStock, error) {
			requested = ids
			return map[string]domain.InventoryStock{
				"b": {ProductID: "b", OnHand: 10},
				"a": {ProductID: "a", OnHand: 4, Reserved: 1},
			}, nil
		},
		putFn: func(_ context.Context, stocks []domain.InventoryStock) error {
			written = stocks
			return nil
		},
	}
	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: repo})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}

	err = svc.Reserve(context.Background(), []InventoryLine{{ProductID: "b", Quantity: 2}, {ProductID: "a", Quantity: 1}, {ProductID: "b", Quantity: 3}})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(requested) != 2 || requested[0] != "a" || requested[1] != "b" {
		t.Fatalf("expected sorted ids, got %v", requested)
	}
	if len(written) != 2 || written[1].Reserved != 5 || written[1].Available != 5 {
		t.Fatalf("unexpected writes %+v", written)
	}
	if written[0].Reserved != 2 || written[0].Available != 2 {
		t.Fatalf("unexpected write for a: %+v", written[0])
	}
}

func TestInventoryReserveAllOrNothing(t *testing.T) {
	wrote := false
	repo := &stubInventoryRepo{
		getFn: func(context.Context, []string) (map[string]domain.InventoryStock, error) {
			return map[string]domain.InventoryStock{
				"a": {ProductID: "a", OnHand: 5},
				"b": {ProductID: "b", OnHand: 1},
			}, nil
		},
		putFn: func(context.Context, []domain.InventoryStock) error {
			wrote = true
			return nil
		},
	}
	svc, _ := NewInventoryService(InventoryServiceDeps{Inventory: repo})

	err := svc.Reserve(context.Background(), []InventoryLine{{ProductID: "a", Quantity: 2}, {ProductID: "b", Quantity: 2}})
	var stockErr *StockError
	if !errors.As(err, &stockErr) || !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected stock error, got %v", err)
	}
	if stockErr.ProductID != "b" || stockErr.Available != 1 || stockErr.Requested != 2 {
		t.Fatalf("unexpected stock error %+v", stockErr)
	}
	if wrote {
		t.Fatal("expected no writes on failure")
	}
}

func TestInventoryRejectsInvalidLines(t *testing.T) {
	svc, _ := NewInventoryService(InventoryServiceDeps{Inventory: &stubInventoryRepo{}})
	if err := svc.Reserve(context.Background(), []InventoryLine{{ProductID: "a", Quantity: 0}}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if err := svc.Commit(context.Background(), []InventoryLine{{ProductID: " ", Quantity: 1}}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestInventoryMissingRecordReadsAsZero(t *testing.T) {
	logs := &captureLog{}
	svc, _ := NewInventoryService(InventoryServiceDeps{Inventory: &stubInventoryRepo{}, Logger: logs.log})

	stock, err := svc.GetStock(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("GetStock: %v", err)
	}
	if stock != 0 {
		t.Fatalf("expected 0, got %d", stock)
	}
	if !logs.has(eventInventoryMissingRecord) {
		t.Fatal("expected integrity warning")
	}
}

func TestInventoryLedgerLifecycle(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p-1", "10.00", 5)
	ctx := context.Background()
	lines := []InventoryLine{{ProductID: "p-1", Quantity: 3}}

	if err := f.inventory.Reserve(ctx, lines); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got := f.stock(t, "p-1"); got.OnHand != 5 || got.Reserved != 3 || got.Available != 2 {
		t.Fatalf("after reserve: %+v", got)
	}
	if err := f.inventory.Reserve(ctx, lines); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if err := f.inventory.Commit(ctx, lines); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := f.stock(t, "p-1"); got.OnHand != 2 || got.Reserved != 0 || got.Available != 2 {
		t.Fatalf("after commit: %+v", got)
	}
	if err := f.inventory.Release(ctx, []InventoryLine{{ProductID: "p-1", Quantity: 4}}); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := f.stock(t, "p-1"); got.Reserved != 0 {
		t.Fatalf("reserved must not go negative: %+v", got)
	}
	if err := f.inventory.Restock(ctx, lines); err != nil {
		t.Fatalf("Restock: %v", err)
	}
	if got, _ := f.inventory.GetStock(ctx, "p-1"); got != 5 {
		t.Fatalf("after restock: %d", got)
	}
}

func TestInventorySetStockAndLowStock(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p-1", "10.00", 5)
	f.addProduct(t, "p-2", "10.00", 50)
	ctx := context.Background()

	if _, err := f.inventory.SetStock(ctx, SetStockCommand{ProductID: "p-1", OnHand: -1}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	stock, err := f.inventory.SetStock(ctx, SetStockCommand{ProductID: "p-1", OnHand: 2})
	if err != nil {
		t.Fatalf("SetStock: %v", err)
	}
	if stock.OnHand != 2 || stock.Available != 2 {
		t.Fatalf("unexpected stock %+v", stock)
	}
	if types := f.events.types(); len(types) != 1 || types[0] != domain.EventInventoryChanged {
		t.Fatalf("expected inventory event, got %v", types)
	}

	low, err := f.inventory.ListLowStock(ctx, LowStockFilter{Threshold: 3})
	if err != nil {
		t.Fatalf("ListLowStock: %v", err)
	}
	if len(low) != 1 || low[0].ProductID != "p-1" {
		t.Fatalf("unexpected low stock %+v", low)
	}
}

func TestInventoryTranslatesRepositoryErrors(t *testing.T) {
	repo := &stubInventoryRepo{
		getFn: func(context.Context, []string) (map[string]domain.InventoryStock, error) {
			return nil, repositories.NewStoreError("inventory.get", repositories.StoreErrorUnavailable, "down", nil)
		},
	}
	svc, _ := NewInventoryService(InventoryServiceDeps{Inventory: repo})
	if _, err := svc.GetStock(context.Background(), "p-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
