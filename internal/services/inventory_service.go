package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/orderflow/api/internal/repositories"
)

const (
	eventInventoryMissingRecord = "inventory.missing_record"
	eventInventoryStockSet      = "inventory.stock_set"

	defaultLowStockLimit = 50
	maxLowStockLimit     = 500
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory  repositories.InventoryRepository
	UnitOfWork repositories.UnitOfWork
	Events     EventPublisher
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo   repositories.InventoryRepository
	uow    repositories.UnitOfWork
	events EventPublisher
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	uow := deps.UnitOfWork
	if uow == nil {
		uow = noopUnitOfWork{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		repo:   deps.Inventory,
		uow:    uow,
		events: deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// GetStock returns the units available for new holds. A missing record reads as zero.
func (s *inventoryService) GetStock(ctx context.Context, productID string) (int, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return 0, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	levels, err := s.GetStockLevels(ctx, []string{productID})
	if err != nil {
		return 0, err
	}
	return levels[productID].Available, nil
}

// GetStockLevels returns one record per requested product, synthesising zero records for
// products without stock.
func (s *inventoryService) GetStockLevels(ctx context.Context, productIDs []string) (map[string]InventoryStock, error) {
	ids := uniqueSorted(productIDs)
	stocks, err := s.repo.GetStocks(ctx, ids)
	if err != nil {
		return nil, translateRepoError(err, "load stock")
	}
	out := make(map[string]InventoryStock, len(ids))
	for _, id := range ids {
		stock, ok := stocks[id]
		if !ok {
			s.logger(ctx, eventInventoryMissingRecord, map[string]any{"productId": id})
			stock = InventoryStock{ProductID: id}
		}
		stock.Recalculate()
		out[id] = stock
	}
	return out, nil
}

// Reserve places holds for every line or none. Each line needs Available >= quantity.
func (s *inventoryService) Reserve(ctx context.Context, lines []InventoryLine) error {
	return s.apply(ctx, lines, func(stock *InventoryStock, qty int) error {
		if stock.Available < qty {
			return &StockError{ProductID: stock.ProductID, Requested: qty, Available: stock.Available}
		}
		stock.Reserved += qty
		return nil
	})
}

// Release drops holds. The reserved counter never goes below zero.
func (s *inventoryService) Release(ctx context.Context, lines []InventoryLine) error {
	return s.apply(ctx, lines, func(stock *InventoryStock, qty int) error {
		stock.Reserved -= qty
		return nil
	})
}

// Commit sells units: they leave OnHand together with the matching holds. Each line needs
// OnHand >= quantity.
func (s *inventoryService) Commit(ctx context.Context, lines []InventoryLine) error {
	return s.apply(ctx, lines, func(stock *InventoryStock, qty int) error {
		if stock.OnHand < qty {
			return &StockError{ProductID: stock.ProductID, Requested: qty, Available: stock.OnHand}
		}
		stock.OnHand -= qty
		if stock.Reserved < qty {
			stock.Reserved = 0
		} else {
			stock.Reserved -= qty
		}
		return nil
	})
}

// Restock returns sold units to OnHand.
func (s *inventoryService) Restock(ctx context.Context, lines []InventoryLine) error {
	return s.apply(ctx, lines, func(stock *InventoryStock, qty int) error {
		stock.OnHand += qty
		return nil
	})
}

// apply reads every affected record, validates all lines through mutate, then writes.
func (s *inventoryService) apply(ctx context.Context, lines []InventoryLine, mutate func(*InventoryStock, int) error) error {
	normalised, err := normaliseInventoryLines(lines)
	if err != nil {
		return err
	}
	if len(normalised) == 0 {
		return nil
	}

	return s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		ids := make([]string, len(normalised))
		for i, line := range normalised {
			ids[i] = line.ProductID
		}
		levels, err := s.GetStockLevels(txCtx, ids)
		if err != nil {
			return err
		}

		now := s.clock()
		updated := make([]InventoryStock, 0, len(normalised))
		for _, line := range normalised {
			stock := levels[line.ProductID]
			if err := mutate(&stock, line.Quantity); err != nil {
				return err
			}
			stock.UpdatedAt = now
			stock.Recalculate()
			updated = append(updated, stock)
		}
		if err := s.repo.PutStocks(txCtx, updated); err != nil {
			return translateRepoError(err, "save stock")
		}
		return nil
	})
}

// SetStock overwrites OnHand for a product. Existing holds are kept.
func (s *inventoryService) SetStock(ctx context.Context, cmd SetStockCommand) (InventoryStock, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return InventoryStock{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if cmd.OnHand < 0 {
		return InventoryStock{}, fmt.Errorf("%w: stock must not be negative", ErrInvalidQuantity)
	}

	var (
		result   InventoryStock
		previous int
	)
	err := s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		levels, err := s.GetStockLevels(txCtx, []string{productID})
		if err != nil {
			return err
		}
		stock := levels[productID]
		previous = stock.OnHand
		stock.OnHand = cmd.OnHand
		stock.UpdatedAt = s.clock()
		stock.Recalculate()
		if err := s.repo.PutStocks(txCtx, []InventoryStock{stock}); err != nil {
			return translateRepoError(err, "save stock")
		}
		result = stock
		return nil
	})
	if err != nil {
		return InventoryStock{}, err
	}

	s.logger(ctx, eventInventoryStockSet, map[string]any{
		"productId": productID,
		"previous":  previous,
		"onHand":    result.OnHand,
	})
	publishEvent(ctx, s.events, s.logger, inventoryChangedEvent(s.clock(), "set", []InventoryStock{result}))
	return result, nil
}

// ListLowStock returns records whose available units are at or below the threshold.
func (s *inventoryService) ListLowStock(ctx context.Context, filter LowStockFilter) ([]InventoryStock, error) {
	if filter.Threshold < 0 {
		return nil, fmt.Errorf("%w: threshold must not be negative", ErrInvalidInput)
	}
	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = defaultLowStockLimit
	case limit > maxLowStockLimit:
		limit = maxLowStockLimit
	}
	stocks, err := s.repo.ListLowStock(ctx, filter.Threshold, limit)
	if err != nil {
		return nil, translateRepoError(err, "list low stock")
	}
	return stocks, nil
}

func normaliseInventoryLines(lines []InventoryLine) ([]InventoryLine, error) {
	aggregated := make(map[string]int, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: line product id is required", ErrInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrInvalidQuantity, productID)
		}
		aggregated[productID] += line.Quantity
	}

	result := make([]InventoryLine, 0, len(aggregated))
	for productID, qty := range aggregated {
		result = append(result, InventoryLine{ProductID: productID, Quantity: qty})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ProductID < result[j].ProductID })
	return result, nil
}

func uniqueSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}
