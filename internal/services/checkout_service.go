package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/repositories"
)

const (
	checkoutInstrumentation = "github.com/orderflow/api/internal/services/checkout"

	eventCheckoutCompleted = "checkout.completed"
	eventCheckoutRejected  = "checkout.rejected"
	eventCheckoutFailed    = "checkout.failed"

	maxAddressLength = 500
)

// CheckoutServiceDeps wires the collaborators used to place orders.
type CheckoutServiceDeps struct {
	Carts       repositories.CartRepository
	Catalog     repositories.CatalogRepository
	Orders      repositories.OrderRepository
	Inventory   InventoryService
	Pricing     PricingService
	UnitOfWork  repositories.UnitOfWork
	Events      EventPublisher
	Meter       metric.Meter
	Tracer      trace.Tracer
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type checkoutService struct {
	carts     repositories.CartRepository
	catalog   repositories.CatalogRepository
	orders    repositories.OrderRepository
	inventory InventoryService
	pricing   PricingService
	uow       repositories.UnitOfWork
	events    EventPublisher
	tracer    trace.Tracer
	outcomes  metric.Int64Counter
	amount    metric.Float64Histogram
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewCheckoutService constructs a CheckoutService.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	switch {
	case deps.Carts == nil:
		return nil, errors.New("checkout service: cart repository is required")
	case deps.Catalog == nil:
		return nil, errors.New("checkout service: catalog repository is required")
	case deps.Orders == nil:
		return nil, errors.New("checkout service: order repository is required")
	case deps.Inventory == nil:
		return nil, errors.New("checkout service: inventory service is required")
	case deps.Pricing == nil:
		return nil, errors.New("checkout service: pricing service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	uow := deps.UnitOfWork
	if uow == nil {
		uow = noopUnitOfWork{}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(checkoutInstrumentation)
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(checkoutInstrumentation)
	}

	outcomes, err := meter.Int64Counter(
		"checkout.orders",
		metric.WithDescription("Checkout attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("checkout service: create outcome counter: %w", err)
	}
	amount, err := meter.Float64Histogram(
		"checkout.order_total",
		metric.WithDescription("Total amount of placed orders"),
	)
	if err != nil {
		return nil, fmt.Errorf("checkout service: create total histogram: %w", err)
	}

	return &checkoutService{
		carts:     deps.Carts,
		catalog:   deps.Catalog,
		orders:    deps.Orders,
		inventory: deps.Inventory,
		pricing:   deps.Pricing,
		uow:       uow,
		events:    deps.Events,
		tracer:    tracer,
		outcomes:  outcomes,
		amount:    amount,
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// CreateOrder validates the whole cart, freezes prices, sells the stock and empties the cart in
// one transaction. On failure nothing is persisted.
func (s *checkoutService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.CreateOrder")
	defer span.End()

	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	span.SetAttributes(attribute.String("enduser.id", uid))

	var order Order
	err := s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		placed, err := s.placeOrder(txCtx, uid, cmd)
		if err != nil {
			return err
		}
		order = placed
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, span, uid, err)
		return Order{}, err
	}

	total, _ := order.Total.Float64()
	s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "placed")))
	s.amount.Record(ctx, total)
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.Int("order.lines", len(order.Lines)))
	s.logger(ctx, eventCheckoutCompleted, map[string]any{
		"orderId": order.ID,
		"userId":  uid,
		"total":   order.Total.StringFixed(domain.MoneyScale),
		"lines":   len(order.Lines),
	})

	now := s.now()
	publishEvent(ctx, s.events, s.logger, newDomainEvent(domain.EventOrderPlaced, order.ID, uid, now, map[string]any{
		"total":         order.Total.StringFixed(domain.MoneyScale),
		"paymentMethod": string(order.Payment.Method),
		"lines":         len(order.Lines),
	}))
	publishEvent(ctx, s.events, s.logger, inventoryLinesEvent(now, "checkout", orderInventoryLines(order)))
	return order, nil
}

func (s *checkoutService) placeOrder(ctx context.Context, userID string, cmd CreateOrderCommand) (Order, error) {
	cart, err := s.carts.LoadCart(ctx, userID)
	if err != nil {
		return Order{}, translateRepoError(err, "load cart")
	}
	if len(cart.Lines) == 0 {
		return Order{}, ErrEmptyCart
	}

	lines := cartInventoryLines(cart)
	productIDs := make([]string, len(lines))
	for i, line := range lines {
		productIDs[i] = line.ProductID
	}

	products, err := s.catalog.GetProducts(ctx, productIDs)
	if err != nil {
		return Order{}, translateRepoError(err, "load products")
	}
	for _, id := range productIDs {
		product, ok := products[id]
		if !ok || !product.Active {
			return Order{}, fmt.Errorf("%w: product %s is no longer available", ErrNotFound, id)
		}
	}

	// Validation pass over every product before anything is priced or written.
	levels, err := s.inventory.GetStockLevels(ctx, productIDs)
	if err != nil {
		return Order{}, err
	}
	for _, line := range lines {
		if onHand := levels[line.ProductID].OnHand; onHand < line.Quantity {
			return Order{}, &StockError{ProductID: line.ProductID, Requested: line.Quantity, Available: onHand}
		}
	}

	now := s.now()
	orderLines := make([]OrderLine, 0, len(cart.Lines))
	total := decimal.Zero
	for _, cartLine := range cart.Lines {
		product := products[cartLine.ProductID]
		quote, err := s.pricing.QuoteLine(ctx, product, cartLine.Personalization, cartLine.Quantity, now)
		if err != nil {
			return Order{}, err
		}
		orderLines = append(orderLines, OrderLine{
			ID:              s.newID(),
			ProductID:       product.ID,
			ProductName:     product.Name,
			Quantity:        cartLine.Quantity,
			UnitPriceBase:   quote.UnitPriceBase,
			UnitPriceFinal:  quote.UnitPriceFinal,
			DiscountPercent: quote.Quote.DiscountPercent,
			PromotionCode:   quote.Quote.PromotionCode,
			Subtotal:        quote.Subtotal,
			Discount:        quote.Discount,
			Personalization: cartLine.Personalization.Clone(),
		})
		total = total.Add(quote.Subtotal)
	}
	total = domain.RoundMoney(total)

	method, ok := domain.ParsePaymentMethod(cmd.PaymentMethod)
	if !ok {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, cmd.PaymentMethod)
	}
	address := strings.TrimSpace(cmd.ShippingAddress)
	if address == "" || len(address) > maxAddressLength {
		return Order{}, ErrInvalidAddress
	}

	if err := s.inventory.Commit(ctx, lines); err != nil {
		return Order{}, err
	}

	order := Order{
		ID:        s.newID(),
		UserID:    userID,
		Status:    domain.OrderStatusPending,
		Total:     total,
		Lines:     orderLines,
		CreatedAt: now,
		UpdatedAt: now,
		Payment: &Payment{
			ID:        s.newID(),
			Method:    method,
			Amount:    total,
			Status:    domain.PaymentStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Shipment: &Shipment{
			ID:        s.newID(),
			Address:   address,
			Status:    domain.ShipmentStatusInPreparation,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if err := s.orders.InsertOrder(ctx, order); err != nil {
		return Order{}, translateRepoError(err, "insert order")
	}

	cart.Lines = nil
	cart.UpdatedAt = now
	if err := s.carts.SaveCart(ctx, cart); err != nil {
		return Order{}, translateRepoError(err, "clear cart")
	}
	return order, nil
}

func (s *checkoutService) recordFailure(ctx context.Context, span trace.Span, userID string, err error) {
	fields := map[string]any{"userId": userID, "error": err.Error()}
	var stockErr *StockError
	if errors.As(err, &stockErr) {
		fields["productId"] = stockErr.ProductID
		fields["requested"] = stockErr.Requested
		fields["available"] = stockErr.Available
	}

	if isClientError(err) {
		s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "rejected")))
		s.logger(ctx, eventCheckoutRejected, fields)
		return
	}
	s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
	span.RecordError(err)
	span.SetStatus(codes.Error, "checkout failed")
	s.logger(ctx, eventCheckoutFailed, fields)
}

// cartInventoryLines sums cart quantities per product in product id order.
func cartInventoryLines(cart Cart) []InventoryLine {
	raw := make([]InventoryLine, len(cart.Lines))
	for i, line := range cart.Lines {
		raw[i] = InventoryLine{ProductID: line.ProductID, Quantity: line.Quantity}
	}
	return sumInventoryLines(raw)
}

func orderInventoryLines(order Order) []InventoryLine {
	raw := make([]InventoryLine, len(order.Lines))
	for i, line := range order.Lines {
		raw[i] = InventoryLine{ProductID: line.ProductID, Quantity: line.Quantity}
	}
	return sumInventoryLines(raw)
}

func sumInventoryLines(lines []InventoryLine) []InventoryLine {
	totals := make(map[string]int, len(lines))
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
		totals[line.ProductID] += line.Quantity
	}
	ids = uniqueSorted(ids)
	out := make([]InventoryLine, len(ids))
	for i, id := range ids {
		out[i] = InventoryLine{ProductID: id, Quantity: totals[id]}
	}
	return out
}
