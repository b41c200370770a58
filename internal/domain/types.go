package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog entry a cart line points at.
type Product struct {
	ID              string
	Name            string
	BasePrice       decimal.Decimal
	Active          bool
	CategoryID      string
	PromotionIDs    []string
	Personalization PersonalizationPricing
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PersonalizationPricing lists the surcharge for each optional personalization on a product.
type PersonalizationPricing struct {
	CustomTextCost   decimal.Decimal
	CustomNumberCost decimal.Decimal
	PatchCost        decimal.Decimal
}

// Promotion is a percentage discount applicable to a set of products during a validity window.
type Promotion struct {
	ID              string
	Code            string
	Description     string
	DiscountPercent decimal.Decimal
	Active          bool
	StartsAt        time.Time
	EndsAt          time.Time
	ProductIDs      []string
}

// ActiveAt reports whether the promotion is enabled and now falls inside [StartsAt, EndsAt).
func (p Promotion) ActiveAt(now time.Time) bool {
	if !p.Active {
		return false
	}
	if now.Before(p.StartsAt) {
		return false
	}
	return now.Before(p.EndsAt)
}

// InventoryStock tracks the physical and held units of a product.
type InventoryStock struct {
	ProductID string
	OnHand    int
	Reserved  int
	Available int
	UpdatedAt time.Time
}

// Recalculate refreshes Available from OnHand and Reserved.
func (s *InventoryStock) Recalculate() {
	if s.OnHand < 0 {
		s.OnHand = 0
	}
	if s.Reserved < 0 {
		s.Reserved = 0
	}
	s.Available = s.OnHand - s.Reserved
	if s.Available < 0 {
		s.Available = 0
	}
}

// Personalization captures the optional customisations requested for a cart line.
type Personalization struct {
	CustomText   string
	CustomNumber *int
	PatchID      string
}

// IsZero reports whether no personalization was requested.
func (p Personalization) IsZero() bool {
	return p.CustomText == "" && p.CustomNumber == nil && p.PatchID == ""
}

// Equal reports whether two personalizations describe the same customisation.
func (p Personalization) Equal(other Personalization) bool {
	if p.CustomText != other.CustomText || p.PatchID != other.PatchID {
		return false
	}
	switch {
	case p.CustomNumber == nil && other.CustomNumber == nil:
		return true
	case p.CustomNumber == nil || other.CustomNumber == nil:
		return false
	default:
		return *p.CustomNumber == *other.CustomNumber
	}
}

// ExtraCost sums the surcharges of the options in use.
func (p Personalization) ExtraCost(pricing PersonalizationPricing) decimal.Decimal {
	total := decimal.Zero
	if p.CustomText != "" {
		total = total.Add(pricing.CustomTextCost)
	}
	if p.CustomNumber != nil {
		total = total.Add(pricing.CustomNumberCost)
	}
	if p.PatchID != "" {
		total = total.Add(pricing.PatchCost)
	}
	return RoundMoney(total)
}

// Clone returns a deep copy.
func (p Personalization) Clone() Personalization {
	out := p
	if p.CustomNumber != nil {
		n := *p.CustomNumber
		out.CustomNumber = &n
	}
	return out
}

// Cart is the single active cart owned by a user.
type Cart struct {
	UserID    string
	Lines     []CartLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FindLine returns the index of the line with the given id, or -1.
func (c Cart) FindLine(lineID string) int {
	for i, line := range c.Lines {
		if line.ID == lineID {
			return i
		}
	}
	return -1
}

// CartLine is one product entry inside a cart.
type CartLine struct {
	ID              string
	ProductID       string
	Quantity        int
	Personalization Personalization
	AddedAt         time.Time
	UpdatedAt       time.Time
}

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed and awaits payment.
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusPaid indicates payment completed.
	OrderStatusPaid OrderStatus = "PAID"
	// OrderStatusShipped indicates the parcel left the warehouse.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered indicates the parcel reached the customer.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled indicates the order was cancelled and its stock returned.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// PaymentStatus enumerates payment states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// PaymentMethod enumerates accepted payment methods.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodCard     PaymentMethod = "CARD"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
	PaymentMethodPayPal   PaymentMethod = "PAYPAL"
)

// ShipmentStatus enumerates shipment states.
type ShipmentStatus string

const (
	ShipmentStatusInPreparation ShipmentStatus = "IN_PREPARATION"
	ShipmentStatusInTransit     ShipmentStatus = "IN_TRANSIT"
	ShipmentStatusDelivered     ShipmentStatus = "DELIVERED"
)

// Order is the persisted result of a checkout. Lines are frozen at creation.
type Order struct {
	ID           string
	UserID       string
	Status       OrderStatus
	Total        decimal.Decimal
	Lines        []OrderLine
	Payment      *Payment
	Shipment     *Shipment
	CreatedAt    time.Time
	UpdatedAt    time.Time
	PaidAt       *time.Time
	ShippedAt    *time.Time
	DeliveredAt  *time.Time
	CancelledAt  *time.Time
	CancelReason string
}

// Terminal reports whether the order can no longer change status.
func (o Order) Terminal() bool {
	return o.Status == OrderStatusDelivered || o.Status == OrderStatusCancelled
}

// OrderLine is the price snapshot of a cart line taken at checkout.
type OrderLine struct {
	ID              string
	ProductID       string
	ProductName     string
	Quantity        int
	UnitPriceBase   decimal.Decimal
	UnitPriceFinal  decimal.Decimal
	DiscountPercent decimal.Decimal
	PromotionCode   string
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	Personalization Personalization
}

// Payment is the single payment record of an order.
type Payment struct {
	ID          string
	Method      PaymentMethod
	Amount      decimal.Decimal
	Status      PaymentStatus
	Reference   string
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Shipment is the single shipment record of an order.
type Shipment struct {
	ID           string
	Address      string
	TrackingCode string
	Status       ShipmentStatus
	ShipDate     *time.Time
	DeliveredAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Clone returns a deep copy of the cart.
func (c Cart) Clone() Cart {
	out := c
	out.Lines = make([]CartLine, len(c.Lines))
	for i, line := range c.Lines {
		out.Lines[i] = line
		out.Lines[i].Personalization = line.Personalization.Clone()
	}
	return out
}

// Clone returns a deep copy of the order including payment and shipment.
func (o Order) Clone() Order {
	out := o
	out.Lines = make([]OrderLine, len(o.Lines))
	for i, line := range o.Lines {
		out.Lines[i] = line
		out.Lines[i].Personalization = line.Personalization.Clone()
	}
	if o.Payment != nil {
		p := *o.Payment
		p.CompletedAt = cloneTime(o.Payment.CompletedAt)
		out.Payment = &p
	}
	if o.Shipment != nil {
		s := *o.Shipment
		s.ShipDate = cloneTime(o.Shipment.ShipDate)
		s.DeliveredAt = cloneTime(o.Shipment.DeliveredAt)
		out.Shipment = &s
	}
	out.PaidAt = cloneTime(o.PaidAt)
	out.ShippedAt = cloneTime(o.ShippedAt)
	out.DeliveredAt = cloneTime(o.DeliveredAt)
	out.CancelledAt = cloneTime(o.CancelledAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
