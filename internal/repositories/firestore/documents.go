package firestore

import (
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/orderflow/api/internal/domain"
)

// Amounts are stored as decimal strings so no float rounding creeps into prices.

type productDocument struct {
	Name             string    `firestore:"name"`
	BasePrice        string    `firestore:"basePrice"`
	Active           bool      `firestore:"active"`
	CategoryID       string    `firestore:"categoryId,omitempty"`
	PromotionIDs     []string  `firestore:"promotionIds"`
	CustomTextCost   string    `firestore:"customTextCost,omitempty"`
	CustomNumberCost string    `firestore:"customNumberCost,omitempty"`
	PatchCost        string    `firestore:"patchCost,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func newProductDocument(p domain.Product) productDocument {
	return productDocument{
		Name:             p.Name,
		BasePrice:        p.BasePrice.String(),
		Active:           p.Active,
		CategoryID:       p.CategoryID,
		PromotionIDs:     append([]string{}, p.PromotionIDs...),
		CustomTextCost:   optionalAmount(p.Personalization.CustomTextCost),
		CustomNumberCost: optionalAmount(p.Personalization.CustomNumberCost),
		PatchCost:        optionalAmount(p.Personalization.PatchCost),
		CreatedAt:        p.CreatedAt.UTC(),
		UpdatedAt:        p.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:           id,
		Name:         d.Name,
		BasePrice:    parseAmount(d.BasePrice),
		Active:       d.Active,
		CategoryID:   d.CategoryID,
		PromotionIDs: append([]string(nil), d.PromotionIDs...),
		Personalization: domain.PersonalizationPricing{
			CustomTextCost:   parseAmount(d.CustomTextCost),
			CustomNumberCost: parseAmount(d.CustomNumberCost),
			PatchCost:        parseAmount(d.PatchCost),
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type promotionDocument struct {
	Code            string    `firestore:"code"`
	Description     string    `firestore:"description,omitempty"`
	DiscountPercent string    `firestore:"discountPercent"`
	Active          bool      `firestore:"active"`
	StartsAt        time.Time `firestore:"startsAt"`
	EndsAt          time.Time `firestore:"endsAt"`
	ProductIDs      []string  `firestore:"productIds"`
}

func newPromotionDocument(p domain.Promotion) promotionDocument {
	return promotionDocument{
		Code:            p.Code,
		Description:     p.Description,
		DiscountPercent: p.DiscountPercent.String(),
		Active:          p.Active,
		StartsAt:        p.StartsAt.UTC(),
		EndsAt:          p.EndsAt.UTC(),
		ProductIDs:      append([]string{}, p.ProductIDs...),
	}
}

func (d promotionDocument) toDomain(id string) domain.Promotion {
	return domain.Promotion{
		ID:              id,
		Code:            d.Code,
		Description:     d.Description,
		DiscountPercent: parseAmount(d.DiscountPercent),
		Active:          d.Active,
		StartsAt:        d.StartsAt,
		EndsAt:          d.EndsAt,
		ProductIDs:      append([]string(nil), d.ProductIDs...),
	}
}

type stockDocument struct {
	ProductID string    `firestore:"productId"`
	OnHand    int       `firestore:"onHand"`
	Reserved  int       `firestore:"reserved"`
	Available int       `firestore:"available"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newStockDocument(s domain.InventoryStock) stockDocument {
	s.Recalculate()
	return stockDocument{
		ProductID: s.ProductID,
		OnHand:    s.OnHand,
		Reserved:  s.Reserved,
		Available: s.Available,
		UpdatedAt: s.UpdatedAt.UTC(),
	}
}

func (d stockDocument) toDomain(id string) domain.InventoryStock {
	stock := domain.InventoryStock{ProductID: id, OnHand: d.OnHand, Reserved: d.Reserved, UpdatedAt: d.UpdatedAt}
	stock.Recalculate()
	return stock
}

type personalizationDocument struct {
	CustomText   string `firestore:"customText,omitempty"`
	CustomNumber *int   `firestore:"customNumber,omitempty"`
	PatchID      string `firestore:"patchId,omitempty"`
}

func newPersonalizationDocument(p domain.Personalization) personalizationDocument {
	c := p.Clone()
	return personalizationDocument{CustomText: c.CustomText, CustomNumber: c.CustomNumber, PatchID: c.PatchID}
}

func (d personalizationDocument) toDomain() domain.Personalization {
	return domain.Personalization{CustomText: d.CustomText, CustomNumber: d.CustomNumber, PatchID: d.PatchID}.Clone()
}

type cartDocument struct {
	UserID    string             `firestore:"userId"`
	Lines     []cartLineDocument `firestore:"lines"`
	LineIDs   []string           `firestore:"lineIds"`
	HasLines  bool               `firestore:"hasLines"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartLineDocument struct {
	ID              string                  `firestore:"id"`
	ProductID       string                  `firestore:"productId"`
	Quantity        int                     `firestore:"quantity"`
	Personalization personalizationDocument `firestore:"personalization"`
	AddedAt         time.Time               `firestore:"addedAt"`
	UpdatedAt       time.Time               `firestore:"updatedAt"`
}

func newCartDocument(c domain.Cart) cartDocument {
	doc := cartDocument{
		UserID:    c.UserID,
		Lines:     make([]cartLineDocument, 0, len(c.Lines)),
		LineIDs:   make([]string, 0, len(c.Lines)),
		HasLines:  len(c.Lines) > 0,
		CreatedAt: c.CreatedAt.UTC(),
		UpdatedAt: c.UpdatedAt.UTC(),
	}
	for _, line := range c.Lines {
		doc.LineIDs = append(doc.LineIDs, line.ID)
		doc.Lines = append(doc.Lines, cartLineDocument{
			ID:              line.ID,
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			Personalization: newPersonalizationDocument(line.Personalization),
			AddedAt:         line.AddedAt.UTC(),
			UpdatedAt:       line.UpdatedAt.UTC(),
		})
	}
	return doc
}

func (d cartDocument) toDomain(userID string) domain.Cart {
	cart := domain.Cart{
		UserID:    userID,
		Lines:     make([]domain.CartLine, 0, len(d.Lines)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, line := range d.Lines {
		cart.Lines = append(cart.Lines, domain.CartLine{
			ID:              line.ID,
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			Personalization: line.Personalization.toDomain(),
			AddedAt:         line.AddedAt,
			UpdatedAt:       line.UpdatedAt,
		})
	}
	return cart
}

type orderDocument struct {
	UserID       string              `firestore:"userId"`
	Status       string              `firestore:"status"`
	Total        string              `firestore:"total"`
	Lines        []orderLineDocument `firestore:"lines"`
	Payment      *paymentDocument    `firestore:"payment"`
	Shipment     *shipmentDocument   `firestore:"shipment"`
	CreatedAt    time.Time           `firestore:"createdAt"`
	UpdatedAt    time.Time           `firestore:"updatedAt"`
	PaidAt       *time.Time          `firestore:"paidAt,omitempty"`
	ShippedAt    *time.Time          `firestore:"shippedAt,omitempty"`
	DeliveredAt  *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt  *time.Time          `firestore:"cancelledAt,omitempty"`
	CancelReason string              `firestore:"cancelReason,omitempty"`
}

type orderLineDocument struct {
	ID              string                  `firestore:"id"`
	ProductID       string                  `firestore:"productId"`
	ProductName     string                  `firestore:"productName"`
	Quantity        int                     `firestore:"quantity"`
	UnitPriceBase   string                  `firestore:"unitPriceBase"`
	UnitPriceFinal  string                  `firestore:"unitPriceFinal"`
	DiscountPercent string                  `firestore:"discountPercent,omitempty"`
	PromotionCode   string                  `firestore:"promotionCode,omitempty"`
	Subtotal        string                  `firestore:"subtotal"`
	Discount        string                  `firestore:"discount"`
	Personalization personalizationDocument `firestore:"personalization"`
}

type paymentDocument struct {
	ID          string     `firestore:"id"`
	Method      string     `firestore:"method"`
	Amount      string     `firestore:"amount"`
	Status      string     `firestore:"status"`
	Reference   string     `firestore:"reference,omitempty"`
	CompletedAt *time.Time `firestore:"completedAt,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

type shipmentDocument struct {
	ID           string     `firestore:"id"`
	Address      string     `firestore:"address"`
	TrackingCode string     `firestore:"trackingCode,omitempty"`
	Status       string     `firestore:"status"`
	ShipDate     *time.Time `firestore:"shipDate,omitempty"`
	DeliveredAt  *time.Time `firestore:"deliveredAt,omitempty"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	UpdatedAt    time.Time  `firestore:"updatedAt"`
}

func newOrderDocument(o domain.Order) orderDocument {
	o = o.Clone()
	doc := orderDocument{
		UserID:       o.UserID,
		Status:       string(o.Status),
		Total:        o.Total.String(),
		Lines:        make([]orderLineDocument, 0, len(o.Lines)),
		CreatedAt:    o.CreatedAt.UTC(),
		UpdatedAt:    o.UpdatedAt.UTC(),
		PaidAt:       o.PaidAt,
		ShippedAt:    o.ShippedAt,
		DeliveredAt:  o.DeliveredAt,
		CancelledAt:  o.CancelledAt,
		CancelReason: o.CancelReason,
	}
	for _, line := range o.Lines {
		doc.Lines = append(doc.Lines, orderLineDocument{
			ID:              line.ID,
			ProductID:       line.ProductID,
			ProductName:     line.ProductName,
			Quantity:        line.Quantity,
			UnitPriceBase:   line.UnitPriceBase.String(),
			UnitPriceFinal:  line.UnitPriceFinal.String(),
			DiscountPercent: optionalAmount(line.DiscountPercent),
			PromotionCode:   line.PromotionCode,
			Subtotal:        line.Subtotal.String(),
			Discount:        line.Discount.String(),
			Personalization: newPersonalizationDocument(line.Personalization),
		})
	}
	if p := o.Payment; p != nil {
		doc.Payment = &paymentDocument{
			ID:          p.ID,
			Method:      string(p.Method),
			Amount:      p.Amount.String(),
			Status:      string(p.Status),
			Reference:   p.Reference,
			CompletedAt: p.CompletedAt,
			CreatedAt:   p.CreatedAt.UTC(),
			UpdatedAt:   p.UpdatedAt.UTC(),
		}
	}
	if s := o.Shipment; s != nil {
		doc.Shipment = &shipmentDocument{
			ID:           s.ID,
			Address:      s.Address,
			TrackingCode: s.TrackingCode,
			Status:       string(s.Status),
			ShipDate:     s.ShipDate,
			DeliveredAt:  s.DeliveredAt,
			CreatedAt:    s.CreatedAt.UTC(),
			UpdatedAt:    s.UpdatedAt.UTC(),
		}
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:           id,
		UserID:       d.UserID,
		Status:       domain.OrderStatus(d.Status),
		Total:        parseAmount(d.Total),
		Lines:        make([]domain.OrderLine, 0, len(d.Lines)),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		PaidAt:       d.PaidAt,
		ShippedAt:    d.ShippedAt,
		DeliveredAt:  d.DeliveredAt,
		CancelledAt:  d.CancelledAt,
		CancelReason: d.CancelReason,
	}
	for _, line := range d.Lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			ID:              line.ID,
			ProductID:       line.ProductID,
			ProductName:     line.ProductName,
			Quantity:        line.Quantity,
			UnitPriceBase:   parseAmount(line.UnitPriceBase),
			UnitPriceFinal:  parseAmount(line.UnitPriceFinal),
			DiscountPercent: parseAmount(line.DiscountPercent),
			PromotionCode:   line.PromotionCode,
			Subtotal:        parseAmount(line.Subtotal),
			Discount:        parseAmount(line.Discount),
			Personalization: line.Personalization.toDomain(),
		})
	}
	if p := d.Payment; p != nil {
		order.Payment = &domain.Payment{
			ID:          p.ID,
			Method:      domain.PaymentMethod(p.Method),
			Amount:      parseAmount(p.Amount),
			Status:      domain.PaymentStatus(p.Status),
			Reference:   p.Reference,
			CompletedAt: p.CompletedAt,
			CreatedAt:   p.CreatedAt,
			UpdatedAt:   p.UpdatedAt,
		}
	}
	if s := d.Shipment; s != nil {
		order.Shipment = &domain.Shipment{
			ID:           s.ID,
			Address:      s.Address,
			TrackingCode: s.TrackingCode,
			Status:       domain.ShipmentStatus(s.Status),
			ShipDate:     s.ShipDate,
			DeliveredAt:  s.DeliveredAt,
			CreatedAt:    s.CreatedAt,
			UpdatedAt:    s.UpdatedAt,
		}
	}
	return order.Clone()
}

func optionalAmount(v decimal.Decimal) string {
	if v.IsZero() {
		return ""
	}
	return v.String()
}

func parseAmount(raw string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return v
}
