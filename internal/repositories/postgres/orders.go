package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/repositories"
)

const orderColumns = `id, user_id, status, total::text, created_at, updated_at, paid_at, shipped_at, delivered_at, cancelled_at, cancel_reason`

// OrderRepository stores orders across the orders, order_lines, payments and shipments tables.
type OrderRepository struct {
	db db
}

func (r *OrderRepository) InsertOrder(ctx context.Context, order domain.Order) error {
	return r.db.atomic(ctx, "orders.insert", func(q querier) error {
		batch := &pgx.Batch{}
		batch.Queue(`
			INSERT INTO orders (id, user_id, status, total, created_at, updated_at, paid_at, shipped_at, delivered_at, cancelled_at, cancel_reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			order.ID, order.UserID, string(order.Status), moneyText(order.Total), order.CreatedAt.UTC(), order.UpdatedAt.UTC(),
			utcPtr(order.PaidAt), utcPtr(order.ShippedAt), utcPtr(order.DeliveredAt), utcPtr(order.CancelledAt), order.CancelReason)
		for i, line := range order.Lines {
			batch.Queue(`
				INSERT INTO order_lines (id, order_id, position, product_id, product_name, quantity, unit_price_base, unit_price_final,
					discount_percent, promotion_code, subtotal, discount, custom_text, custom_number, patch_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
				line.ID, order.ID, i, line.ProductID, line.ProductName, line.Quantity, moneyText(line.UnitPriceBase),
				moneyText(line.UnitPriceFinal), line.DiscountPercent.String(), line.PromotionCode, moneyText(line.Subtotal),
				moneyText(line.Discount), line.Personalization.CustomText, line.Personalization.CustomNumber, line.Personalization.PatchID)
		}
		queueChildren(batch, order)
		return execBatch(ctx, q, "orders.insert", batch)
	})
}

// GetOrder locks the order row FOR UPDATE when called inside a transaction.
func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if inTx(ctx) {
		sql += ` FOR UPDATE`
	}
	q := r.db.conn(ctx)
	order, err := scanOrder(q.QueryRow(ctx, sql, orderID))
	if errorsIsNoRows(err) {
		return domain.Order{}, repositories.NotFound("orders.get", "order "+orderID+" not found")
	}
	if err != nil {
		return domain.Order{}, wrapError("orders.get", err)
	}
	orders := []domain.Order{order}
	if err := loadChildren(ctx, q, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

// UpdateOrder persists status fields, payment and shipment. Lines are frozen at insert.
func (r *OrderRepository) UpdateOrder(ctx context.Context, order domain.Order) error {
	return r.db.atomic(ctx, "orders.update", func(q querier) error {
		tag, err := q.Exec(ctx, `
			UPDATE orders SET status = $2, total = $3, updated_at = $4, paid_at = $5, shipped_at = $6,
				delivered_at = $7, cancelled_at = $8, cancel_reason = $9
			WHERE id = $1`,
			order.ID, string(order.Status), moneyText(order.Total), order.UpdatedAt.UTC(), utcPtr(order.PaidAt),
			utcPtr(order.ShippedAt), utcPtr(order.DeliveredAt), utcPtr(order.CancelledAt), order.CancelReason)
		if err != nil {
			return wrapError("orders.update", err)
		}
		if tag.RowsAffected() == 0 {
			return repositories.NotFound("orders.update", "order "+order.ID+" not found")
		}
		batch := &pgx.Batch{}
		queueChildren(batch, order)
		return execBatch(ctx, q, "orders.update", batch)
	})
}

// ListOrders filters by the optional user, status and cutoff and returns newest first.
func (r *OrderRepository) ListOrders(ctx context.Context, query repositories.OrderListQuery) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if query.UserID != "" {
		add("user_id = $%d", query.UserID)
	}
	if query.Status != "" {
		add("status = $%d", string(query.Status))
	}
	if query.CreatedBefore != nil {
		add("created_at < $%d", query.CreatedBefore.UTC())
	}

	sql := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY created_at DESC, id DESC`
	if query.Limit > 0 {
		args = append(args, query.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	q := r.db.conn(ctx)
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapError("orders.list", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, wrapError("orders.list", err)
	}
	if err := loadChildren(ctx, q, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func queueChildren(batch *pgx.Batch, order domain.Order) {
	if p := order.Payment; p != nil {
		batch.Queue(`
			INSERT INTO payments (id, order_id, method, amount, status, reference, completed_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (order_id) DO UPDATE SET
				method = EXCLUDED.method,
				amount = EXCLUDED.amount,
				status = EXCLUDED.status,
				reference = EXCLUDED.reference,
				completed_at = EXCLUDED.completed_at,
				updated_at = EXCLUDED.updated_at`,
			p.ID, order.ID, string(p.Method), moneyText(p.Amount), string(p.Status), p.Reference,
			utcPtr(p.CompletedAt), p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	}
	if s := order.Shipment; s != nil {
		batch.Queue(`
			INSERT INTO shipments (id, order_id, address, tracking_code, status, ship_date, delivered_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (order_id) DO UPDATE SET
				address = EXCLUDED.address,
				tracking_code = EXCLUDED.tracking_code,
				status = EXCLUDED.status,
				ship_date = EXCLUDED.ship_date,
				delivered_at = EXCLUDED.delivered_at,
				updated_at = EXCLUDED.updated_at`,
			s.ID, order.ID, s.Address, s.TrackingCode, string(s.Status), utcPtr(s.ShipDate), utcPtr(s.DeliveredAt),
			s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	}
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		order  domain.Order
		status string
		total  string
	)
	if err := row.Scan(&order.ID, &order.UserID, &status, &total, &order.CreatedAt, &order.UpdatedAt,
		&order.PaidAt, &order.ShippedAt, &order.DeliveredAt, &order.CancelledAt, &order.CancelReason); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.Total = parseAmount(total)
	return order, nil
}

// loadChildren fills lines, payment and shipment for every order with one query per table.
func loadChildren(ctx context.Context, q querier, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
		index[order.ID] = i
	}

	if err := loadLines(ctx, q, ids, orders, index); err != nil {
		return err
	}
	if err := loadPayments(ctx, q, ids, orders, index); err != nil {
		return err
	}
	return loadShipments(ctx, q, ids, orders, index)
}

func loadLines(ctx context.Context, q querier, ids []string, orders []domain.Order, index map[string]int) error {
	rows, err := q.Query(ctx, `
		SELECT order_id, id, product_id, product_name, quantity, unit_price_base::text, unit_price_final::text,
			discount_percent::text, promotion_code, subtotal::text, discount::text, custom_text, custom_number, patch_id
		FROM order_lines WHERE order_id = ANY($1) ORDER BY order_id, position`, ids)
	if err != nil {
		return wrapError("orders.lines", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID                                  string
			line                                     domain.OrderLine
			base, final, percent, subtotal, discount string
		)
		if err := rows.Scan(&orderID, &line.ID, &line.ProductID, &line.ProductName, &line.Quantity, &base, &final,
			&percent, &line.PromotionCode, &subtotal, &discount, &line.Personalization.CustomText,
			&line.Personalization.CustomNumber, &line.Personalization.PatchID); err != nil {
			return wrapError("orders.lines", err)
		}
		line.UnitPriceBase = parseAmount(base)
		line.UnitPriceFinal = parseAmount(final)
		line.DiscountPercent = parseAmount(percent)
		line.Subtotal = parseAmount(subtotal)
		line.Discount = parseAmount(discount)
		if i, ok := index[orderID]; ok {
			orders[i].Lines = append(orders[i].Lines, line)
		}
	}
	return wrapError("orders.lines", rows.Err())
}

func loadPayments(ctx context.Context, q querier, ids []string, orders []domain.Order, index map[string]int) error {
	rows, err := q.Query(ctx, `
		SELECT order_id, id, method, amount::text, status, reference, completed_at, created_at, updated_at
		FROM payments WHERE order_id = ANY($1)`, ids)
	if err != nil {
		return wrapError("orders.payments", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID, method, amount, status string
			payment                         domain.Payment
		)
		if err := rows.Scan(&orderID, &payment.ID, &method, &amount, &status, &payment.Reference,
			&payment.CompletedAt, &payment.CreatedAt, &payment.UpdatedAt); err != nil {
			return wrapError("orders.payments", err)
		}
		payment.Method = domain.PaymentMethod(method)
		payment.Amount = parseAmount(amount)
		payment.Status = domain.PaymentStatus(status)
		if i, ok := index[orderID]; ok {
			orders[i].Payment = &payment
		}
	}
	return wrapError("orders.payments", rows.Err())
}

func loadShipments(ctx context.Context, q querier, ids []string, orders []domain.Order, index map[string]int) error {
	rows, err := q.Query(ctx, `
		SELECT order_id, id, address, tracking_code, status, ship_date, delivered_at, created_at, updated_at
		FROM shipments WHERE order_id = ANY($1)`, ids)
	if err != nil {
		return wrapError("orders.shipments", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID, status string
			shipment        domain.Shipment
		)
		if err := rows.Scan(&orderID, &shipment.ID, &shipment.Address, &shipment.TrackingCode, &status,
			&shipment.ShipDate, &shipment.DeliveredAt, &shipment.CreatedAt, &shipment.UpdatedAt); err != nil {
			return wrapError("orders.shipments", err)
		}
		shipment.Status = domain.ShipmentStatus(status)
		if i, ok := index[orderID]; ok {
			orders[i].Shipment = &shipment
		}
	}
	return wrapError("orders.shipments", rows.Err())
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
