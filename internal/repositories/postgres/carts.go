package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	domain "github.com/orderflow/api/internal/domain"
)

// CartRepository stores one cart row per user and its ordered lines.
type CartRepository struct {
	db db
}

// LoadCart takes a transaction-scoped advisory lock on the user inside a transaction, so two
// writers of the same cart serialise even before the cart row exists.
func (r *CartRepository) LoadCart(ctx context.Context, userID string) (domain.Cart, error) {
	q := r.db.conn(ctx)
	if inTx(ctx) {
		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "cart:"+userID); err != nil {
			return domain.Cart{}, wrapError("carts.lock", err)
		}
	}

	cart := domain.Cart{UserID: userID}
	err := q.QueryRow(ctx, `SELECT created_at, updated_at FROM carts WHERE user_id = $1`, userID).Scan(&cart.CreatedAt, &cart.UpdatedAt)
	if errorsIsNoRows(err) {
		return cart, nil
	}
	if err != nil {
		return domain.Cart{}, wrapError("carts.load", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, product_id, quantity, custom_text, custom_number, patch_id, added_at, updated_at
		FROM cart_lines WHERE user_id = $1 ORDER BY position`, userID)
	if err != nil {
		return domain.Cart{}, wrapError("carts.load", err)
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CartLine, error) {
		var line domain.CartLine
		err := row.Scan(&line.ID, &line.ProductID, &line.Quantity, &line.Personalization.CustomText,
			&line.Personalization.CustomNumber, &line.Personalization.PatchID, &line.AddedAt, &line.UpdatedAt)
		return line, err
	})
	if err != nil {
		return domain.Cart{}, wrapError("carts.load", err)
	}
	cart.Lines = lines
	return cart, nil
}

// SaveCart replaces the stored lines with cart.Lines.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) error {
	return r.db.atomic(ctx, "carts.save", func(q querier) error {
		batch := &pgx.Batch{}
		batch.Queue(`
			INSERT INTO carts (user_id, created_at, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET updated_at = EXCLUDED.updated_at`,
			cart.UserID, cart.CreatedAt.UTC(), cart.UpdatedAt.UTC())
		batch.Queue(`DELETE FROM cart_lines WHERE user_id = $1`, cart.UserID)
		for i, line := range cart.Lines {
			batch.Queue(`
				INSERT INTO cart_lines (id, user_id, position, product_id, quantity, custom_text, custom_number, patch_id, added_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				line.ID, cart.UserID, i, line.ProductID, line.Quantity, line.Personalization.CustomText,
				line.Personalization.CustomNumber, line.Personalization.PatchID, line.AddedAt.UTC(), line.UpdatedAt.UTC())
		}
		return execBatch(ctx, q, "carts.save", batch)
	})
}

func (r *CartRepository) FindLineOwner(ctx context.Context, lineID string) (string, error) {
	var userID string
	err := r.db.conn(ctx).QueryRow(ctx, `SELECT user_id FROM cart_lines WHERE id = $1`, lineID).Scan(&userID)
	if err != nil {
		return "", wrapError("carts.findLineOwner", err)
	}
	return userID, nil
}

// ListStaleCarts loads each stale cart without locking it; callers re-read inside their own transaction.
func (r *CartRepository) ListStaleCarts(ctx context.Context, before time.Time, limit int) ([]domain.Cart, error) {
	sql := `
		SELECT c.user_id FROM carts c
		WHERE c.updated_at < $1 AND EXISTS (SELECT 1 FROM cart_lines l WHERE l.user_id = c.user_id)
		ORDER BY c.updated_at, c.user_id`
	args := []any{before.UTC()}
	if limit > 0 {
		sql += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.db.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapError("carts.listStale", err)
	}
	userIDs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapError("carts.listStale", err)
	}

	carts := make([]domain.Cart, 0, len(userIDs))
	for _, userID := range userIDs {
		cart, err := r.LoadCart(ctx, userID)
		if err != nil {
			return nil, err
		}
		carts = append(carts, cart)
	}
	return carts, nil
}
