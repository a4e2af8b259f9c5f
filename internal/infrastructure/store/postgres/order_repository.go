package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/money"
	"github.com/lib/pq"
)

// OrderRepository stores orders and their lines in PostgreSQL
type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order and all of its lines in one transaction
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return store.ClassifyPostgres("begin create order", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, status, total_cents, currency, payment_session_id, payment_ref, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.UserID, string(o.Status), o.Total.Cents(), o.Currency,
		o.PaymentSessionID, o.PaymentRef, o.CreatedAt, o.UpdatedAt,
	)
	if isUniqueViolation(err, "orders_pkey") {
		tx.Rollback()
		return r.createdBefore(ctx, o)
	}
	if err != nil {
		return store.ClassifyPostgres("insert order", err)
	}

	for i, l := range o.Lines {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_lines (id, order_id, line_no, product_id, variant_id, product_name, quantity, unit_price_cents)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			l.ID, o.ID, i, l.ProductID, l.VariantID, l.ProductName, l.Quantity, l.UnitPrice.Cents(),
		)
		if err != nil {
			return store.ClassifyPostgres(fmt.Sprintf("insert order line %d", i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return store.ClassifyPostgres("commit create order", err)
	}
	return nil
}

// createdBefore resolves a primary key clash: a retried Create whose first
// commit landed finds its own record and succeeds.
func (r *OrderRepository) createdBefore(ctx context.Context, o *order.Order) error {
	existing, err := r.Get(ctx, o.ID)
	if err != nil {
		return err
	}
	if !existing.SameRecord(o) {
		return fmt.Errorf("%w: %s", order.ErrOrderExists, o.ID)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, orderID string) (*order.Order, error) {
	var o order.Order
	var status string
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, status, total_cents, currency, payment_session_id, payment_ref, created_at, updated_at
		 FROM orders WHERE id = $1`,
		orderID,
	).Scan(&o.ID, &o.UserID, &status, &total, &o.Currency, &o.PaymentSessionID, &o.PaymentRef, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, store.ClassifyPostgres("get order", err)
	}
	o.Status = order.Status(status)
	o.Total = money.FromCents(total)

	lines, err := r.linesFor(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Lines = lines[o.ID]
	return &o, nil
}

// UpdateStatus applies the transition only while the row is in one of u.From.
// The row lock taken by the subquery serialises concurrent deliveries.
func (r *OrderRepository) UpdateStatus(ctx context.Context, u order.StatusUpdate) (order.Status, bool, error) {
	from := make([]string, len(u.From))
	for i, s := range u.From {
		from[i] = string(s)
	}

	var prev string
	err := r.db.QueryRowContext(ctx,
		`UPDATE orders o
		 SET status = $2,
		     payment_ref = CASE WHEN $3::text = '' THEN o.payment_ref ELSE $3::text END,
		     updated_at = $4
		 FROM (SELECT id, status FROM orders WHERE id = $1 FOR UPDATE) prev
		 WHERE o.id = prev.id AND prev.status = ANY($5)
		 RETURNING prev.status`,
		u.OrderID, string(u.To), u.PaymentRef, u.At, pq.Array(from),
	).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, store.ClassifyPostgres("update order status", err)
	}
	return order.Status(prev), true, nil
}

func (r *OrderRepository) SetPaymentSession(ctx context.Context, orderID, sessionID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET payment_session_id = $2 WHERE id = $1`,
		orderID, sessionID,
	)
	if isInvalidText(err) {
		return order.ErrOrderNotFound
	}
	if err != nil {
		return store.ClassifyPostgres("set payment session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.ClassifyPostgres("set payment session", err)
	}
	if n == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, status, total_cents, currency, payment_session_id, payment_ref, created_at, updated_at
		 FROM orders WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, store.ClassifyPostgres("list orders", err)
	}
	defer rows.Close()

	var orders []*order.Order
	var ids []string
	for rows.Next() {
		var o order.Order
		var status string
		var total int64
		if err := rows.Scan(&o.ID, &o.UserID, &status, &total, &o.Currency, &o.PaymentSessionID, &o.PaymentRef, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, store.ClassifyPostgres("scan order", err)
		}
		o.Status = order.Status(status)
		o.Total = money.FromCents(total)
		orders = append(orders, &o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, store.ClassifyPostgres("list orders", err)
	}
	if len(ids) == 0 {
		return orders, nil
	}

	lines, err := r.linesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Lines = lines[o.ID]
	}
	return orders, nil
}

func (r *OrderRepository) linesFor(ctx context.Context, orderIDs []string) (map[string][]order.Line, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, variant_id, product_name, quantity, unit_price_cents
		 FROM order_lines WHERE order_id = ANY($1::uuid[])
		 ORDER BY order_id, line_no`,
		pq.Array(orderIDs),
	)
	if err != nil {
		return nil, store.ClassifyPostgres("list order lines", err)
	}
	defer rows.Close()

	lines := make(map[string][]order.Line)
	for rows.Next() {
		var l order.Line
		var price int64
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.VariantID, &l.ProductName, &l.Quantity, &price); err != nil {
			return nil, store.ClassifyPostgres("scan order line", err)
		}
		l.UnitPrice = money.FromCents(price)
		lines[l.OrderID] = append(lines[l.OrderID], l)
	}
	if err := rows.Err(); err != nil {
		return nil, store.ClassifyPostgres("list order lines", err)
	}
	return lines, nil
}
