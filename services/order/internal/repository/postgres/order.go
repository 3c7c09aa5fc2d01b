package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/services/order/internal/domain"
	"github.com/utafrali/storefront/services/order/internal/repository"
)

const orderColumns = `id, customer_id, shop_id, status, total_price, currency, reason, created_at, updated_at`

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
	now  func() time.Time
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new order and its lines atomically within a transaction.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) (err error) {
	const orderQuery = `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	const lineQuery = `
		INSERT INTO order_lines (order_id, line_no, product_id, name, unit_price, image_ref, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	ctx, end := database.TraceQuery(ctx, "CreateOrder", orderQuery)
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err = tx.Exec(ctx, orderQuery,
		o.ID,
		o.CustomerID,
		o.ShopID,
		string(o.Status),
		o.TotalPrice,
		o.Currency,
		o.Reason,
		o.CreatedAt,
		o.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, line := range o.Lines {
		if _, err = tx.Exec(ctx, lineQuery,
			o.ID,
			i+1,
			line.ProductID,
			line.Name,
			line.UnitPrice,
			line.ImageRef,
			line.Quantity,
		); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetByID retrieves an order by its ID together with its lines in one query.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (_ *domain.Order, err error) {
	const query = `
		SELECT
			o.id, o.customer_id, o.shop_id, o.status, o.total_price, o.currency,
			o.reason, o.created_at, o.updated_at,
			COALESCE(
				JSONB_AGG(
					JSONB_BUILD_OBJECT(
						'product_id', l.product_id,
						'name', l.name,
						'unit_price', l.unit_price,
						'image_ref', l.image_ref,
						'quantity', l.quantity
					) ORDER BY l.line_no
				) FILTER (WHERE l.order_id IS NOT NULL),
				'[]'::jsonb
			) AS lines
		FROM orders o
		LEFT JOIN order_lines l ON o.id = l.order_id
		WHERE o.id = $1
		GROUP BY o.id`

	ctx, end := database.TraceQuery(ctx, "GetOrder", query)
	defer func() { end(err) }()

	var (
		o         domain.Order
		status    string
		linesJSON []byte
	)
	err = r.pool.QueryRow(ctx, query, id).Scan(
		&o.ID,
		&o.CustomerID,
		&o.ShopID,
		&status,
		&o.TotalPrice,
		&o.Currency,
		&o.Reason,
		&o.CreatedAt,
		&o.UpdatedAt,
		&linesJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.Status = domain.Status(status)

	o.Lines = []domain.OrderLine{}
	if len(linesJSON) > 0 && string(linesJSON) != "null" {
		if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
			return nil, fmt.Errorf("unmarshal order lines: %w", err)
		}
	}
	return &o, nil
}

// List returns orders matching the given filter with the total count, newest
// first.
func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) (_ []domain.Order, _ int, err error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argIndex))
		args = append(args, *filter.CustomerID)
		argIndex++
	}
	if filter.ShopID != nil {
		conditions = append(conditions, fmt.Sprintf("shop_id = $%d", argIndex))
		args = append(args, *filter.ShopID)
		argIndex++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, string(*filter.Status))
		argIndex++
	}
	if filter.RefundOnly {
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argIndex))
		args = append(args, statusStrings(domain.RefundStatuses()))
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM orders
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		orderColumns, whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)

	ctx, end := database.TraceQuery(ctx, "ListOrders", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var totalCount int
	orders := make([]domain.Order, 0)
	for rows.Next() {
		var (
			o      domain.Order
			status string
		)
		if err = rows.Scan(
			&o.ID,
			&o.CustomerID,
			&o.ShopID,
			&status,
			&o.TotalPrice,
			&o.Currency,
			&o.Reason,
			&o.CreatedAt,
			&o.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		o.Status = domain.Status(status)
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}

	if len(orders) == 0 {
		return orders, totalCount, nil
	}

	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	linesByOrder, err := r.loadOrderLines(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		if lines, ok := linesByOrder[orders[i].ID]; ok {
			orders[i].Lines = lines
		} else {
			orders[i].Lines = []domain.OrderLine{}
		}
	}

	return orders, totalCount, nil
}

// UpdateStatus changes the status only while the stored status still equals
// from. An empty reason keeps the stored one.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.Status, reason string) (_ *domain.Order, err error) {
	const query = `
		UPDATE orders
		SET status = $1, reason = COALESCE(NULLIF($2, ''), reason), updated_at = $3
		WHERE id = $4 AND status = $5
		RETURNING ` + orderColumns

	ctx, end := database.TraceQuery(ctx, "UpdateOrderStatus", query)
	defer func() { end(err) }()

	var (
		o      domain.Order
		status string
	)
	err = r.pool.QueryRow(ctx, query, string(to), reason, r.now(), id, string(from)).Scan(
		&o.ID,
		&o.CustomerID,
		&o.ShopID,
		&status,
		&o.TotalPrice,
		&o.Currency,
		&o.Reason,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.staleStatus(ctx, id, from)
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	o.Status = domain.Status(status)

	linesByOrder, err := r.loadOrderLines(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	o.Lines = linesByOrder[id]
	if o.Lines == nil {
		o.Lines = []domain.OrderLine{}
	}
	return &o, nil
}

// staleStatus explains why a conditional update touched no row.
func (r *OrderRepository) staleStatus(ctx context.Context, id string, expected domain.Status) error {
	var current string
	err := r.pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound("order", id)
	}
	if err != nil {
		return fmt.Errorf("read order status: %w", err)
	}
	return apperrors.Conflict(fmt.Sprintf("order %s is %q, not %q", id, current, expected))
}

// loadOrderLines batch-loads the lines of the given orders keyed by order id.
func (r *OrderRepository) loadOrderLines(ctx context.Context, orderIDs []string) (map[string][]domain.OrderLine, error) {
	const query = `
		SELECT order_id, product_id, name, unit_price, image_ref, quantity
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no`

	rows, err := r.pool.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("batch load order lines: %w", err)
	}
	defer rows.Close()

	linesByOrder := make(map[string][]domain.OrderLine, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			line    domain.OrderLine
		)
		if err := rows.Scan(
			&orderID,
			&line.ProductID,
			&line.Name,
			&line.UnitPrice,
			&line.ImageRef,
			&line.Quantity,
		); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		linesByOrder[orderID] = append(linesByOrder[orderID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order line rows: %w", err)
	}
	return linesByOrder, nil
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
