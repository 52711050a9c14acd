package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/internal/domain/repository"
	"github.com/shopspring/decimal"
)

var _ repository.OrderRepository = (*OrderRepo)(nil)

// OrderRepo lectura de pedidos del PDV con las alícuotas de cada producto.
type OrderRepo struct {
	q Querier
}

// NewOrderRepository construye el adaptador. Pasar pool o tx (Querier).
func NewOrderRepository(q Querier) *OrderRepo {
	return &OrderRepo{q: q}
}

// GetByID devuelve nil, nil si el pedido no existe para el tenant.
func (r *OrderRepo) GetByID(ctx context.Context, tenantID, orderID string) (*entity.Order, error) {
	query := `
		SELECT id, tenant_id, total_amount, payment_method, customer_document, customer_name, customer_email, created_at
		FROM orders WHERE tenant_id = $1 AND id = $2`
	var (
		o                          entity.Order
		custDoc, custName, custEml *string
	)
	err := r.q.QueryRow(ctx, query, tenantID, orderID).Scan(
		&o.ID, &o.TenantID, &o.TotalAmount, &o.PaymentMethod, &custDoc, &custName, &custEml, &o.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if custDoc != nil && *custDoc != "" {
		o.Customer = &entity.OrderCustomer{Document: *custDoc, Name: stringOrEmpty(custName), Email: stringOrEmpty(custEml)}
	}

	items, err := r.items(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (r *OrderRepo) items(ctx context.Context, tenantID, orderID string) ([]entity.OrderItem, error) {
	query := `
		SELECT i.id, i.product_id, i.product_name, i.ncm, i.cfop, i.unit, i.quantity, i.unit_price,
		       r.tax_kind, r.rate
		FROM order_items i
		LEFT JOIN product_tax_rates r ON r.tenant_id = i.tenant_id AND r.product_id = i.product_id
		WHERE i.tenant_id = $1 AND i.order_id = $2
		ORDER BY i.position, i.id`
	rows, err := r.q.Query(ctx, query, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var out []entity.OrderItem
	index := make(map[string]int)
	for rows.Next() {
		var (
			it   entity.OrderItem
			kind *string
			rate decimal.NullDecimal
		)
		if err := rows.Scan(&it.ID, &it.ProductID, &it.ProductName, &it.NCM, &it.CFOP, &it.Unit,
			&it.Quantity, &it.UnitPrice, &kind, &rate); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		pos, seen := index[it.ID]
		if !seen {
			it.TaxRates = make(map[entity.TaxKind]decimal.Decimal)
			out = append(out, it)
			pos = len(out) - 1
			index[it.ID] = pos
		}
		if kind != nil && rate.Valid {
			out[pos].TaxRates[entity.TaxKind(*kind)] = rate.Decimal
		}
	}
	return out, rows.Err()
}
