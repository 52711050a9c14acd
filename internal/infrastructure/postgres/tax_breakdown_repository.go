package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/internal/domain/repository"
	"github.com/shopspring/decimal"
)

var _ repository.TaxBreakdownRepository = (*TaxBreakdownRepo)(nil)

// TaxBreakdownRepo desglose tributario por línea; una fila por línea con los tributos en JSONB.
type TaxBreakdownRepo struct {
	q Querier
}

// NewTaxBreakdownRepository construye el adaptador. Pasar pool o tx (Querier).
func NewTaxBreakdownRepository(q Querier) *TaxBreakdownRepo {
	return &TaxBreakdownRepo{q: q}
}

type taxAmountJSON struct {
	Kind   string          `json:"kind"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// Upsert recalcular el mismo pedido sobrescribe la fila de cada línea.
func (r *TaxBreakdownRepo) Upsert(ctx context.Context, tenantID string, breakdowns []entity.TaxBreakdown) error {
	query := `
		INSERT INTO tax_breakdowns (tenant_id, order_id, order_item_id, product_id, base, taxes, total_tax, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, order_id, order_item_id) DO UPDATE
		SET product_id = EXCLUDED.product_id, base = EXCLUDED.base, taxes = EXCLUDED.taxes,
		    total_tax = EXCLUDED.total_tax, computed_at = EXCLUDED.computed_at`
	for _, b := range breakdowns {
		taxes := make([]taxAmountJSON, 0, len(b.Taxes))
		for _, t := range b.Taxes {
			taxes = append(taxes, taxAmountJSON{Kind: string(t.Kind), Rate: t.Rate, Amount: t.Amount})
		}
		raw, err := json.Marshal(taxes)
		if err != nil {
			return fmt.Errorf("encode taxes: %w", err)
		}
		if _, err := r.q.Exec(ctx, query, tenantID, b.OrderID, b.OrderItemID, b.ProductID, b.Base, string(raw), b.TotalTax, b.ComputedAt); err != nil {
			return wrapConflict("upsert tax breakdown", err)
		}
	}
	return nil
}

func (r *TaxBreakdownRepo) ListByOrder(ctx context.Context, tenantID, orderID string) ([]entity.TaxBreakdown, error) {
	query := `
		SELECT order_id, order_item_id, product_id, base, taxes, total_tax, computed_at
		FROM tax_breakdowns WHERE tenant_id = $1 AND order_id = $2
		ORDER BY order_item_id`
	rows, err := r.q.Query(ctx, query, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("list tax breakdowns: %w", err)
	}
	defer rows.Close()

	var out []entity.TaxBreakdown
	for rows.Next() {
		var (
			b   entity.TaxBreakdown
			raw []byte
		)
		if err := rows.Scan(&b.OrderID, &b.OrderItemID, &b.ProductID, &b.Base, &raw, &b.TotalTax, &b.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan tax breakdown: %w", err)
		}
		var taxes []taxAmountJSON
		if err := json.Unmarshal(raw, &taxes); err != nil {
			return nil, fmt.Errorf("decode taxes: %w", err)
		}
		for _, t := range taxes {
			b.Taxes = append(b.Taxes, entity.TaxAmount{Kind: entity.TaxKind(t.Kind), Rate: t.Rate, Amount: t.Amount})
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
