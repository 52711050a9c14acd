package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxAmount tributo calculado sobre la base de una línea.
type TaxAmount struct {
	Kind   TaxKind
	Rate   decimal.Decimal
	Amount decimal.Decimal
}

// TaxBreakdown desglose tributario de una línea del pedido. Es la evidencia de auditoría
// del cálculo y se persiste siempre.
type TaxBreakdown struct {
	OrderID     string
	OrderItemID string
	ProductID   string
	Base        decimal.Decimal
	Taxes       []TaxAmount
	TotalTax    decimal.Decimal
	ComputedAt  time.Time
}

// AmountFor devuelve el monto del tributo indicado o cero.
func (b TaxBreakdown) AmountFor(kind TaxKind) decimal.Decimal {
	for _, t := range b.Taxes {
		if t.Kind == kind {
			return t.Amount
		}
	}
	return decimal.Zero
}

// RateFor devuelve la alícuota aplicada al tributo indicado o cero.
func (b TaxBreakdown) RateFor(kind TaxKind) decimal.Decimal {
	for _, t := range b.Taxes {
		if t.Kind == kind {
			return t.Rate
		}
	}
	return decimal.Zero
}
