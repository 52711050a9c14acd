package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order vista de solo lectura del pedido que consume el núcleo fiscal.
type Order struct {
	ID            string
	TenantID      string
	TotalAmount   decimal.Decimal
	PaymentMethod string
	Customer      *OrderCustomer // nil = consumidor no identificado
	Items         []OrderItem
	CreatedAt     time.Time
}

// OrderCustomer destinatario opcional (CPF/CNPJ informado en el PDV).
type OrderCustomer struct {
	Document string
	Name     string
	Email    string
}

// OrderItem línea del pedido con el precio vigente al momento de la venta.
type OrderItem struct {
	ID          string
	ProductID   string
	ProductName string
	NCM         string
	CFOP        string
	Unit        string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	// TaxRates alícuotas del producto; un tributo ausente usa el valor por defecto de la jurisdicción.
	TaxRates map[TaxKind]decimal.Decimal
}

// Subtotal valor bruto de la línea (precio unitario × cantidad).
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(i.Quantity)
}
