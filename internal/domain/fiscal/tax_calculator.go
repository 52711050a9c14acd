// Package fiscal contiene la lógica fiscal pura (sin I/O): cálculo de tributos y
// composición de la chave de acesso.
package fiscal

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// TaxResult desglose por línea más los totales agregados.
type TaxResult struct {
	Items     []entity.TaxBreakdown
	TotalBase decimal.Decimal
	TotalTax  decimal.Decimal
	// ByKind total por tributo, en el mismo orden de aplicación de las líneas.
	ByKind []entity.TaxAmount
}

// TotalFor devuelve el total agregado de un tributo.
func (r *TaxResult) TotalFor(kind entity.TaxKind) decimal.Decimal {
	for _, t := range r.ByKind {
		if t.Kind == kind {
			return t.Amount
		}
	}
	return decimal.Zero
}

// TaxCalculatorService calcula amount = base × rate por línea y tributo.
type TaxCalculatorService struct{}

// NewTaxCalculatorService crea el servicio.
func NewTaxCalculatorService() *TaxCalculatorService {
	return &TaxCalculatorService{}
}

// Calculate produce un TaxBreakdown por línea, en el orden de entrada.
//
// Tributos aplicables: las reglas habilitadas de la jurisdicción (en su orden) más los
// tributos adicionales que declare el producto (ordenados por nombre). La alícuota del
// producto prevalece sobre la de la jurisdicción. Las bases son independientes entre sí.
func (s *TaxCalculatorService) Calculate(orderID string, items []entity.OrderItem, rules []entity.TaxRule, now time.Time) (*TaxResult, error) {
	result := &TaxResult{TotalBase: decimal.Zero, TotalTax: decimal.Zero}
	kindTotals := map[entity.TaxKind]decimal.Decimal{}
	var kindOrder []entity.TaxKind

	for _, item := range items {
		if item.Quantity.IsNegative() || item.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("fiscal: la línea %s tiene cantidad o precio negativos", item.ID)
		}
		base := item.Subtotal().Round(2)
		bd := entity.TaxBreakdown{
			OrderID:     orderID,
			OrderItemID: item.ID,
			ProductID:   item.ProductID,
			Base:        base,
			TotalTax:    decimal.Zero,
			ComputedAt:  now,
		}
		for _, ap := range applicableRates(item, rules) {
			amount := base.Mul(ap.rate).Round(2)
			bd.Taxes = append(bd.Taxes, entity.TaxAmount{Kind: ap.kind, Rate: ap.rate, Amount: amount})
			bd.TotalTax = bd.TotalTax.Add(amount)

			if _, seen := kindTotals[ap.kind]; !seen {
				kindOrder = append(kindOrder, ap.kind)
				kindTotals[ap.kind] = decimal.Zero
			}
			kindTotals[ap.kind] = kindTotals[ap.kind].Add(amount)
		}
		result.Items = append(result.Items, bd)
		result.TotalBase = result.TotalBase.Add(base)
		result.TotalTax = result.TotalTax.Add(bd.TotalTax)
	}

	for _, kind := range kindOrder {
		result.ByKind = append(result.ByKind, entity.TaxAmount{Kind: kind, Amount: kindTotals[kind]})
	}
	return result, nil
}

// NormalizeRate interpreta alícuotas mayores que 1 como porcentaje (18 ⇒ 0.18).
func NormalizeRate(rate decimal.Decimal) decimal.Decimal {
	if rate.GreaterThan(one) {
		return rate.Div(hundred)
	}
	return rate
}

// ── helpers ───────────────────────────────────────────────────────────────────

type appliedRate struct {
	kind entity.TaxKind
	rate decimal.Decimal
}

func applicableRates(item entity.OrderItem, rules []entity.TaxRule) []appliedRate {
	var out []appliedRate
	declared := map[entity.TaxKind]bool{}
	for _, rule := range rules {
		declared[rule.Kind] = true
		if !rule.Enabled {
			continue
		}
		rate, ok := item.TaxRates[rule.Kind]
		if !ok {
			rate = rule.DefaultRate
		}
		out = append(out, appliedRate{kind: rule.Kind, rate: NormalizeRate(rate)})
	}

	var extra []entity.TaxKind
	for kind := range item.TaxRates {
		if !declared[kind] {
			extra = append(extra, kind)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	for _, kind := range extra {
		out = append(out, appliedRate{kind: kind, rate: NormalizeRate(item.TaxRates[kind])})
	}
	return out
}
