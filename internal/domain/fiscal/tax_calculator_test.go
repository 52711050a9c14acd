package fiscal_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/internal/domain/fiscal"
)

var testNow = time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Escenario: pedido de 100,00 con una línea {50,00 × 2, ICMS 18 %, PIS 1,65 %}
// ⇒ base 100,00; ICMS 18,00; PIS 1,65; total tributos 19,65.
func TestCalculate_EscenarioICMSyPIS(t *testing.T) {
	svc := fiscal.NewTaxCalculatorService()
	rules := []entity.TaxRule{
		{Kind: entity.TaxKindICMS, DefaultRate: dec("0.12"), Enabled: true},
		{Kind: entity.TaxKindPIS, DefaultRate: dec("0.0065"), Enabled: true},
	}
	items := []entity.OrderItem{{
		ID: "item-1", ProductID: "prod-1",
		Quantity: dec("2"), UnitPrice: dec("50.00"),
		TaxRates: map[entity.TaxKind]decimal.Decimal{
			entity.TaxKindICMS: dec("0.18"),
			entity.TaxKindPIS:  dec("0.0165"),
		},
	}}

	res, err := svc.Calculate("order-1", items, rules, testNow)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)

	bd := res.Items[0]
	assert.True(t, dec("100.00").Equal(bd.Base), "base: %s", bd.Base)
	assert.True(t, dec("18.00").Equal(bd.AmountFor(entity.TaxKindICMS)))
	assert.True(t, dec("1.65").Equal(bd.AmountFor(entity.TaxKindPIS)))
	assert.True(t, dec("19.65").Equal(bd.TotalTax))
	assert.True(t, dec("19.65").Equal(res.TotalTax))
	assert.True(t, dec("100.00").Equal(res.TotalBase))
}

func TestCalculate_UsaAlicuotaDeJurisdiccionSiFaltaEnProducto(t *testing.T) {
	svc := fiscal.NewTaxCalculatorService()
	items := []entity.OrderItem{{
		ID: "item-1", Quantity: dec("1"), UnitPrice: dec("200"),
		TaxRates: map[entity.TaxKind]decimal.Decimal{entity.TaxKindICMS: dec("12")}, // porcentaje
	}}

	res, err := svc.Calculate("order-1", items, entity.DefaultTaxRules(), testNow)
	require.NoError(t, err)
	bd := res.Items[0]

	assert.True(t, dec("0.12").Equal(bd.RateFor(entity.TaxKindICMS)), "12 se interpreta como 12 %")
	assert.True(t, dec("24.00").Equal(bd.AmountFor(entity.TaxKindICMS)))
	assert.True(t, dec("1.30").Equal(bd.AmountFor(entity.TaxKindPIS)), "PIS por defecto 0,65 %")
	assert.True(t, dec("6.00").Equal(bd.AmountFor(entity.TaxKindCOFINS)), "COFINS por defecto 3 %")
	assert.Len(t, bd.Taxes, 3, "IBS y CBS deshabilitados por defecto")
}

func TestCalculate_ConjuntoDeTributosExtensible(t *testing.T) {
	svc := fiscal.NewTaxCalculatorService()
	rules := []entity.TaxRule{
		{Kind: entity.TaxKindICMS, DefaultRate: dec("0.18"), Enabled: true},
		{Kind: entity.TaxKindIBS, DefaultRate: dec("0.001"), Enabled: true},
		{Kind: entity.TaxKindCBS, DefaultRate: dec("0.009"), Enabled: false},
	}
	items := []entity.OrderItem{{
		ID: "item-1", Quantity: dec("1"), UnitPrice: dec("1000"),
		TaxRates: map[entity.TaxKind]decimal.Decimal{
			"FCP":             dec("0.02"),
			entity.TaxKindCBS: dec("0.009"), // deshabilitado por la jurisdicción
			entity.TaxKindIPI: dec("0.05"),
		},
	}}

	res, err := svc.Calculate("order-1", items, rules, testNow)
	require.NoError(t, err)
	bd := res.Items[0]

	var kinds []entity.TaxKind
	for _, tx := range bd.Taxes {
		kinds = append(kinds, tx.Kind)
	}
	assert.Equal(t, []entity.TaxKind{entity.TaxKindICMS, entity.TaxKindIBS, "FCP", entity.TaxKindIPI}, kinds)
	assert.True(t, dec("1.00").Equal(bd.AmountFor(entity.TaxKindIBS)))
	assert.True(t, dec("20.00").Equal(bd.AmountFor("FCP")))
	assert.True(t, bd.AmountFor(entity.TaxKindCBS).IsZero())
}

func TestCalculate_Idempotente(t *testing.T) {
	svc := fiscal.NewTaxCalculatorService()
	items := []entity.OrderItem{
		{ID: "a", Quantity: dec("3"), UnitPrice: dec("9.99")},
		{ID: "b", Quantity: dec("0.333"), UnitPrice: dec("12.50")},
	}

	r1, err1 := svc.Calculate("order-1", items, entity.DefaultTaxRules(), testNow)
	r2, err2 := svc.Calculate("order-1", items, entity.DefaultTaxRules(), testNow)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, r1, r2)
}

func TestCalculate_AgregadoPorTributo(t *testing.T) {
	svc := fiscal.NewTaxCalculatorService()
	items := []entity.OrderItem{
		{ID: "a", Quantity: dec("1"), UnitPrice: dec("10")},
		{ID: "b", Quantity: dec("2"), UnitPrice: dec("20")},
	}

	res, err := svc.Calculate("order-1", items, entity.DefaultTaxRules(), testNow)
	require.NoError(t, err)

	assert.True(t, dec("9.00").Equal(res.TotalFor(entity.TaxKindICMS)), "1.80 + 7.20")
	sum := decimal.Zero
	for _, k := range res.ByKind {
		sum = sum.Add(k.Amount)
	}
	assert.True(t, sum.Equal(res.TotalTax))
}

func TestCalculate_LineaNegativa_Error(t *testing.T) {
	svc := fiscal.NewTaxCalculatorService()
	_, err := svc.Calculate("order-1", []entity.OrderItem{{ID: "a", Quantity: dec("-1"), UnitPrice: dec("10")}}, nil, testNow)
	assert.Error(t, err)
}
