package fiscal_test

import (
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/pdv-fiscal/internal/domain"
	"github.com/jhoicas/pdv-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/pdv-fiscal/pkg/nfe"
)

// ──────────────────────────────────────────────────────────────────────────────
// Vector de referencia de la chave de acesso (NFC-e, MG, mayo/2024):
//
//	cUF=31 AAMM=2405 CNPJ=12345678000190 mod=65 serie=001 nNF=000000001
//	tpEmis=1 cNF=00000001
//	cuerpo = 3124051234567800019065001000000001100000001
//	Σ(dígito × peso 2..9 de derecha a izquierda) = 421; 421 mod 11 = 3; cDV = 11 − 3 = 8
// ──────────────────────────────────────────────────────────────────────────────

const (
	testBodyExpected = "3124051234567800019065001000000001100000001"
	testKeyExpected  = testBodyExpected + "8"
)

func testParams() fiscal.AccessKeyParams {
	return fiscal.AccessKeyParams{
		UF:           "MG",
		IssuedAt:     time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC),
		CNPJ:         "12345678000190",
		Model:        nfe.ModelNFCe,
		Series:       1,
		Number:       1,
		EmissionType: nfe.EmissionNormal,
		NumericCode:  "00000001",
	}
}

func TestAccessKey_VectorExacto(t *testing.T) {
	svc := fiscal.NewAccessKeyGeneratorService()

	body, err := svc.Body(testParams())
	require.NoError(t, err)
	assert.Len(t, body, nfe.AccessKeyBodyLength)
	assert.Equal(t, testBodyExpected, body)

	key, err := svc.Generate(testParams())
	require.NoError(t, err)
	assert.Equal(t, testKeyExpected, key)
	assert.NoError(t, nfe.ValidateAccessKey(key), "la chave generada debe revalidar")
}

func TestAccessKey_CNPJConMascara(t *testing.T) {
	svc := fiscal.NewAccessKeyGeneratorService()
	p := testParams()
	p.CNPJ = "12.345.678/0001-90"

	key, err := svc.Generate(p)
	require.NoError(t, err)
	assert.Equal(t, testKeyExpected, key, "la máscara del CNPJ no debe alterar la chave")
}

func TestAccessKey_CNPJVacio_ErrInvalidIssuerID(t *testing.T) {
	svc := fiscal.NewAccessKeyGeneratorService()
	p := testParams()
	p.CNPJ = "./-"

	_, err := svc.Generate(p)
	assert.ErrorIs(t, err, domain.ErrInvalidIssuerID)
}

func TestAccessKey_UFDesconocida(t *testing.T) {
	svc := fiscal.NewAccessKeyGeneratorService()
	p := testParams()
	p.UF = "XX"

	_, err := svc.Generate(p)
	assert.ErrorIs(t, err, domain.ErrInvalidJurisdiction)
}

func TestAccessKey_CamposFueraDeRango(t *testing.T) {
	svc := fiscal.NewAccessKeyGeneratorService()

	cases := map[string]func(p *fiscal.AccessKeyParams){
		"serie":         func(p *fiscal.AccessKeyParams) { p.Series = 1000 },
		"numero cero":   func(p *fiscal.AccessKeyParams) { p.Number = 0 },
		"numero grande": func(p *fiscal.AccessKeyParams) { p.Number = 1_000_000_000 },
		"cNF corto":     func(p *fiscal.AccessKeyParams) { p.NumericCode = "123" },
		"tpEmis":        func(p *fiscal.AccessKeyParams) { p.EmissionType = "X" },
		"modelo":        func(p *fiscal.AccessKeyParams) { p.Model = "6" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := testParams()
			mutate(&p)
			_, err := svc.Generate(p)
			assert.Error(t, err)
		})
	}
}

func TestAccessKey_TipoEmisionCambiaLaChave(t *testing.T) {
	svc := fiscal.NewAccessKeyGeneratorService()
	normal, err := svc.Generate(testParams())
	require.NoError(t, err)

	p := testParams()
	p.EmissionType = nfe.EmissionOfflineNFCe
	offline, err := svc.Generate(p)
	require.NoError(t, err)

	assert.NotEqual(t, normal, offline)
	assert.NoError(t, nfe.ValidateAccessKey(offline))
}

// ── Propiedades del dígito verificador ────────────────────────────────────────

// referenceCheckDigit implementación independiente (pesos precalculados por posición).
func referenceCheckDigit(body string) int {
	weights := make([]int, len(body))
	w := 2
	for i := len(body) - 1; i >= 0; i-- {
		weights[i] = w
		if w == 9 {
			w = 2
		} else {
			w++
		}
	}
	sum := 0
	for i := range body {
		d, _ := strconv.Atoi(string(body[i]))
		sum += d * weights[i]
	}
	if r := sum % 11; r > 1 {
		return 11 - r
	}
	return 0
}

func TestCheckDigit_CoincideConReferenciaYRevalida(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		buf := make([]byte, nfe.AccessKeyBodyLength)
		for j := range buf {
			buf[j] = byte('0' + rng.Intn(10))
		}
		body := string(buf)

		dv, err := nfe.ComputeCheckDigit(body)
		require.NoError(t, err)
		assert.Equal(t, referenceCheckDigit(body), int(dv-'0'), "cuerpo %s", body)
		assert.NoError(t, nfe.ValidateAccessKey(body+string(dv)))
	}
}

func TestValidateAccessKey_DigitoAlterado(t *testing.T) {
	assert.Error(t, nfe.ValidateAccessKey(testBodyExpected+"7"))
	assert.Error(t, nfe.ValidateAccessKey(testBodyExpected), "sin dígito verificador")
	assert.Error(t, nfe.ValidateAccessKey("A"+testKeyExpected[1:]))
}

func TestNewNumericCode_OchoDigitosDistintoDelNumero(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := fiscal.NewNumericCode(1)
		require.NoError(t, err)
		assert.Len(t, code, 8)
		assert.NotEqual(t, "00000001", code)
	}
}
