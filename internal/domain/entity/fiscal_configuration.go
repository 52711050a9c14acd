package entity

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Ambientes de la SEFAZ.
const (
	EnvironmentHomologation = "homologation"
	EnvironmentProduction   = "production"
)

// Regímenes tributarios del emisor.
const (
	TaxRegimeSimplesNacional = "simples_nacional"
	TaxRegimeLucroPresumido  = "lucro_presumido"
	TaxRegimeLucroReal       = "lucro_real"
)

// TaxKind identifica un tributo. El conjunto es abierto: cada jurisdicción define los suyos.
type TaxKind string

// Tributos conocidos.
const (
	TaxKindICMS   TaxKind = "ICMS"
	TaxKindPIS    TaxKind = "PIS"
	TaxKindCOFINS TaxKind = "COFINS"
	TaxKindIPI    TaxKind = "IPI"
	TaxKindISS    TaxKind = "ISS"
	TaxKindIBS    TaxKind = "IBS"
	TaxKindCBS    TaxKind = "CBS"
)

// TaxRule alícuota por defecto de un tributo en la jurisdicción del emisor.
type TaxRule struct {
	Kind        TaxKind
	DefaultRate decimal.Decimal // fracción (0.18 = 18 %)
	Enabled     bool
}

// DefaultTaxRules reglas usadas cuando la configuración no define ninguna.
// IBS y CBS (reforma tributaria) quedan registrados pero deshabilitados.
func DefaultTaxRules() []TaxRule {
	return []TaxRule{
		{Kind: TaxKindICMS, DefaultRate: decimal.RequireFromString("0.18"), Enabled: true},
		{Kind: TaxKindPIS, DefaultRate: decimal.RequireFromString("0.0065"), Enabled: true},
		{Kind: TaxKindCOFINS, DefaultRate: decimal.RequireFromString("0.03"), Enabled: true},
		{Kind: TaxKindIBS, DefaultRate: decimal.Zero, Enabled: false},
		{Kind: TaxKindCBS, DefaultRate: decimal.Zero, Enabled: false},
	}
}

// Address dirección fiscal del emisor.
type Address struct {
	Street     string
	Number     string
	Complement string
	District   string
	City       string
	CityCode   string // código IBGE del municipio (7 dígitos)
	UF         string // sigla de la unidad federativa (MG, SP...)
	ZipCode    string
	Phone      string
}

// CertificateMaterial credencial A1 (PKCS#12) del emisor. Nunca se registra en logs ni
// se devuelve por la API: String y MarshalJSON solo exponen la referencia.
type CertificateMaterial struct {
	PKCS12    []byte
	Password  string
	Reference string     // nombre o huella para identificar el certificado
	ExpiresAt *time.Time // nil = desconocido
}

// IsEmpty indica si no hay certificado cargado.
func (c CertificateMaterial) IsEmpty() bool { return len(c.PKCS12) == 0 }

func (c CertificateMaterial) String() string {
	if c.IsEmpty() {
		return "certificate(none)"
	}
	return "certificate(" + c.Reference + ", redacted)"
}

// GoString evita que %#v imprima el contenido del PKCS#12.
func (c CertificateMaterial) GoString() string { return c.String() }

// MarshalJSON serializa solo los metadatos del certificado.
func (c CertificateMaterial) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Configured bool       `json:"configured"`
		Reference  string     `json:"reference,omitempty"`
		ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	}{Configured: !c.IsEmpty(), Reference: c.Reference, ExpiresAt: c.ExpiresAt})
}

// MarshalZerologObject registra solo los metadatos del certificado.
func (c CertificateMaterial) MarshalZerologObject(e *zerolog.Event) {
	e.Bool("configured", !c.IsEmpty())
	if c.Reference != "" {
		e.Str("reference", c.Reference)
	}
	if c.ExpiresAt != nil {
		e.Time("expires_at", *c.ExpiresAt)
	}
}

// FiscalConfiguration configuración fiscal del emisor (una por tenant).
// Series y LastDocumentNumber solo avanzan mediante el incremento transaccional del
// repositorio o la actualización explícita de configuración.
type FiscalConfiguration struct {
	TenantID              string
	CNPJ                  string
	CompanyName           string
	TradingName           string
	StateRegistration     string // Inscrição Estadual
	MunicipalRegistration string // Inscrição Municipal (NFS-e)
	TaxRegime             string // ver constantes TaxRegime*
	Address               Address
	DefaultCST            string
	DefaultCFOP           string
	DefaultNCM            string
	TaxRules              []TaxRule
	Certificate           CertificateMaterial
	Environment           string // homologation | production
	Series                int
	LastDocumentNumber    int64
	CSCID                 string // identificador del CSC (QR-Code NFC-e)
	CSC                   string // Código de Segurança do Contribuinte
	Version               int64  // snapshot versionado para actualizaciones concurrentes
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// HasCertificate indica si el emisor tiene credencial de firma cargada.
func (c *FiscalConfiguration) HasCertificate() bool {
	return c != nil && !c.Certificate.IsEmpty()
}

// EffectiveTaxRules devuelve las reglas configuradas o las reglas por defecto.
func (c *FiscalConfiguration) EffectiveTaxRules() []TaxRule {
	if c == nil || len(c.TaxRules) == 0 {
		return DefaultTaxRules()
	}
	return c.TaxRules
}

// IsProduction indica si el emisor transmite al ambiente de producción.
func (c *FiscalConfiguration) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}
