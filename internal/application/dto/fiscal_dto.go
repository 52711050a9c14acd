package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxRuleDTO alícuota por defecto de un tributo.
type TaxRuleDTO struct {
	Kind        string          `json:"kind" validate:"required"`
	DefaultRate decimal.Decimal `json:"default_rate"`
	Enabled     bool            `json:"enabled"`
}

// AddressDTO dirección fiscal del emisor.
type AddressDTO struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	CityCode   string `json:"city_code"`
	UF         string `json:"uf" validate:"required,len=2"`
	ZipCode    string `json:"zip_code"`
	Phone      string `json:"phone,omitempty"`
}

// UpdateFiscalSettingsRequest entrada de PUT /settings. Los campos nil no se modifican.
// El certificado se envía como PKCS#12 (o PEM) en base64.
type UpdateFiscalSettingsRequest struct {
	CNPJ                  *string      `json:"cnpj"`
	CompanyName           *string      `json:"company_name"`
	TradingName           *string      `json:"trading_name"`
	StateRegistration     *string      `json:"state_registration"`
	MunicipalRegistration *string      `json:"municipal_registration"`
	TaxRegime             *string      `json:"tax_regime" validate:"omitempty,oneof=simples_nacional lucro_presumido lucro_real"`
	Address               *AddressDTO  `json:"address"`
	DefaultCST            *string      `json:"default_cst"`
	DefaultCFOP           *string      `json:"default_cfop"`
	DefaultNCM            *string      `json:"default_ncm"`
	TaxRules              []TaxRuleDTO `json:"tax_rules"`
	Environment           *string      `json:"environment" validate:"omitempty,oneof=homologation production"`
	Series                *int         `json:"series"`
	LastDocumentNumber    *int64       `json:"last_document_number"`
	CSCID                 *string      `json:"csc_id"`
	CSC                   *string      `json:"csc"`
	CertificateBase64     *string      `json:"certificate_base64"`
	CertificatePassword   *string      `json:"certificate_password"`
	Version               *int64       `json:"version"` // versión leída; nil = la actual
}

// FiscalSettingsResponse configuración sin secretos (ni certificado ni CSC).
type FiscalSettingsResponse struct {
	TenantID              string       `json:"tenant_id"`
	CNPJ                  string       `json:"cnpj"`
	CompanyName           string       `json:"company_name"`
	TradingName           string       `json:"trading_name,omitempty"`
	StateRegistration     string       `json:"state_registration"`
	MunicipalRegistration string       `json:"municipal_registration,omitempty"`
	TaxRegime             string       `json:"tax_regime"`
	Address               AddressDTO   `json:"address"`
	DefaultCST            string       `json:"default_cst,omitempty"`
	DefaultCFOP           string       `json:"default_cfop,omitempty"`
	DefaultNCM            string       `json:"default_ncm,omitempty"`
	TaxRules              []TaxRuleDTO `json:"tax_rules"`
	Environment           string       `json:"environment"`
	Series                int          `json:"series"`
	LastDocumentNumber    int64        `json:"last_document_number"`
	CSCID                 string       `json:"csc_id,omitempty"`
	CSCConfigured         bool         `json:"csc_configured"`
	CertificateConfigured bool         `json:"certificate_configured"`
	CertificateReference  string       `json:"certificate_reference,omitempty"`
	CertificateExpiresAt  *time.Time   `json:"certificate_expires_at,omitempty"`
	Version               int64        `json:"version"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

// CalculateTaxesRequest entrada de POST /calculate-taxes.
type CalculateTaxesRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

// TaxAmountDTO tributo de una línea.
type TaxAmountDTO struct {
	Kind   string          `json:"kind"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// TaxBreakdownDTO desglose de una línea del pedido.
type TaxBreakdownDTO struct {
	OrderItemID string          `json:"order_item_id"`
	ProductID   string          `json:"product_id"`
	Base        decimal.Decimal `json:"base"`
	Taxes       []TaxAmountDTO  `json:"taxes"`
	TotalTax    decimal.Decimal `json:"total_tax"`
}

// CalculateTaxesResponse desglose y totales del pedido.
type CalculateTaxesResponse struct {
	OrderID   string            `json:"order_id"`
	Items     []TaxBreakdownDTO `json:"items"`
	Totals    []TaxAmountDTO    `json:"totals"`
	TotalBase decimal.Decimal   `json:"total_base"`
	TotalTax  decimal.Decimal   `json:"total_tax"`
}

// EmitDocumentRequest entrada de POST /emit-document.
type EmitDocumentRequest struct {
	OrderID string `json:"order_id" validate:"required"`
	Type    string `json:"type" validate:"required,oneof=nfce nfe nfse"`
}

// FiscalDocumentResponse documento fiscal sin el XML.
type FiscalDocumentResponse struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	Type         string          `json:"type"`
	Series       int             `json:"series"`
	Number       int64           `json:"number"`
	Status       string          `json:"status"`
	EmissionType string          `json:"emission_type,omitempty"`
	AccessKey    string          `json:"access_key,omitempty"`
	Protocol     string          `json:"protocol,omitempty"`
	ReasonCode   string          `json:"reason_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	TotalTax     decimal.Decimal `json:"total_tax"`
	QRCodeData   string          `json:"qr_code_data,omitempty"`
	IssuedAt     time.Time       `json:"issued_at"`
	AuthorizedAt *time.Time      `json:"authorized_at,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// FiscalDocumentListResponse lista paginada de documentos.
type FiscalDocumentListResponse struct {
	Items []FiscalDocumentResponse `json:"items"`
	Page  PageResponse             `json:"page"`
}

// ContingencyEntryResponse entrada de la cola de contingencia.
type ContingencyEntryResponse struct {
	ID            string     `json:"id"`
	DocumentID    string     `json:"document_id"`
	UF            string     `json:"uf"`
	Model         string     `json:"model"`
	Environment   string     `json:"environment"`
	IssuedAt      time.Time  `json:"issued_at"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// RetransmitResultResponse resultado por documento de POST /contingency/retransmit.
type RetransmitResultResponse struct {
	DocumentID string `json:"document_id"`
	Outcome    string `json:"outcome,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// AuditLogResponse entrada de auditoría.
type AuditLogResponse struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entity_id"`
	Before    any       `json:"before,omitempty"`
	After     any       `json:"after,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditLogListResponse lista paginada de auditoría.
type AuditLogListResponse struct {
	Items []AuditLogResponse `json:"items"`
	Page  PageResponse       `json:"page"`
}
