package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentType variante del documento fiscal.
type DocumentType string

// Tipos de documento fiscal.
const (
	DocumentTypeNFCe DocumentType = "nfce" // cupom de consumidor
	DocumentTypeNFe  DocumentType = "nfe"  // nota fiscal de venta
	DocumentTypeNFSe DocumentType = "nfse" // nota fiscal de servicios
)

// Valid indica si el tipo es uno de los soportados.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentTypeNFCe, DocumentTypeNFe, DocumentTypeNFSe:
		return true
	}
	return false
}

// DocumentStatus estado del ciclo de vida del documento fiscal.
type DocumentStatus string

// Estados del documento fiscal.
const (
	StatusPending      DocumentStatus = "pending"      // creado, número reservado
	StatusSigning      DocumentStatus = "signing"      // documento canónico construido, firmando
	StatusTransmitting DocumentStatus = "transmitting" // firmado, enviado a la SEFAZ
	StatusAuthorized   DocumentStatus = "authorized"   // autorizado por la SEFAZ
	StatusRejected     DocumentStatus = "rejected"     // rechazado por la SEFAZ (terminal)
	StatusContingency  DocumentStatus = "contingency"  // emitido en contingencia, en cola
	StatusCancelled    DocumentStatus = "cancelled"    // cancelado tras la autorización
)

// transitions aristas permitidas de la máquina de estados.
var transitions = map[DocumentStatus][]DocumentStatus{
	StatusPending:      {StatusSigning},
	StatusSigning:      {StatusTransmitting, StatusPending},
	StatusTransmitting: {StatusAuthorized, StatusRejected, StatusContingency},
	StatusContingency:  {StatusTransmitting},
	StatusAuthorized:   {StatusCancelled},
}

// CanTransition indica si la arista from → to existe en la máquina de estados.
func CanTransition(from, to DocumentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsFinal indica que el documento ya no admite cambios (salvo auditoría).
func (s DocumentStatus) IsFinal() bool {
	return s == StatusAuthorized || s == StatusRejected || s == StatusCancelled
}

// IsLive indica si el documento bloquea la emisión de otro para el mismo pedido y tipo.
func (s DocumentStatus) IsLive() bool {
	return s != StatusRejected
}

// FiscalDocument documento fiscal emitido para un pedido.
type FiscalDocument struct {
	ID           string
	TenantID     string
	OrderID      string
	Type         DocumentType
	Series       int
	Number       int64
	Status       DocumentStatus
	EmissionType string // tpEmis: "1" normal, "9" off-line NFC-e, "5" FS-DA NF-e
	AccessKey    string // chave de acesso de 44 dígitos; vacía hasta que se asigna
	CanonicalXML string // documento canónico (sin firma)
	SignedXML    string // documento firmado
	Protocol     string // número de protocolo de autorización
	ReasonCode   string // cStat del rechazo
	ErrorMessage string // xMotivo o detalle del último error
	TotalAmount  decimal.Decimal
	TotalTax     decimal.Decimal
	QRCodeData   string
	IssuedAt     time.Time
	AuthorizedAt *time.Time
	CancelledAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TransitionTo aplica una arista de la máquina de estados.
func (d *FiscalDocument) TransitionTo(to DocumentStatus, now time.Time) error {
	if !CanTransition(d.Status, to) {
		return fmt.Errorf("documento %s: %s → %s no permitido", d.ID, d.Status, to)
	}
	d.Status = to
	d.UpdatedAt = now
	return nil
}

// Clone copia superficial usada para los snapshots de auditoría.
func (d *FiscalDocument) Clone() *FiscalDocument {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
