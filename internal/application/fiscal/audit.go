package fiscal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
)

// documentSnapshot estado auditado del documento. Los XML no se copian: la
// auditoría registra su presencia y la chave, que identifica el contenido.
type documentSnapshot struct {
	Status       entity.DocumentStatus `json:"status"`
	Series       int                   `json:"series"`
	Number       int64                 `json:"number"`
	EmissionType string                `json:"emission_type,omitempty"`
	AccessKey    string                `json:"access_key,omitempty"`
	Protocol     string                `json:"protocol,omitempty"`
	ReasonCode   string                `json:"reason_code,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	TotalAmount  string                `json:"total_amount"`
	TotalTax     string                `json:"total_tax"`
	Signed       bool                  `json:"signed"`
	AuthorizedAt *time.Time            `json:"authorized_at,omitempty"`
}

func snapshotOf(d *entity.FiscalDocument) *documentSnapshot {
	if d == nil {
		return nil
	}
	return &documentSnapshot{
		Status:       d.Status,
		Series:       d.Series,
		Number:       d.Number,
		EmissionType: d.EmissionType,
		AccessKey:    d.AccessKey,
		Protocol:     d.Protocol,
		ReasonCode:   d.ReasonCode,
		ErrorMessage: d.ErrorMessage,
		TotalAmount:  d.TotalAmount.StringFixed(2),
		TotalTax:     d.TotalTax.StringFixed(2),
		Signed:       d.SignedXML != "",
		AuthorizedAt: d.AuthorizedAt,
	}
}

type taxSnapshot struct {
	TotalBase string `json:"total_base"`
	TotalTax  string `json:"total_tax"`
	Items     int    `json:"items"`
}

// settingsSnapshot configuración sin secretos: el certificado y el CSC nunca se auditan.
type settingsSnapshot struct {
	CNPJ               string     `json:"cnpj"`
	UF                 string     `json:"uf"`
	TaxRegime          string     `json:"tax_regime"`
	Environment        string     `json:"environment"`
	Series             int        `json:"series"`
	LastDocumentNumber int64      `json:"last_document_number"`
	CertificateRef     string     `json:"certificate_reference,omitempty"`
	CertificateExpires *time.Time `json:"certificate_expires_at,omitempty"`
	CSCConfigured      bool       `json:"csc_configured"`
	Version            int64      `json:"version"`
}

func settingsSnapshotOf(c *entity.FiscalConfiguration) *settingsSnapshot {
	if c == nil {
		return nil
	}
	return &settingsSnapshot{
		CNPJ:               c.CNPJ,
		UF:                 c.Address.UF,
		TaxRegime:          c.TaxRegime,
		Environment:        c.Environment,
		Series:             c.Series,
		LastDocumentNumber: c.LastDocumentNumber,
		CertificateRef:     c.Certificate.Reference,
		CertificateExpires: c.Certificate.ExpiresAt,
		CSCConfigured:      c.CSC != "",
		Version:            c.Version,
	}
}

func (o *EmissionOrchestrator) auditEntry(ctx context.Context, tenantID, action, entityName, entityID string, before, after any) *entity.AuditLogEntry {
	return newAuditEntry(ctx, o.now(), tenantID, action, entityName, entityID, before, after)
}

func newAuditEntry(ctx context.Context, now time.Time, tenantID, action, entityName, entityID string, before, after any) *entity.AuditLogEntry {
	return &entity.AuditLogEntry{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Actor:     ActorFrom(ctx),
		Action:    action,
		Entity:    entityName,
		EntityID:  entityID,
		Before:    rawJSON(before),
		After:     rawJSON(after),
		Timestamp: now,
	}
}

// rawJSON nil para valores ausentes; los snapshots son structs planos y no fallan al serializar.
func rawJSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case *documentSnapshot:
		if t == nil {
			return nil
		}
	case *settingsSnapshot:
		if t == nil {
			return nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
