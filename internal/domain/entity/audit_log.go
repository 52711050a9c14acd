package entity

import (
	"encoding/json"
	"time"
)

// Acciones registradas en la auditoría fiscal.
const (
	AuditActionDocumentCreated    = "fiscal_document.created"
	AuditActionDocumentTransition = "fiscal_document.transition"
	AuditActionTaxesCalculated    = "tax_breakdown.calculated"
	AuditActionSettingsUpdated    = "fiscal_settings.updated"
	AuditActionContingencyAttempt = "contingency.attempt"
)

// Entidades auditadas.
const (
	AuditEntityFiscalDocument = "fiscal_document"
	AuditEntityFiscalSettings = "fiscal_settings"
	AuditEntityOrder          = "order"
)

// AuditLogEntry registro inmutable (append-only) de un cambio de estado.
type AuditLogEntry struct {
	ID        string
	TenantID  string
	Actor     string
	Action    string
	Entity    string
	EntityID  string
	Before    json.RawMessage // snapshot previo (nil en creaciones)
	After     json.RawMessage
	Timestamp time.Time
}
