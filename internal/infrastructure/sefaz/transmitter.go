package sefaz

import (
	"context"
	"time"
)

// OutcomeKind resultado de una interacción con la SEFAZ.
type OutcomeKind string

// Resultados posibles.
const (
	OutcomeAccepted    OutcomeKind = "accepted"    // autorizado: chave y protocolo
	OutcomeRejected    OutcomeKind = "rejected"    // rechazo síncrono (cStat + xMotivo)
	OutcomeUnreachable OutcomeKind = "unreachable" // sin respuesta utilizable: contingencia
	OutcomeNotFound    OutcomeKind = "not_found"   // consulta: la SEFAZ no conoce la chave
)

// Outcome respuesta de la SEFAZ reducida a lo que consume el orquestador.
type Outcome struct {
	Kind         OutcomeKind
	AccessKey    string
	Protocol     string
	AuthorizedAt *time.Time
	ReasonCode   string // cStat
	ReasonText   string // xMotivo
	Detail       string // causa técnica cuando Kind == unreachable
}

// Accepted construye un resultado de autorización.
func Accepted(accessKey, protocol string, at *time.Time) Outcome {
	return Outcome{Kind: OutcomeAccepted, AccessKey: accessKey, Protocol: protocol, AuthorizedAt: at}
}

// Rejected construye un rechazo.
func Rejected(code, text string) Outcome {
	return Outcome{Kind: OutcomeRejected, ReasonCode: code, ReasonText: text}
}

// Unreachable construye un resultado de falla de comunicación.
func Unreachable(detail string) Outcome {
	return Outcome{Kind: OutcomeUnreachable, Detail: detail}
}

// Message texto legible del resultado para logs y auditoría.
func (o Outcome) Message() string {
	switch o.Kind {
	case OutcomeRejected:
		return o.ReasonCode + " " + o.ReasonText
	case OutcomeUnreachable:
		return o.Detail
	case OutcomeAccepted:
		return "protocolo " + o.Protocol
	}
	return string(o.Kind)
}

// Transmitter envía un documento firmado a la SEFAZ. No reintenta: los reintentos son
// responsabilidad de la cola de contingencia.
type Transmitter interface {
	Submit(ctx context.Context, signed []byte, endpoint Endpoint) Outcome
}

// StatusQuerier consulta la situación de una chave (NFeConsultaProtocolo4).
type StatusQuerier interface {
	QueryStatus(ctx context.Context, accessKey string, endpoint Endpoint) Outcome
}
