// Package fiscal orquesta la emisión de documentos fiscales: cálculo de tributos,
// numeración, construcción, firma, transmisión a la SEFAZ y cola de contingencia.
package fiscal

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/internal/domain/repository"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/sefaz/signer"
)

// FiscalTxRunner ejecuta fn dentro de una transacción con los repos fiscales atados a ella.
// Los errores de serialización/deadlock se devuelven envueltos en domain.ErrConflict.
type FiscalTxRunner interface {
	RunFiscal(ctx context.Context, fn func(
		cfgRepo repository.FiscalConfigurationRepository,
		docRepo repository.FiscalDocumentRepository,
		queueRepo repository.ContingencyQueueRepository,
		auditRepo repository.AuditLogRepository,
	) error) error
}

// MetricsRecorder métricas del núcleo fiscal. La implementación Prometheus vive en
// infrastructure/metrics.
type MetricsRecorder interface {
	ObserveEmission(docType entity.DocumentType, status entity.DocumentStatus)
	ObserveTransmission(outcome string, elapsed time.Duration)
	ObserveContingencyAttempt(outcome string)
	SetContingencyBacklog(n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveEmission(entity.DocumentType, entity.DocumentStatus) {}
func (nopMetrics) ObserveTransmission(string, time.Duration) {}
func (nopMetrics) ObserveContingencyAttempt(string) {}
func (nopMetrics) SetContingencyBacklog(int) {}

// Locker lock distribuido para que un solo proceso barra la cola a la vez.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// CredentialLoader decodifica el certificado almacenado en la configuración.
type CredentialLoader func(material entity.CertificateMaterial, now time.Time) (tls.Certificate, error)

// DefaultCredentialLoader usa el cargador PKCS#12/PEM del firmador.
func DefaultCredentialLoader(material entity.CertificateMaterial, now time.Time) (tls.Certificate, error) {
	return signer.LoadCredential(material.PKCS12, material.Password, now)
}
