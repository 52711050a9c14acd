package repository

import (
	"context"

	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
)

// FiscalConfigurationRepository puerto de persistencia de la configuración fiscal del emisor.
type FiscalConfigurationRepository interface {
	// GetByTenant devuelve nil, nil si el tenant no tiene configuración.
	GetByTenant(ctx context.Context, tenantID string) (*entity.FiscalConfiguration, error)

	// Save crea o actualiza la configuración comparando Version (compare-and-swap).
	// Devuelve domain.ErrStaleConfiguration si otra operación la modificó antes.
	Save(ctx context.Context, cfg *entity.FiscalConfiguration) error

	// NextDocumentNumber incrementa atómicamente LastDocumentNumber y devuelve la serie
	// y el número reservado. Nunca devuelve un número ya entregado.
	NextDocumentNumber(ctx context.Context, tenantID string) (series int, number int64, err error)

	// ListTenants devuelve los tenants con configuración registrada.
	ListTenants(ctx context.Context) ([]string, error)
}
