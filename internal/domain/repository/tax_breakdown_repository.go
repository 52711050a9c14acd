package repository

import (
	"context"

	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
)

// TaxBreakdownRepository persiste el desglose tributario por línea (evidencia de auditoría).
type TaxBreakdownRepository interface {
	// Upsert guarda una fila por línea y tributo; recalcular el mismo pedido sobrescribe
	// con los mismos valores.
	Upsert(ctx context.Context, tenantID string, breakdowns []entity.TaxBreakdown) error
	ListByOrder(ctx context.Context, tenantID, orderID string) ([]entity.TaxBreakdown, error)
}
