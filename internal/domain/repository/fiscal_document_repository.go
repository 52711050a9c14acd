package repository

import (
	"context"
	"time"

	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
)

// FiscalDocumentFilter criterios de listado de documentos.
type FiscalDocumentFilter struct {
	TenantID string
	Status   entity.DocumentStatus // vacío = todos
	OrderID  string
	Limit    int
	Offset   int
}

// FiscalDocumentRepository puerto de persistencia de documentos fiscales.
type FiscalDocumentRepository interface {
	// Create inserta el documento. Devuelve domain.ErrDuplicate si ya existe otro
	// documento vivo (no rechazado) para el mismo pedido y tipo.
	Create(ctx context.Context, doc *entity.FiscalDocument) error

	// Update persiste el documento si el estado almacenado sigue siendo from. Devuelve
	// domain.ErrDocumentFinalized si la fila ya está en estado final y domain.ErrConflict
	// si otro proceso cambió el estado antes.
	Update(ctx context.Context, doc *entity.FiscalDocument, from entity.DocumentStatus) error

	// GetByID devuelve nil, nil si no existe.
	GetByID(ctx context.Context, tenantID, id string) (*entity.FiscalDocument, error)

	// FindLiveByOrder devuelve el documento no rechazado del pedido y tipo, o nil, nil.
	FindLiveByOrder(ctx context.Context, tenantID, orderID string, docType entity.DocumentType) (*entity.FiscalDocument, error)

	List(ctx context.Context, filter FiscalDocumentFilter) ([]*entity.FiscalDocument, int, error)

	// ListStale devuelve documentos en status sin actualizar desde before (firma o
	// transmisión interrumpida por cancelación o caída del proceso).
	ListStale(ctx context.Context, status entity.DocumentStatus, before time.Time, limit int) ([]*entity.FiscalDocument, error)
}
