package repository

import (
	"context"
	"time"

	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
)

// ContingencyQueueRepository cola durable de documentos emitidos en contingencia.
type ContingencyQueueRepository interface {
	// Enqueue agrega el documento a la cola; si ya está encolado no hace nada.
	Enqueue(ctx context.Context, entry *entity.ContingencyQueueEntry) error

	// ListDue devuelve hasta limit entradas en orden FIFO por fecha de emisión original.
	ListDue(ctx context.Context, limit int) ([]*entity.ContingencyQueueEntry, error)

	// ListByTenant lista la cola de un tenant (consulta operativa).
	ListByTenant(ctx context.Context, tenantID string) ([]*entity.ContingencyQueueEntry, error)

	GetByDocumentID(ctx context.Context, documentID string) (*entity.ContingencyQueueEntry, error)

	// RecordAttempt incrementa Attempts y registra fecha y error del intento.
	RecordAttempt(ctx context.Context, id string, at time.Time, lastError string) error

	// Remove elimina la entrada (documento autorizado o rechazado).
	Remove(ctx context.Context, id string) error
}
