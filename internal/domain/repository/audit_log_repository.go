package repository

import (
	"context"

	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
)

// AuditLogFilter criterios de consulta de la auditoría.
type AuditLogFilter struct {
	TenantID string
	Entity   string
	EntityID string
	Limit    int
	Offset   int
}

// AuditLogRepository auditoría append-only: no existen operaciones de update ni delete.
type AuditLogRepository interface {
	Append(ctx context.Context, entry *entity.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) ([]*entity.AuditLogEntry, error)
}
