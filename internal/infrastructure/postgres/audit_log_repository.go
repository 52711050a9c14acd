package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/internal/domain/repository"
)

var _ repository.AuditLogRepository = (*AuditLogRepo)(nil)

// AuditLogRepo auditoría append-only; la tabla rechaza UPDATE y DELETE con un trigger.
type AuditLogRepo struct {
	q Querier
}

// NewAuditLogRepository construye el adaptador. Pasar pool o tx (Querier).
func NewAuditLogRepository(q Querier) *AuditLogRepo {
	return &AuditLogRepo{q: q}
}

func (r *AuditLogRepo) Append(ctx context.Context, e *entity.AuditLogEntry) error {
	query := `
		INSERT INTO audit_logs (id, tenant_id, actor, action, entity, entity_id, before, after, "timestamp")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.q.Exec(ctx, query,
		e.ID, e.TenantID, e.Actor, e.Action, e.Entity, e.EntityID,
		jsonOrNil(e.Before), jsonOrNil(e.After), e.Timestamp,
	)
	if err != nil {
		return wrapConflict("append audit log", err)
	}
	return nil
}

// List más recientes primero.
func (r *AuditLogRepo) List(ctx context.Context, f repository.AuditLogFilter) ([]*entity.AuditLogEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}
	query := `
		SELECT id, tenant_id, actor, action, entity, entity_id, before, after, "timestamp"
		FROM audit_logs
		WHERE tenant_id = $1
		  AND ($2 = '' OR entity = $2)
		  AND ($3 = '' OR entity_id = $3)
		ORDER BY "timestamp" DESC, id
		LIMIT $4 OFFSET $5`
	rows, err := r.q.Query(ctx, query, f.TenantID, f.Entity, f.EntityID, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var out []*entity.AuditLogEntry
	for rows.Next() {
		var (
			e             entity.AuditLogEntry
			before, after []byte
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Actor, &e.Action, &e.Entity, &e.EntityID, &before, &after, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		e.Before = before
		e.After = after
		out = append(out, &e)
	}
	return out, rows.Err()
}

// jsonOrNil evita insertar un JSONB vacío inválido.
func jsonOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
