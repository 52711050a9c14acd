package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/internal/domain/repository"
)

var _ repository.ContingencyQueueRepository = (*ContingencyQueueRepo)(nil)

// ContingencyQueueRepo cola de contingencia persistida en la tabla contingency_queue.
type ContingencyQueueRepo struct {
	q Querier
}

// NewContingencyQueueRepository construye el adaptador. Pasar pool o tx (Querier).
func NewContingencyQueueRepository(q Querier) *ContingencyQueueRepo {
	return &ContingencyQueueRepo{q: q}
}

const queueColumns = `id, tenant_id, document_id, uf, model, environment, issued_at,
	attempts, last_attempt_at, last_error, created_at`

// Enqueue es idempotente por documento.
func (r *ContingencyQueueRepo) Enqueue(ctx context.Context, e *entity.ContingencyQueueEntry) error {
	query := `
		INSERT INTO contingency_queue (` + queueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (document_id) DO NOTHING`
	_, err := r.q.Exec(ctx, query,
		e.ID, e.TenantID, e.DocumentID, e.UF, e.Model, e.Environment, e.IssuedAt,
		e.Attempts, e.LastAttemptAt, e.LastError, e.CreatedAt,
	)
	if err != nil {
		return wrapConflict("enqueue contingency", err)
	}
	return nil
}

// ListDue entradas en orden FIFO por fecha de emisión original.
func (r *ContingencyQueueRepo) ListDue(ctx context.Context, limit int) ([]*entity.ContingencyQueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM contingency_queue ORDER BY issued_at, created_at LIMIT $1`
	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list contingency queue: %w", err)
	}
	return collectQueue(rows)
}

func (r *ContingencyQueueRepo) ListByTenant(ctx context.Context, tenantID string) ([]*entity.ContingencyQueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM contingency_queue WHERE tenant_id = $1 ORDER BY issued_at, created_at`
	rows, err := r.q.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list contingency queue by tenant: %w", err)
	}
	return collectQueue(rows)
}

func (r *ContingencyQueueRepo) GetByDocumentID(ctx context.Context, documentID string) (*entity.ContingencyQueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM contingency_queue WHERE document_id = $1`
	e, err := scanQueueEntry(r.q.QueryRow(ctx, query, documentID))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get contingency entry: %w", err)
	}
	return e, nil
}

// RecordAttempt no falla si la entrada ya fue eliminada por otro proceso.
func (r *ContingencyQueueRepo) RecordAttempt(ctx context.Context, id string, at time.Time, lastError string) error {
	query := `
		UPDATE contingency_queue
		SET attempts = attempts + 1, last_attempt_at = $2, last_error = $3
		WHERE id = $1`
	if _, err := r.q.Exec(ctx, query, id, at, lastError); err != nil {
		return wrapConflict("record contingency attempt", err)
	}
	return nil
}

func (r *ContingencyQueueRepo) Remove(ctx context.Context, id string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM contingency_queue WHERE id = $1`, id); err != nil {
		return wrapConflict("remove contingency entry", err)
	}
	return nil
}

func scanQueueEntry(row pgx.Row) (*entity.ContingencyQueueEntry, error) {
	var e entity.ContingencyQueueEntry
	err := row.Scan(
		&e.ID, &e.TenantID, &e.DocumentID, &e.UF, &e.Model, &e.Environment, &e.IssuedAt,
		&e.Attempts, &e.LastAttemptAt, &e.LastError, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectQueue(rows pgx.Rows) ([]*entity.ContingencyQueueEntry, error) {
	defer rows.Close()
	var out []*entity.ContingencyQueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contingency entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
