package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/pdv-fiscal/internal/application/fiscal"
	"github.com/jhoicas/pdv-fiscal/internal/domain/repository"
)

var _ fiscal.FiscalTxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunFiscal inicia una transacción, ejecuta fn con los repos fiscales atados a la tx y hace
// Commit o Rollback. Serialización y deadlock se devuelven como domain.ErrConflict.
func (r *TxRunner) RunFiscal(ctx context.Context, fn func(
	cfgRepo repository.FiscalConfigurationRepository,
	docRepo repository.FiscalDocumentRepository,
	queueRepo repository.ContingencyQueueRepository,
	auditRepo repository.AuditLogRepository,
) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	cfgRepo := NewFiscalConfigurationRepository(tx)
	docRepo := NewFiscalDocumentRepository(tx)
	queueRepo := NewContingencyQueueRepository(tx)
	auditRepo := NewAuditLogRepository(tx)

	if err := fn(cfgRepo, docRepo, queueRepo, auditRepo); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapConflict("commit transaction", err)
	}
	return nil
}
