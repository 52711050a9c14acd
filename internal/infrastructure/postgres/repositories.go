package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories adaptadores fiscales atados al pool (fuera de transacción).
type Repositories struct {
	Configurations *FiscalConfigurationRepo
	Orders         *OrderRepo
	TaxBreakdowns  *TaxBreakdownRepo
	Documents      *FiscalDocumentRepo
	Queue          *ContingencyQueueRepo
	AuditLogs      *AuditLogRepo
	Tx             *TxRunner
}

// NewRepositories construye todos los repos sobre el pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Configurations: NewFiscalConfigurationRepository(pool),
		Orders:         NewOrderRepository(pool),
		TaxBreakdowns:  NewTaxBreakdownRepository(pool),
		Documents:      NewFiscalDocumentRepository(pool),
		Queue:          NewContingencyQueueRepository(pool),
		AuditLogs:      NewAuditLogRepository(pool),
		Tx:             NewTxRunner(pool),
	}
}
