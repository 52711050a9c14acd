package entity

import "time"

// ContingencyQueueEntry documento emitido sin conexión con la SEFAZ, pendiente de retransmisión.
// Se elimina cuando la SEFAZ autoriza o rechaza el documento.
type ContingencyQueueEntry struct {
	ID            string
	TenantID      string
	DocumentID    string
	UF            string
	Model         string
	Environment   string
	IssuedAt      time.Time // orden FIFO del barrido
	Attempts      int
	LastAttemptAt *time.Time
	LastError     string
	CreatedAt     time.Time
}
