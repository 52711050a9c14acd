package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/pdv-fiscal/internal/domain"
	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/internal/domain/repository"
)

var _ repository.FiscalDocumentRepository = (*FiscalDocumentRepo)(nil)

// FiscalDocumentRepo implementación de FiscalDocumentRepository (usable con pool o tx).
type FiscalDocumentRepo struct {
	q Querier
}

// NewFiscalDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewFiscalDocumentRepository(q Querier) *FiscalDocumentRepo {
	return &FiscalDocumentRepo{q: q}
}

const documentColumns = `id, tenant_id, order_id, type, series, number, status, emission_type,
	access_key, canonical_xml, signed_xml, protocol, reason_code, error_message,
	total_amount, total_tax, qr_code_data, issued_at, authorized_at, cancelled_at, created_at, updated_at`

// Create inserta el documento. El índice parcial de documentos vivos traduce un segundo
// documento para el mismo pedido en domain.ErrDuplicate.
func (r *FiscalDocumentRepo) Create(ctx context.Context, doc *entity.FiscalDocument) error {
	query := `
		INSERT INTO fiscal_documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	_, err := r.q.Exec(ctx, query, documentArgs(doc)...)
	if err != nil {
		if isUniqueViolation(err) {
			if constraintName(err) == "uq_fiscal_documents_number" {
				return fmt.Errorf("número %d/%d ya usado: %w", doc.Series, doc.Number, domain.ErrConflict)
			}
			return domain.ErrDuplicate
		}
		return wrapConflict("insert fiscal document", err)
	}
	return nil
}

// Update reescribe el documento solo si el estado almacenado sigue siendo from.
func (r *FiscalDocumentRepo) Update(ctx context.Context, doc *entity.FiscalDocument, from entity.DocumentStatus) error {
	query := `
		UPDATE fiscal_documents
		SET series = $5, number = $6, status = $7, emission_type = $8,
		    access_key = $9, canonical_xml = $10, signed_xml = $11, protocol = $12,
		    reason_code = $13, error_message = $14, total_amount = $15, total_tax = $16,
		    qr_code_data = $17, issued_at = $18, authorized_at = $19, cancelled_at = $20,
		    created_at = $21, updated_at = $22
		WHERE id = $1 AND tenant_id = $2 AND status = $23`
	tag, err := r.q.Exec(ctx, query, append(documentArgs(doc), string(from))...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update fiscal document: %w", domain.ErrConflict)
		}
		return wrapConflict("update fiscal document", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var stored string
	err = r.q.QueryRow(ctx, `SELECT status FROM fiscal_documents WHERE id = $1 AND tenant_id = $2`, doc.ID, doc.TenantID).Scan(&stored)
	if err != nil {
		if isNoRows(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("read fiscal document status: %w", err)
	}
	if entity.DocumentStatus(stored).IsFinal() {
		return domain.ErrDocumentFinalized
	}
	return domain.ErrConflict
}

// GetByID devuelve nil, nil si no existe.
func (r *FiscalDocumentRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.FiscalDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM fiscal_documents WHERE tenant_id = $1 AND id = $2`
	doc, err := scanDocument(r.q.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get fiscal document: %w", err)
	}
	return doc, nil
}

// FindLiveByOrder devuelve el documento no rechazado del pedido y tipo, o nil, nil.
func (r *FiscalDocumentRepo) FindLiveByOrder(ctx context.Context, tenantID, orderID string, docType entity.DocumentType) (*entity.FiscalDocument, error) {
	query := `
		SELECT ` + documentColumns + ` FROM fiscal_documents
		WHERE tenant_id = $1 AND order_id = $2 AND type = $3 AND status <> 'rejected'
		LIMIT 1`
	doc, err := scanDocument(r.q.QueryRow(ctx, query, tenantID, orderID, string(docType)))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find live fiscal document: %w", err)
	}
	return doc, nil
}

// List filtra por tenant y opcionalmente estado y pedido; más recientes primero.
func (r *FiscalDocumentRepo) List(ctx context.Context, f repository.FiscalDocumentFilter) ([]*entity.FiscalDocument, int, error) {
	where := `WHERE tenant_id = $1
		AND ($2 = '' OR status = $2)
		AND ($3 = '' OR order_id = $3)`
	args := []any{f.TenantID, string(f.Status), f.OrderID}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM fiscal_documents `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count fiscal documents: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = total
	}
	query := `SELECT ` + documentColumns + ` FROM fiscal_documents ` + where + `
		ORDER BY created_at DESC, number DESC
		LIMIT $4 OFFSET $5`
	rows, err := r.q.Query(ctx, query, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list fiscal documents: %w", err)
	}
	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// ListStale documentos en status sin actualizar desde before.
func (r *FiscalDocumentRepo) ListStale(ctx context.Context, status entity.DocumentStatus, before time.Time, limit int) ([]*entity.FiscalDocument, error) {
	query := `
		SELECT ` + documentColumns + ` FROM fiscal_documents
		WHERE status = $1 AND updated_at < $2
		ORDER BY issued_at
		LIMIT $3`
	rows, err := r.q.Query(ctx, query, string(status), before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale %s: %w", status, err)
	}
	return collectDocuments(rows)
}

func documentArgs(d *entity.FiscalDocument) []any {
	return []any{
		d.ID, d.TenantID, d.OrderID, string(d.Type), d.Series, d.Number, string(d.Status), d.EmissionType,
		nullIfEmpty(d.AccessKey), nullIfEmpty(d.CanonicalXML), nullIfEmpty(d.SignedXML), nullIfEmpty(d.Protocol),
		nullIfEmpty(d.ReasonCode), nullIfEmpty(d.ErrorMessage),
		d.TotalAmount, d.TotalTax, nullIfEmpty(d.QRCodeData), d.IssuedAt, d.AuthorizedAt, d.CancelledAt,
		d.CreatedAt, d.UpdatedAt,
	}
}

func scanDocument(row pgx.Row) (*entity.FiscalDocument, error) {
	var (
		d                                                   entity.FiscalDocument
		docType, status                                     string
		accessKey, canonical, signed, protocol, reason, msg *string
		qr                                                  *string
	)
	err := row.Scan(
		&d.ID, &d.TenantID, &d.OrderID, &docType, &d.Series, &d.Number, &status, &d.EmissionType,
		&accessKey, &canonical, &signed, &protocol, &reason, &msg,
		&d.TotalAmount, &d.TotalTax, &qr, &d.IssuedAt, &d.AuthorizedAt, &d.CancelledAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Type = entity.DocumentType(docType)
	d.Status = entity.DocumentStatus(status)
	d.AccessKey = stringOrEmpty(accessKey)
	d.CanonicalXML = stringOrEmpty(canonical)
	d.SignedXML = stringOrEmpty(signed)
	d.Protocol = stringOrEmpty(protocol)
	d.ReasonCode = stringOrEmpty(reason)
	d.ErrorMessage = stringOrEmpty(msg)
	d.QRCodeData = stringOrEmpty(qr)
	return &d, nil
}

func collectDocuments(rows pgx.Rows) ([]*entity.FiscalDocument, error) {
	defer rows.Close()
	var out []*entity.FiscalDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fiscal document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
