package fiscal

import (
	"context"
	"encoding/json"

	"github.com/jhoicas/pdv-fiscal/internal/application/dto"
	"github.com/jhoicas/pdv-fiscal/internal/domain"
	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	domfiscal "github.com/jhoicas/pdv-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/pdv-fiscal/internal/domain/repository"
)

// QueryUseCase consultas de solo lectura sobre documentos, cola y auditoría.
type QueryUseCase struct {
	docs  repository.FiscalDocumentRepository
	queue repository.ContingencyQueueRepository
	audit repository.AuditLogRepository
}

// NewQueryUseCase construye el caso de uso.
func NewQueryUseCase(docs repository.FiscalDocumentRepository, queue repository.ContingencyQueueRepository, audit repository.AuditLogRepository) *QueryUseCase {
	return &QueryUseCase{docs: docs, queue: queue, audit: audit}
}

// GetDocument devuelve el documento del tenant o domain.ErrNotFound.
func (uc *QueryUseCase) GetDocument(ctx context.Context, tenantID, id string) (*dto.FiscalDocumentResponse, error) {
	doc, err := uc.getDocument(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return DocumentToResponse(doc), nil
}

// GetDocumentXML devuelve el XML firmado (o el canónico si aún no se firmó).
func (uc *QueryUseCase) GetDocumentXML(ctx context.Context, tenantID, id string) ([]byte, error) {
	doc, err := uc.getDocument(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if doc.SignedXML != "" {
		return []byte(doc.SignedXML), nil
	}
	if doc.CanonicalXML != "" {
		return []byte(doc.CanonicalXML), nil
	}
	return nil, domain.ErrNotFound
}

func (uc *QueryUseCase) getDocument(ctx context.Context, tenantID, id string) (*entity.FiscalDocument, error) {
	doc, err := uc.docs.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

// ListDocuments lista documentos con filtro de estado y paginación.
func (uc *QueryUseCase) ListDocuments(ctx context.Context, tenantID string, status entity.DocumentStatus, page dto.PageRequest) (*dto.FiscalDocumentListResponse, error) {
	page.DefaultPage()
	list, total, err := uc.docs.List(ctx, repository.FiscalDocumentFilter{
		TenantID: tenantID,
		Status:   status,
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
	if err != nil {
		return nil, err
	}
	items := make([]dto.FiscalDocumentResponse, 0, len(list))
	for _, d := range list {
		items = append(items, *DocumentToResponse(d))
	}
	return &dto.FiscalDocumentListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset, Total: total},
	}, nil
}

// ListContingency cola de contingencia del tenant en orden FIFO.
func (uc *QueryUseCase) ListContingency(ctx context.Context, tenantID string) ([]dto.ContingencyEntryResponse, error) {
	entries, err := uc.queue.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.ContingencyEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.ContingencyEntryResponse{
			ID:            e.ID,
			DocumentID:    e.DocumentID,
			UF:            e.UF,
			Model:         e.Model,
			Environment:   e.Environment,
			IssuedAt:      e.IssuedAt,
			Attempts:      e.Attempts,
			LastAttemptAt: e.LastAttemptAt,
			LastError:     e.LastError,
		})
	}
	return out, nil
}

// ListAuditLogs auditoría del tenant, más reciente primero.
func (uc *QueryUseCase) ListAuditLogs(ctx context.Context, tenantID, entityName, entityID string, page dto.PageRequest) (*dto.AuditLogListResponse, error) {
	page.DefaultPage()
	list, err := uc.audit.List(ctx, repository.AuditLogFilter{
		TenantID: tenantID,
		Entity:   entityName,
		EntityID: entityID,
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
	if err != nil {
		return nil, err
	}
	items := make([]dto.AuditLogResponse, 0, len(list))
	for _, e := range list {
		items = append(items, dto.AuditLogResponse{
			ID:        e.ID,
			Actor:     e.Actor,
			Action:    e.Action,
			Entity:    e.Entity,
			EntityID:  e.EntityID,
			Before:    rawOrNil(e.Before),
			After:     rawOrNil(e.After),
			Timestamp: e.Timestamp,
		})
	}
	return &dto.AuditLogListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset},
	}, nil
}

func rawOrNil(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// DocumentToResponse vista pública del documento (sin XML).
func DocumentToResponse(d *entity.FiscalDocument) *dto.FiscalDocumentResponse {
	if d == nil {
		return nil
	}
	return &dto.FiscalDocumentResponse{
		ID:           d.ID,
		OrderID:      d.OrderID,
		Type:         string(d.Type),
		Series:       d.Series,
		Number:       d.Number,
		Status:       string(d.Status),
		EmissionType: d.EmissionType,
		AccessKey:    d.AccessKey,
		Protocol:     d.Protocol,
		ReasonCode:   d.ReasonCode,
		ErrorMessage: d.ErrorMessage,
		TotalAmount:  d.TotalAmount,
		TotalTax:     d.TotalTax,
		QRCodeData:   d.QRCodeData,
		IssuedAt:     d.IssuedAt,
		AuthorizedAt: d.AuthorizedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// TaxResultToResponse vista pública del cálculo tributario.
func TaxResultToResponse(orderID string, r *domfiscal.TaxResult) *dto.CalculateTaxesResponse {
	items := make([]dto.TaxBreakdownDTO, 0, len(r.Items))
	for _, b := range r.Items {
		taxes := make([]dto.TaxAmountDTO, 0, len(b.Taxes))
		for _, t := range b.Taxes {
			taxes = append(taxes, dto.TaxAmountDTO{Kind: string(t.Kind), Rate: t.Rate, Amount: t.Amount})
		}
		items = append(items, dto.TaxBreakdownDTO{
			OrderItemID: b.OrderItemID,
			ProductID:   b.ProductID,
			Base:        b.Base,
			Taxes:       taxes,
			TotalTax:    b.TotalTax,
		})
	}
	totals := make([]dto.TaxAmountDTO, 0, len(r.ByKind))
	for _, t := range r.ByKind {
		totals = append(totals, dto.TaxAmountDTO{Kind: string(t.Kind), Rate: t.Rate, Amount: t.Amount})
	}
	return &dto.CalculateTaxesResponse{
		OrderID:   orderID,
		Items:     items,
		Totals:    totals,
		TotalBase: r.TotalBase,
		TotalTax:  r.TotalTax,
	}
}
