// Package memory implementa los repositorios fiscales en memoria. Se usa en tests y en
// modo desarrollo sin base de datos; respeta las mismas garantías que el adaptador
// PostgreSQL (unicidad del documento vivo, numeración atómica, transacciones con rollback).
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jhoicas/pdv-fiscal/internal/application/fiscal"
	"github.com/jhoicas/pdv-fiscal/internal/domain"
	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/internal/domain/repository"
)

var _ fiscal.FiscalTxRunner = (*Store)(nil)

// Store estado compartido por todos los repositorios en memoria.
type Store struct {
	mu sync.Mutex

	configs map[string]*entity.FiscalConfiguration
	orders  map[string]*entity.Order
	taxes   map[string][]entity.TaxBreakdown
	docs    map[string]*entity.FiscalDocument
	queue   map[string]*entity.ContingencyQueueEntry
	audit   []*entity.AuditLogEntry

	txFailures []error
}

// NewStore crea un store vacío.
func NewStore() *Store {
	return &Store{
		configs: make(map[string]*entity.FiscalConfiguration),
		orders:  make(map[string]*entity.Order),
		taxes:   make(map[string][]entity.TaxBreakdown),
		docs:    make(map[string]*entity.FiscalDocument),
		queue:   make(map[string]*entity.ContingencyQueueEntry),
	}
}

// PutOrder registra un pedido (los pedidos los escribe el PDV, fuera del núcleo fiscal).
func (s *Store) PutOrder(o *entity.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *o
	c.Items = append([]entity.OrderItem(nil), o.Items...)
	s.orders[orderKey(o.TenantID, o.ID)] = &c
}

// PutConfiguration registra la configuración sin control de versión (fixtures).
func (s *Store) PutConfiguration(cfg *entity.FiscalConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneConfig(cfg)
	if c.Version == 0 {
		c.Version = 1
	}
	s.configs[cfg.TenantID] = c
}

// FailNextTransactions hace que las próximas transacciones fallen con los errores dados,
// en orden, antes de ejecutar fn.
func (s *Store) FailNextTransactions(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txFailures = append(s.txFailures, errs...)
}

// Configurations repositorio de configuración fuera de transacción.
func (s *Store) Configurations() repository.FiscalConfigurationRepository {
	return &configRepo{s: s}
}

// Orders repositorio de pedidos.
func (s *Store) Orders() repository.OrderRepository { return &orderRepo{s: s} }

// TaxBreakdowns repositorio del desglose tributario.
func (s *Store) TaxBreakdowns() repository.TaxBreakdownRepository { return &taxRepo{s: s} }

// Documents repositorio de documentos fuera de transacción.
func (s *Store) Documents() repository.FiscalDocumentRepository { return &docRepo{s: s} }

// Queue repositorio de la cola de contingencia fuera de transacción.
func (s *Store) Queue() repository.ContingencyQueueRepository { return &queueRepo{s: s} }

// AuditLogs repositorio de auditoría fuera de transacción.
func (s *Store) AuditLogs() repository.AuditLogRepository { return &auditRepo{s: s} }

// RunFiscal ejecuta fn con el store bloqueado. Si fn falla se restaura el estado previo.
func (s *Store) RunFiscal(ctx context.Context, fn func(
	cfgRepo repository.FiscalConfigurationRepository,
	docRepo repository.FiscalDocumentRepository,
	queueRepo repository.ContingencyQueueRepository,
	auditRepo repository.AuditLogRepository,
) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.txFailures) > 0 {
		err := s.txFailures[0]
		s.txFailures = s.txFailures[1:]
		return err
	}

	snap := s.snapshot()
	err := fn(
		&configRepo{s: s, locked: true},
		&docRepo{s: s, locked: true},
		&queueRepo{s: s, locked: true},
		&auditRepo{s: s, locked: true},
	)
	if err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type storeSnapshot struct {
	configs map[string]*entity.FiscalConfiguration
	docs    map[string]*entity.FiscalDocument
	queue   map[string]*entity.ContingencyQueueEntry
	audit   []*entity.AuditLogEntry
}

// snapshot los valores se reemplazan completos en cada escritura, basta copiar los mapas.
func (s *Store) snapshot() storeSnapshot {
	snap := storeSnapshot{
		configs: make(map[string]*entity.FiscalConfiguration, len(s.configs)),
		docs:    make(map[string]*entity.FiscalDocument, len(s.docs)),
		queue:   make(map[string]*entity.ContingencyQueueEntry, len(s.queue)),
		audit:   append([]*entity.AuditLogEntry(nil), s.audit...),
	}
	for k, v := range s.configs {
		snap.configs[k] = v
	}
	for k, v := range s.docs {
		snap.docs[k] = v
	}
	for k, v := range s.queue {
		snap.queue[k] = v
	}
	return snap
}

func (s *Store) restore(snap storeSnapshot) {
	s.configs = snap.configs
	s.docs = snap.docs
	s.queue = snap.queue
	s.audit = snap.audit
}

// lock bloquea el store salvo que la operación corra dentro de RunFiscal.
func (s *Store) lock(locked bool) func() {
	if locked {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func orderKey(tenantID, orderID string) string { return tenantID + "/" + orderID }

func cloneConfig(c *entity.FiscalConfiguration) *entity.FiscalConfiguration {
	if c == nil {
		return nil
	}
	out := *c
	out.TaxRules = append([]entity.TaxRule(nil), c.TaxRules...)
	out.Certificate.PKCS12 = append([]byte(nil), c.Certificate.PKCS12...)
	return &out
}

// ── configuración ─────────────────────────────────────────────────────────────

type configRepo struct {
	s      *Store
	locked bool
}

func (r *configRepo) GetByTenant(_ context.Context, tenantID string) (*entity.FiscalConfiguration, error) {
	defer r.s.lock(r.locked)()
	return cloneConfig(r.s.configs[tenantID]), nil
}

func (r *configRepo) Save(_ context.Context, cfg *entity.FiscalConfiguration) error {
	defer r.s.lock(r.locked)()
	stored := r.s.configs[cfg.TenantID]
	if stored != nil && stored.Version != cfg.Version {
		return domain.ErrStaleConfiguration
	}
	if stored == nil && cfg.Version != 0 {
		return domain.ErrStaleConfiguration
	}
	next := cloneConfig(cfg)
	if stored != nil && stored.LastDocumentNumber > next.LastDocumentNumber {
		next.LastDocumentNumber = stored.LastDocumentNumber
	}
	next.Version = cfg.Version + 1
	r.s.configs[cfg.TenantID] = next
	cfg.Version = next.Version
	cfg.LastDocumentNumber = next.LastDocumentNumber
	return nil
}

func (r *configRepo) NextDocumentNumber(_ context.Context, tenantID string) (int, int64, error) {
	defer r.s.lock(r.locked)()
	stored := r.s.configs[tenantID]
	if stored == nil {
		return 0, 0, domain.ErrConfigurationMissing
	}
	next := cloneConfig(stored)
	next.LastDocumentNumber++
	r.s.configs[tenantID] = next
	return next.Series, next.LastDocumentNumber, nil
}

func (r *configRepo) ListTenants(_ context.Context) ([]string, error) {
	defer r.s.lock(r.locked)()
	out := make([]string, 0, len(r.s.configs))
	for k := range r.s.configs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// ── pedidos y desglose ────────────────────────────────────────────────────────

type orderRepo struct{ s *Store }

func (r *orderRepo) GetByID(_ context.Context, tenantID, orderID string) (*entity.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[orderKey(tenantID, orderID)]
	if !ok {
		return nil, nil
	}
	c := *o
	c.Items = append([]entity.OrderItem(nil), o.Items...)
	return &c, nil
}

type taxRepo struct{ s *Store }

func (r *taxRepo) Upsert(_ context.Context, tenantID string, breakdowns []entity.TaxBreakdown) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byOrder := make(map[string][]entity.TaxBreakdown)
	for _, b := range breakdowns {
		byOrder[b.OrderID] = append(byOrder[b.OrderID], b)
	}
	for orderID, rows := range byOrder {
		key := orderKey(tenantID, orderID)
		existing := r.s.taxes[key]
		for _, row := range rows {
			replaced := false
			for i := range existing {
				if existing[i].OrderItemID == row.OrderItemID {
					existing[i] = row
					replaced = true
				}
			}
			if !replaced {
				existing = append(existing, row)
			}
		}
		r.s.taxes[key] = existing
	}
	return nil
}

func (r *taxRepo) ListByOrder(_ context.Context, tenantID, orderID string) ([]entity.TaxBreakdown, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]entity.TaxBreakdown(nil), r.s.taxes[orderKey(tenantID, orderID)]...), nil
}

// ── documentos ────────────────────────────────────────────────────────────────

type docRepo struct {
	s      *Store
	locked bool
}

func (r *docRepo) Create(_ context.Context, doc *entity.FiscalDocument) error {
	defer r.s.lock(r.locked)()
	if _, ok := r.s.docs[doc.ID]; ok {
		return domain.ErrDuplicate
	}
	for _, d := range r.s.docs {
		if d.TenantID == doc.TenantID && d.OrderID == doc.OrderID && d.Type == doc.Type && d.Status.IsLive() {
			return domain.ErrDuplicate
		}
		if d.TenantID == doc.TenantID && d.Type == doc.Type && d.Series == doc.Series && d.Number == doc.Number {
			return domain.ErrConflict
		}
	}
	r.s.docs[doc.ID] = doc.Clone()
	return nil
}

func (r *docRepo) Update(_ context.Context, doc *entity.FiscalDocument, from entity.DocumentStatus) error {
	defer r.s.lock(r.locked)()
	stored, ok := r.s.docs[doc.ID]
	if !ok || stored.TenantID != doc.TenantID {
		return domain.ErrNotFound
	}
	if stored.Status.IsFinal() && stored.Status != from {
		return domain.ErrDocumentFinalized
	}
	if stored.Status != from {
		return domain.ErrConflict
	}
	if stored.Status.IsFinal() && !entity.CanTransition(stored.Status, doc.Status) {
		return domain.ErrDocumentFinalized
	}
	r.s.docs[doc.ID] = doc.Clone()
	return nil
}

func (r *docRepo) GetByID(_ context.Context, tenantID, id string) (*entity.FiscalDocument, error) {
	defer r.s.lock(r.locked)()
	d, ok := r.s.docs[id]
	if !ok || d.TenantID != tenantID {
		return nil, nil
	}
	return d.Clone(), nil
}

func (r *docRepo) FindLiveByOrder(_ context.Context, tenantID, orderID string, docType entity.DocumentType) (*entity.FiscalDocument, error) {
	defer r.s.lock(r.locked)()
	for _, d := range r.s.docs {
		if d.TenantID == tenantID && d.OrderID == orderID && d.Type == docType && d.Status.IsLive() {
			return d.Clone(), nil
		}
	}
	return nil, nil
}

func (r *docRepo) List(_ context.Context, f repository.FiscalDocumentFilter) ([]*entity.FiscalDocument, int, error) {
	defer r.s.lock(r.locked)()
	var out []*entity.FiscalDocument
	for _, d := range r.s.docs {
		if d.TenantID != f.TenantID {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if f.OrderID != "" && d.OrderID != f.OrderID {
			continue
		}
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Number > out[j].Number
	})
	total := len(out)
	return paginate(out, f.Limit, f.Offset), total, nil
}

func (r *docRepo) ListStale(_ context.Context, status entity.DocumentStatus, before time.Time, limit int) ([]*entity.FiscalDocument, error) {
	defer r.s.lock(r.locked)()
	var out []*entity.FiscalDocument
	for _, d := range r.s.docs {
		if d.Status == status && d.UpdatedAt.Before(before) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return paginate(out, limit, 0), nil
}

// ── cola de contingencia ──────────────────────────────────────────────────────

type queueRepo struct {
	s      *Store
	locked bool
}

func (r *queueRepo) Enqueue(_ context.Context, entry *entity.ContingencyQueueEntry) error {
	defer r.s.lock(r.locked)()
	for _, e := range r.s.queue {
		if e.DocumentID == entry.DocumentID {
			return nil
		}
	}
	c := *entry
	r.s.queue[entry.ID] = &c
	return nil
}

func (r *queueRepo) ListDue(_ context.Context, limit int) ([]*entity.ContingencyQueueEntry, error) {
	defer r.s.lock(r.locked)()
	return paginate(r.s.sortedQueue(""), limit, 0), nil
}

func (r *queueRepo) ListByTenant(_ context.Context, tenantID string) ([]*entity.ContingencyQueueEntry, error) {
	defer r.s.lock(r.locked)()
	return r.s.sortedQueue(tenantID), nil
}

func (r *queueRepo) GetByDocumentID(_ context.Context, documentID string) (*entity.ContingencyQueueEntry, error) {
	defer r.s.lock(r.locked)()
	for _, e := range r.s.queue {
		if e.DocumentID == documentID {
			c := *e
			return &c, nil
		}
	}
	return nil, nil
}

func (r *queueRepo) RecordAttempt(_ context.Context, id string, at time.Time, lastError string) error {
	defer r.s.lock(r.locked)()
	e, ok := r.s.queue[id]
	if !ok {
		return nil
	}
	c := *e
	c.Attempts++
	c.LastAttemptAt = &at
	c.LastError = lastError
	r.s.queue[id] = &c
	return nil
}

func (r *queueRepo) Remove(_ context.Context, id string) error {
	defer r.s.lock(r.locked)()
	delete(r.s.queue, id)
	return nil
}

func (s *Store) sortedQueue(tenantID string) []*entity.ContingencyQueueEntry {
	out := make([]*entity.ContingencyQueueEntry, 0, len(s.queue))
	for _, e := range s.queue {
		if tenantID != "" && e.TenantID != tenantID {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.Before(out[j].IssuedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ── auditoría ─────────────────────────────────────────────────────────────────

type auditRepo struct {
	s      *Store
	locked bool
}

func (r *auditRepo) Append(_ context.Context, entry *entity.AuditLogEntry) error {
	defer r.s.lock(r.locked)()
	c := *entry
	r.s.audit = append(r.s.audit, &c)
	return nil
}

// List más reciente primero.
func (r *auditRepo) List(_ context.Context, f repository.AuditLogFilter) ([]*entity.AuditLogEntry, error) {
	defer r.s.lock(r.locked)()
	var out []*entity.AuditLogEntry
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		e := r.s.audit[i]
		if f.TenantID != "" && e.TenantID != f.TenantID {
			continue
		}
		if f.Entity != "" && !strings.EqualFold(e.Entity, f.Entity) {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return paginate(out, f.Limit, f.Offset), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
