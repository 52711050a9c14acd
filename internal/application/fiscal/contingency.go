package fiscal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/internal/domain/repository"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/sefaz"
)

const sweepLockKey = "pdv-fiscal:contingency-sweep"

// SweepConfig parámetros del barrido de la cola de contingencia.
type SweepConfig struct {
	BatchSize     int           // entradas leídas por barrido
	Parallelism   int           // endpoints procesados en paralelo
	EntryTimeout  time.Duration // límite por entrada (consulta + envío)
	RatePerSecond float64       // envíos por segundo por endpoint; 0 = sin límite
	Burst         int
	StaleAfter    time.Duration // antigüedad a partir de la cual un signing o transmitting se recupera
	LockTTL       time.Duration
}

func (c SweepConfig) withDefaults() SweepConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 4
	}
	if c.EntryTimeout <= 0 {
		c.EntryTimeout = 45 * time.Second
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	return c
}

// RetransmitResult resultado del intento sobre un documento de la cola.
type RetransmitResult struct {
	TenantID   string
	DocumentID string
	Outcome    sefaz.OutcomeKind
	Status     entity.DocumentStatus
	Error      error
}

// ContingencySweeper retransmite los documentos en contingencia. Una entrada por
// endpoint a la vez, en orden FIFO de emisión; los endpoints se procesan en paralelo.
type ContingencySweeper struct {
	o      *EmissionOrchestrator
	queue  repository.ContingencyQueueRepository
	cfg    SweepConfig
	locker Locker

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// SweeperOption configura el barrido.
type SweeperOption func(*ContingencySweeper)

// WithLocker activa el lock distribuido (un solo barrido activo entre instancias).
func WithLocker(l Locker) SweeperOption {
	return func(s *ContingencySweeper) { s.locker = l }
}

// NewContingencySweeper crea el barrido sobre el orquestador.
func NewContingencySweeper(o *EmissionOrchestrator, queue repository.ContingencyQueueRepository, cfg SweepConfig, opts ...SweeperOption) *ContingencySweeper {
	s := &ContingencySweeper{
		o:        o,
		queue:    queue,
		cfg:      cfg.withDefaults(),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RetransmitPending ejecuta un barrido. Solo devuelve error si la cola no puede leerse;
// los fallos por documento van en cada resultado. Si otra instancia tiene el lock
// devuelve nil, nil.
func (s *ContingencySweeper) RetransmitPending(ctx context.Context) ([]RetransmitResult, error) {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("lock del barrido: %w", err)
		}
		if !ok {
			s.o.log.Debug().Msg("barrido de contingencia activo en otra instancia")
			return nil, nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), sweepLockKey, token); err != nil {
				s.o.log.Warn().Err(err).Msg("liberar lock del barrido")
			}
		}()
	}

	s.releaseStaleSigning(ctx)
	s.recoverStale(ctx)

	entries, err := s.queue.ListDue(ctx, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("leer cola de contingencia: %w", err)
	}
	s.o.metrics.SetContingencyBacklog(len(entries))
	if len(entries) == 0 {
		return nil, nil
	}

	// grupos por endpoint conservando el orden FIFO de ListDue
	var order []string
	groups := make(map[string][]int)
	for i, e := range entries {
		k := s.groupKey(e)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	results := make([]RetransmitResult, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for _, k := range order {
		idx := groups[k]
		limiter := s.limiterFor(k)
		g.Go(func() error {
			for _, i := range idx {
				if limiter != nil {
					if err := limiter.Wait(gctx); err != nil {
						results[i] = RetransmitResult{TenantID: entries[i].TenantID, DocumentID: entries[i].DocumentID, Status: entity.StatusContingency, Error: err}
						continue
					}
				}
				results[i] = s.retransmit(gctx, entries[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// RunOnce barrido con resumen en el log.
func (s *ContingencySweeper) RunOnce(ctx context.Context) {
	results, err := s.RetransmitPending(ctx)
	if err != nil {
		s.o.log.Error().Err(err).Msg("barrido de contingencia")
		return
	}
	if len(results) == 0 {
		return
	}
	var authorized, rejected, pending, failed int
	for _, r := range results {
		switch {
		case r.Error != nil:
			failed++
		case r.Status == entity.StatusAuthorized:
			authorized++
		case r.Status == entity.StatusRejected:
			rejected++
		default:
			pending++
		}
	}
	s.o.log.Info().Int("entries", len(results)).Int("authorized", authorized).Int("rejected", rejected).
		Int("still_pending", pending).Int("failed", failed).Msg("barrido de contingencia finalizado")
}

// RunForever barre al iniciar y luego cada interval hasta que ctx se cancele.
func (s *ContingencySweeper) RunForever(ctx context.Context, interval time.Duration) {
	s.RunOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.o.log.Info().Msg("barrido de contingencia detenido")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *ContingencySweeper) groupKey(e *entity.ContingencyQueueEntry) string {
	ep, err := s.o.endpoints.Resolve(e.UF, e.Model, e.Environment)
	if err != nil {
		return e.UF + "/" + e.Model + "/" + e.Environment
	}
	return ep.Key()
}

// limiterFor un limitador por endpoint, compartido entre barridos.
func (s *ContingencySweeper) limiterFor(key string) *rate.Limiter {
	if s.cfg.RatePerSecond <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.cfg.RatePerSecond), s.cfg.Burst)
		s.limiters[key] = l
	}
	return l
}

// releaseStaleSigning devuelve a pending los documentos que quedaron en signing (firma
// interrumpida o proceso caído). Aún no hay nada enviado a la SEFAZ, la siguiente
// emisión del pedido los retoma con el mismo número.
func (s *ContingencySweeper) releaseStaleSigning(ctx context.Context) {
	docs, err := s.o.docs.ListStale(ctx, entity.StatusSigning, s.o.now().Add(-s.cfg.StaleAfter), s.cfg.BatchSize)
	if err != nil {
		s.o.log.Warn().Err(err).Msg("listar documentos en signing")
		return
	}
	for _, doc := range docs {
		if err := s.o.releaseSigning(ctx, doc, "firma interrumpida"); err != nil {
			s.o.log.Warn().Err(err).Str("document_id", doc.ID).Msg("devolver documento en signing a pending")
			continue
		}
		s.o.log.Info().Str("document_id", doc.ID).Msg("documento con firma interrumpida devuelto a pending")
	}
}

// recoverStale pasa a contingency los documentos que quedaron en transmitting (envío
// cancelado o proceso caído) conservando su chave y contenido firmado.
func (s *ContingencySweeper) recoverStale(ctx context.Context) {
	docs, err := s.o.docs.ListStale(ctx, entity.StatusTransmitting, s.o.now().Add(-s.cfg.StaleAfter), s.cfg.BatchSize)
	if err != nil {
		s.o.log.Warn().Err(err).Msg("listar documentos en transmitting")
		return
	}
	for _, doc := range docs {
		cfg, err := s.o.configs.GetByTenant(ctx, doc.TenantID)
		if err != nil || cfg == nil {
			s.o.log.Warn().Err(err).Str("document_id", doc.ID).Msg("configuración del documento interrumpido no disponible")
			continue
		}
		entry := &entity.ContingencyQueueEntry{
			ID:          uuid.NewString(),
			TenantID:    doc.TenantID,
			DocumentID:  doc.ID,
			UF:          cfg.Address.UF,
			Model:       sefaz.ModelFor(doc.Type),
			Environment: cfg.Environment,
			IssuedAt:    doc.IssuedAt,
			CreatedAt:   s.o.now(),
		}
		err = s.o.transition(ctx, doc, entity.StatusContingency, func(d *entity.FiscalDocument) {
			d.ErrorMessage = "transmisión interrumpida"
		}, func(q repository.ContingencyQueueRepository) error {
			return q.Enqueue(ctx, entry)
		})
		if err != nil {
			s.o.log.Warn().Err(err).Str("document_id", doc.ID).Msg("recuperar documento en transmitting")
			continue
		}
		s.o.log.Info().Str("document_id", doc.ID).Msg("documento interrumpido movido a contingencia")
	}
}

// retransmit un intento sobre una entrada. Antes de reenviar consulta la situación de la
// chave: un envío anterior sin respuesta puede haber sido autorizado.
func (s *ContingencySweeper) retransmit(ctx context.Context, e *entity.ContingencyQueueEntry) RetransmitResult {
	res := RetransmitResult{TenantID: e.TenantID, DocumentID: e.DocumentID, Status: entity.StatusContingency}
	log := s.o.log.With().Str("document_id", e.DocumentID).Int("attempt", e.Attempts+1).Logger()

	doc, err := s.o.docs.GetByID(ctx, e.TenantID, e.DocumentID)
	if err != nil {
		res.Error = err
		return res
	}
	if doc == nil || doc.Status.IsFinal() {
		// el documento ya salió de contingencia por otra vía
		if err := s.queue.Remove(ctx, e.ID); err != nil {
			res.Error = err
		}
		if doc != nil {
			res.Status = doc.Status
		}
		return res
	}
	if doc.Status != entity.StatusContingency {
		res.Status = doc.Status
		return res
	}

	cfg, err := s.o.loadConfig(ctx, e.TenantID)
	if err != nil {
		res.Error = err
		return res
	}
	endpoint, err := s.o.endpoints.Resolve(e.UF, e.Model, e.Environment)
	if err != nil {
		res.Error = err
		return res
	}
	if cred, err := s.o.loadCredential(cfg.Certificate, s.o.now()); err == nil {
		endpoint.ClientCertificate = &cred
	} else {
		log.Warn().Err(err).Msg("certificado no disponible para mTLS")
	}

	qctx, cancel := context.WithTimeout(ctx, s.cfg.EntryTimeout)
	out := s.o.queryStatus(qctx, doc.AccessKey, endpoint)
	cancel()
	fromQuery := out.Kind == sefaz.OutcomeAccepted || out.Kind == sefaz.OutcomeRejected
	if !fromQuery {
		if err := s.o.transition(ctx, doc, entity.StatusTransmitting, nil, nil); err != nil {
			res.Error = err
			return res
		}
		out, err = s.o.submit(ctx, doc, endpoint, s.cfg.EntryTimeout)
		if err != nil {
			// barrido cancelado: el documento queda en transmitting y se recupera después
			s.recordAttempt(ctx, e, err.Error())
			res.Error = err
			res.Status = doc.Status
			return res
		}
		out = s.o.resolveDuplicate(ctx, doc, out, endpoint)
	}
	res.Outcome = out.Kind

	attemptErr := ""
	if out.Kind != sefaz.OutcomeAccepted {
		attemptErr = out.Message()
	}
	s.recordAttempt(ctx, e, attemptErr)

	// las transiciones finales se persisten aunque el barrido se cancele
	tctx := context.WithoutCancel(ctx)
	if fromQuery {
		if err := s.o.transition(tctx, doc, entity.StatusTransmitting, nil, nil); err != nil {
			res.Error = err
			return res
		}
	}
	remove := func(q repository.ContingencyQueueRepository) error { return q.Remove(tctx, e.ID) }
	switch out.Kind {
	case sefaz.OutcomeAccepted:
		err = s.o.authorize(tctx, doc, out, remove)
	case sefaz.OutcomeRejected:
		err = s.o.reject(tctx, doc, out, remove)
	default:
		err = s.o.transition(tctx, doc, entity.StatusContingency, func(d *entity.FiscalDocument) {
			d.ErrorMessage = out.Message()
		}, nil)
	}
	if err != nil {
		res.Error = err
	}
	res.Status = doc.Status
	s.o.metrics.ObserveContingencyAttempt(string(out.Kind))
	if doc.Status.IsFinal() {
		s.o.metrics.ObserveEmission(doc.Type, doc.Status)
	}
	log.Info().Str("outcome", string(out.Kind)).Str("status", string(doc.Status)).Msg("retransmisión de contingencia")
	return res
}

// recordAttempt incrementa el contador de la entrada y audita el intento.
func (s *ContingencySweeper) recordAttempt(ctx context.Context, e *entity.ContingencyQueueEntry, lastError string) {
	ctx = context.WithoutCancel(ctx)
	now := s.o.now()
	if err := s.queue.RecordAttempt(ctx, e.ID, now, lastError); err != nil && !errors.Is(err, context.Canceled) {
		s.o.log.Warn().Err(err).Str("document_id", e.DocumentID).Msg("registrar intento de contingencia")
	}
	entry := newAuditEntry(ctx, now, e.TenantID, entity.AuditActionContingencyAttempt, entity.AuditEntityFiscalDocument,
		e.DocumentID, nil, attemptSnapshot{Attempt: e.Attempts + 1, Error: lastError})
	if err := s.o.audit.Append(ctx, entry); err != nil {
		s.o.log.Warn().Err(err).Str("document_id", e.DocumentID).Msg("auditoría del intento de contingencia")
	}
}

type attemptSnapshot struct {
	Attempt int    `json:"attempt"`
	Error   string `json:"error,omitempty"`
}
