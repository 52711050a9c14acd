package fiscal

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/jhoicas/pdv-fiscal/internal/domain"
	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	domfiscal "github.com/jhoicas/pdv-fiscal/internal/domain/fiscal"
	"github.com/jhoicas/pdv-fiscal/internal/domain/repository"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/sefaz"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/sefaz/signer"
	"github.com/jhoicas/pdv-fiscal/pkg/logger"
	"github.com/jhoicas/pdv-fiscal/pkg/nfe"
)

const (
	defaultTransmitTimeout  = 30 * time.Second
	defaultNumberingRetries = 5

	// xJust exige entre 15 y 256 caracteres.
	contingencyJustification = "SEFAZ indisponivel - emissao em contingencia off-line"
)

// Deps dependencias del orquestador. Status es opcional: sin él no se consulta la
// situación de la chave antes de reenviar ni ante un rechazo por duplicidad.
type Deps struct {
	Configs     repository.FiscalConfigurationRepository
	Orders      repository.OrderRepository
	Taxes       repository.TaxBreakdownRepository
	Documents   repository.FiscalDocumentRepository
	Queue       repository.ContingencyQueueRepository
	Audit       repository.AuditLogRepository
	Tx          FiscalTxRunner
	Builder     *sefaz.XMLBuilderService
	Signer      nfe.Signer
	Transmitter sefaz.Transmitter
	Status      sefaz.StatusQuerier
	Endpoints   *sefaz.EndpointResolver
}

// EmissionOrchestrator conduce el documento por la máquina de estados:
//
//	pending → signing → transmitting → {authorized | rejected | contingency}
//
// Cada transición se persiste junto con su registro de auditoría en una misma transacción.
type EmissionOrchestrator struct {
	configs     repository.FiscalConfigurationRepository
	orders      repository.OrderRepository
	taxRepo     repository.TaxBreakdownRepository
	docs        repository.FiscalDocumentRepository
	queue       repository.ContingencyQueueRepository
	audit       repository.AuditLogRepository
	tx          FiscalTxRunner
	calculator  *domfiscal.TaxCalculatorService
	keys        *domfiscal.AccessKeyGeneratorService
	builder     *sefaz.XMLBuilderService
	signer      nfe.Signer
	transmitter sefaz.Transmitter
	status      sefaz.StatusQuerier
	endpoints   *sefaz.EndpointResolver

	loadCredential   CredentialLoader
	numericCode      func(number int64) (string, error)
	now              func() time.Time
	transmitTimeout  time.Duration
	numberingRetries uint
	metrics          MetricsRecorder
	log              *logger.Logger
}

// Option configura el orquestador.
type Option func(*EmissionOrchestrator)

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(o *EmissionOrchestrator) { o.now = now }
}

// WithLogger define el logger estructurado.
func WithLogger(l *logger.Logger) Option {
	return func(o *EmissionOrchestrator) { o.log = l }
}

// WithMetrics define el registro de métricas.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *EmissionOrchestrator) { o.metrics = m }
}

// WithCredentialLoader reemplaza la decodificación del certificado.
func WithCredentialLoader(l CredentialLoader) Option {
	return func(o *EmissionOrchestrator) { o.loadCredential = l }
}

// WithNumericCodeGenerator reemplaza el generador del cNF (tests con chave fija).
func WithNumericCodeGenerator(fn func(number int64) (string, error)) Option {
	return func(o *EmissionOrchestrator) { o.numericCode = fn }
}

// WithTransmitTimeout límite de cada envío a la SEFAZ.
func WithTransmitTimeout(d time.Duration) Option {
	return func(o *EmissionOrchestrator) {
		if d > 0 {
			o.transmitTimeout = d
		}
	}
}

// WithNumberingRetries intentos ante conflictos de numeración.
func WithNumberingRetries(n uint) Option {
	return func(o *EmissionOrchestrator) {
		if n > 0 {
			o.numberingRetries = n
		}
	}
}

// NewEmissionOrchestrator construye el orquestador.
func NewEmissionOrchestrator(d Deps, opts ...Option) *EmissionOrchestrator {
	o := &EmissionOrchestrator{
		configs:          d.Configs,
		orders:           d.Orders,
		taxRepo:          d.Taxes,
		docs:             d.Documents,
		queue:            d.Queue,
		audit:            d.Audit,
		tx:               d.Tx,
		calculator:       domfiscal.NewTaxCalculatorService(),
		keys:             domfiscal.NewAccessKeyGeneratorService(),
		builder:          d.Builder,
		signer:           d.Signer,
		transmitter:      d.Transmitter,
		status:           d.Status,
		endpoints:        d.Endpoints,
		loadCredential:   DefaultCredentialLoader,
		numericCode:      domfiscal.NewNumericCode,
		now:              time.Now,
		transmitTimeout:  defaultTransmitTimeout,
		numberingRetries: defaultNumberingRetries,
		metrics:          nopMetrics{},
		log:              logger.Nop(),
	}
	if o.builder == nil {
		o.builder = sefaz.NewXMLBuilderService()
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// EmissionResult documento resultante y si fue creado en esta llamada.
type EmissionResult struct {
	Document *entity.FiscalDocument
	Created  bool
}

// EmitDocument emite el documento fiscal del pedido. Con la SEFAZ fuera de alcance el
// documento queda en contingency y no se devuelve error.
func (o *EmissionOrchestrator) EmitDocument(ctx context.Context, tenantID, orderID string, docType entity.DocumentType) (*entity.FiscalDocument, error) {
	res, err := o.Emit(ctx, tenantID, orderID, docType)
	if res == nil {
		return nil, err
	}
	return res.Document, err
}

// Emit igual que EmitDocument pero indica si el documento es nuevo. Existe a lo sumo un
// documento no rechazado por pedido y tipo: si ya existe se devuelve tal cual, sin
// depender de la configuración vigente, salvo que esté en pending o signing, en cuyo
// caso se retoma la emisión con el mismo número.
func (o *EmissionOrchestrator) Emit(ctx context.Context, tenantID, orderID string, docType entity.DocumentType) (*EmissionResult, error) {
	if !docType.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedDocument, docType)
	}
	order, err := o.loadOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	doc, err := o.docs.FindLiveByOrder(ctx, tenantID, orderID, docType)
	if err != nil {
		return nil, fmt.Errorf("buscar documento del pedido: %w", err)
	}
	if doc != nil && !resumable(doc.Status) {
		return &EmissionResult{Document: doc}, nil
	}

	cfg, err := o.loadConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !cfg.HasCertificate() {
		return nil, domain.ErrCertificateMissing
	}
	if err := validateIssuer(cfg); err != nil {
		return nil, err
	}
	endpoint, err := o.endpoints.Resolve(cfg.Address.UF, sefaz.ModelFor(docType), cfg.Environment)
	if err != nil {
		return nil, err
	}

	created := false
	if doc == nil {
		doc, err = o.reserve(ctx, cfg, order, docType)
		if errors.Is(err, domain.ErrDuplicate) {
			// otra emisión concurrente creó el documento: se devuelve el suyo
			existing, ferr := o.docs.FindLiveByOrder(ctx, tenantID, orderID, docType)
			if ferr != nil || existing == nil {
				return nil, err
			}
			return &EmissionResult{Document: existing}, nil
		}
		if err != nil {
			return nil, err
		}
		created = true
	}
	if doc.Status == entity.StatusSigning {
		if err := o.releaseSigning(ctx, doc, "firma interrumpida"); err != nil {
			current, cerr := o.currentOnConflict(ctx, doc, err)
			return &EmissionResult{Document: current}, cerr
		}
	}

	doc, err = o.process(ctx, doc, cfg, order, endpoint)
	return &EmissionResult{Document: doc, Created: created}, err
}

// resumable estados desde los que una nueva llamada retoma la emisión. Ninguno de los
// dos llegó a la SEFAZ.
func resumable(s entity.DocumentStatus) bool {
	return s == entity.StatusPending || s == entity.StatusSigning
}

// CalculateTaxes calcula y persiste el desglose tributario del pedido.
func (o *EmissionOrchestrator) CalculateTaxes(ctx context.Context, tenantID, orderID string) ([]entity.TaxBreakdown, error) {
	res, err := o.CalculateTaxSummary(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// CalculateTaxSummary igual que CalculateTaxes pero con los totales agregados.
func (o *EmissionOrchestrator) CalculateTaxSummary(ctx context.Context, tenantID, orderID string) (*domfiscal.TaxResult, error) {
	order, err := o.loadOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	cfg, err := o.loadConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return o.computeTaxes(ctx, cfg, order)
}

// ── pasos de la emisión ───────────────────────────────────────────────────────

func (o *EmissionOrchestrator) loadOrder(ctx context.Context, tenantID, orderID string) (*entity.Order, error) {
	order, err := o.orders.GetByID(ctx, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("obtener pedido: %w", err)
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (o *EmissionOrchestrator) loadConfig(ctx context.Context, tenantID string) (*entity.FiscalConfiguration, error) {
	cfg, err := o.configs.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("obtener configuración fiscal: %w", err)
	}
	if cfg == nil {
		return nil, domain.ErrConfigurationMissing
	}
	return cfg, nil
}

func validateIssuer(cfg *entity.FiscalConfiguration) error {
	if cnpj := nfe.OnlyDigits(cfg.CNPJ); len(cnpj) != 14 {
		return domain.ErrInvalidIssuerID
	}
	if _, ok := nfe.UFCode(strings.ToUpper(strings.TrimSpace(cfg.Address.UF))); !ok {
		return domain.ErrInvalidJurisdiction
	}
	return nil
}

// computeTaxes calcula y persiste el desglose. La persistencia es obligatoria: si falla,
// la operación falla.
func (o *EmissionOrchestrator) computeTaxes(ctx context.Context, cfg *entity.FiscalConfiguration, order *entity.Order) (*domfiscal.TaxResult, error) {
	res, err := o.calculator.Calculate(order.ID, order.Items, cfg.EffectiveTaxRules(), o.now())
	if err != nil {
		return nil, err
	}
	if err := o.taxRepo.Upsert(ctx, order.TenantID, res.Items); err != nil {
		return nil, fmt.Errorf("persistir desglose tributario: %w", err)
	}
	entry := o.auditEntry(ctx, order.TenantID, entity.AuditActionTaxesCalculated, entity.AuditEntityOrder, order.ID,
		nil, taxSnapshot{TotalBase: res.TotalBase.StringFixed(2), TotalTax: res.TotalTax.StringFixed(2), Items: len(res.Items)})
	if err := o.audit.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("auditoría del cálculo tributario: %w", err)
	}
	return res, nil
}

// reserve obtiene el siguiente número y crea el documento pending en la misma
// transacción. Los conflictos de serialización se reintentan con backoff exponencial.
func (o *EmissionOrchestrator) reserve(ctx context.Context, cfg *entity.FiscalConfiguration, order *entity.Order, docType entity.DocumentType) (*entity.FiscalDocument, error) {
	op := func() (*entity.FiscalDocument, error) {
		var doc *entity.FiscalDocument
		err := o.tx.RunFiscal(ctx, func(
			cfgRepo repository.FiscalConfigurationRepository,
			docRepo repository.FiscalDocumentRepository,
			_ repository.ContingencyQueueRepository,
			auditRepo repository.AuditLogRepository,
		) error {
			series, number, err := cfgRepo.NextDocumentNumber(ctx, cfg.TenantID)
			if err != nil {
				return err
			}
			now := o.now()
			doc = &entity.FiscalDocument{
				ID:           uuid.NewString(),
				TenantID:     cfg.TenantID,
				OrderID:      order.ID,
				Type:         docType,
				Series:       series,
				Number:       number,
				Status:       entity.StatusPending,
				EmissionType: nfe.EmissionNormal,
				TotalAmount:  order.TotalAmount,
				IssuedAt:     now,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := docRepo.Create(ctx, doc); err != nil {
				return err
			}
			return auditRepo.Append(ctx, o.auditEntry(ctx, doc.TenantID, entity.AuditActionDocumentCreated,
				entity.AuditEntityFiscalDocument, doc.ID, nil, snapshotOf(doc)))
		})
		if err == nil {
			return doc, nil
		}
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	doc, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(o.numberingRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			o.log.Warn().Err(err).Str("order_id", order.ID).Dur("retry_in", next).Msg("conflicto de numeración, reintentando")
		}))
	if err != nil {
		return nil, fmt.Errorf("reservar número fiscal: %w", err)
	}
	o.log.Info().Str("document_id", doc.ID).Str("order_id", order.ID).
		Int("series", doc.Series).Int64("number", doc.Number).Msg("documento fiscal creado")
	return doc, nil
}

// process lleva un documento pending hasta su estado de salida.
func (o *EmissionOrchestrator) process(ctx context.Context, doc *entity.FiscalDocument, cfg *entity.FiscalConfiguration, order *entity.Order, endpoint sefaz.Endpoint) (*entity.FiscalDocument, error) {
	taxes, err := o.computeTaxes(ctx, cfg, order)
	if err != nil {
		return doc, err
	}
	numericCode, err := o.numericCode(doc.Number)
	if err != nil {
		return doc, err
	}
	key, err := o.keys.Generate(o.keyParams(cfg, doc, nfe.EmissionNormal, numericCode))
	if err != nil {
		return doc, err
	}
	build := &sefaz.DocumentBuildContext{
		Document:    doc.Clone(),
		Config:      cfg,
		Order:       order,
		Taxes:       taxes,
		AccessKey:   key,
		NumericCode: numericCode,
	}
	build.Document.EmissionType = nfe.EmissionNormal
	canonical, err := o.builder.Build(build)
	if err != nil {
		return doc, fmt.Errorf("construir documento %s: %w", doc.ID, err)
	}

	if err := o.transition(ctx, doc, entity.StatusSigning, func(d *entity.FiscalDocument) {
		d.AccessKey = key
		d.EmissionType = nfe.EmissionNormal
		d.CanonicalXML = string(canonical)
		d.TotalAmount = taxes.TotalBase
		d.TotalTax = taxes.TotalTax
		d.ErrorMessage = ""
	}, nil); err != nil {
		return o.currentOnConflict(ctx, doc, err)
	}

	cred, signed, err := o.sign(cfg, canonical)
	if err != nil {
		if rerr := o.releaseSigning(ctx, doc, "firma: "+err.Error()); rerr != nil {
			o.log.Error().Err(rerr).Str("document_id", doc.ID).Msg("no se pudo devolver el documento a pending")
		}
		o.metrics.ObserveEmission(doc.Type, doc.Status)
		o.log.Warn().Err(err).Str("document_id", doc.ID).Msg("firma fallida, documento en pending")
		return doc, &domain.SigningError{DocumentID: doc.ID, Err: err}
	}
	endpoint.ClientCertificate = &cred

	if err := o.transition(ctx, doc, entity.StatusTransmitting, func(d *entity.FiscalDocument) {
		d.SignedXML = string(signed)
		d.QRCodeData = o.qrCode(cfg, d, signed)
	}, nil); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return o.currentOnConflict(ctx, doc, err)
		}
		if rerr := o.releaseSigning(ctx, doc, "persistir firma: "+err.Error()); rerr != nil {
			o.log.Error().Err(rerr).Str("document_id", doc.ID).Msg("no se pudo devolver el documento a pending")
		}
		return doc, err
	}

	out, err := o.submit(ctx, doc, endpoint, o.transmitTimeout)
	if err != nil {
		return doc, err
	}
	out = o.resolveDuplicate(ctx, doc, out, endpoint)

	switch out.Kind {
	case sefaz.OutcomeAccepted:
		err = o.authorize(ctx, doc, out, nil)
	case sefaz.OutcomeRejected:
		err = o.reject(ctx, doc, out, nil)
	default:
		err = o.enterContingency(ctx, doc, build, cred, out.Message())
	}
	o.metrics.ObserveEmission(doc.Type, doc.Status)
	o.log.Info().Str("document_id", doc.ID).Str("order_id", doc.OrderID).
		Str("status", string(doc.Status)).Str("outcome", string(out.Kind)).Msg("emisión finalizada")
	return doc, err
}

func (o *EmissionOrchestrator) keyParams(cfg *entity.FiscalConfiguration, doc *entity.FiscalDocument, emissionType, numericCode string) domfiscal.AccessKeyParams {
	return domfiscal.AccessKeyParams{
		UF:           cfg.Address.UF,
		IssuedAt:     sefaz.LocalTime(doc.IssuedAt),
		CNPJ:         cfg.CNPJ,
		Model:        sefaz.ModelFor(doc.Type),
		Series:       doc.Series,
		Number:       doc.Number,
		EmissionType: emissionType,
		NumericCode:  numericCode,
	}
}

func (o *EmissionOrchestrator) sign(cfg *entity.FiscalConfiguration, canonical []byte) (tls.Certificate, []byte, error) {
	cred, err := o.loadCredential(cfg.Certificate, o.now())
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("cargar certificado: %w", err)
	}
	signed, err := o.signer.Sign(canonical, cred)
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	return cred, signed, nil
}

// submit envía el documento con un límite de tiempo propio. Solo devuelve error si el
// contexto del llamador se canceló: el documento queda en transmitting y el barrido lo
// recupera consultando la situación en la SEFAZ.
func (o *EmissionOrchestrator) submit(ctx context.Context, doc *entity.FiscalDocument, endpoint sefaz.Endpoint, timeout time.Duration) (sefaz.Outcome, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out := o.transmitter.Submit(tctx, []byte(doc.SignedXML), endpoint)
	o.metrics.ObserveTransmission(string(out.Kind), time.Since(start))

	if err := ctx.Err(); err != nil {
		o.log.Warn().Str("document_id", doc.ID).Msg("transmisión interrumpida, el documento queda en transmitting")
		return out, fmt.Errorf("transmisión del documento %s interrumpida: %w", doc.ID, err)
	}
	o.log.Debug().Str("document_id", doc.ID).Str("endpoint", endpoint.Key()).
		Str("outcome", string(out.Kind)).Str("detail", out.Message()).Msg("respuesta SEFAZ")
	return out, nil
}

// resolveDuplicate ante un rechazo por duplicidad consulta la chave: si la SEFAZ ya la
// autorizó (envío anterior sin respuesta) el resultado pasa a ser la autorización.
func (o *EmissionOrchestrator) resolveDuplicate(ctx context.Context, doc *entity.FiscalDocument, out sefaz.Outcome, endpoint sefaz.Endpoint) sefaz.Outcome {
	if out.Kind != sefaz.OutcomeRejected || out.ReasonCode != nfe.StatusDuplicate {
		return out
	}
	if q := o.queryStatus(ctx, doc.AccessKey, endpoint); q.Kind == sefaz.OutcomeAccepted {
		return q
	}
	return out
}

func (o *EmissionOrchestrator) queryStatus(ctx context.Context, accessKey string, endpoint sefaz.Endpoint) sefaz.Outcome {
	if o.status == nil || accessKey == "" {
		return sefaz.Unreachable("consulta de situación no disponible")
	}
	qctx, cancel := context.WithTimeout(ctx, o.transmitTimeout)
	defer cancel()
	return o.status.QueryStatus(qctx, accessKey, endpoint)
}

func (o *EmissionOrchestrator) authorize(ctx context.Context, doc *entity.FiscalDocument, out sefaz.Outcome, extra func(repository.ContingencyQueueRepository) error) error {
	at := o.now()
	if out.AuthorizedAt != nil {
		at = *out.AuthorizedAt
	}
	if out.AccessKey != "" && out.AccessKey != doc.AccessKey {
		o.log.Warn().Str("document_id", doc.ID).Str("access_key", out.AccessKey).Msg("la SEFAZ devolvió una chave distinta")
	}
	return o.transition(ctx, doc, entity.StatusAuthorized, func(d *entity.FiscalDocument) {
		d.Protocol = out.Protocol
		d.AuthorizedAt = &at
		d.ReasonCode = ""
		d.ErrorMessage = ""
	}, extra)
}

func (o *EmissionOrchestrator) reject(ctx context.Context, doc *entity.FiscalDocument, out sefaz.Outcome, extra func(repository.ContingencyQueueRepository) error) error {
	return o.transition(ctx, doc, entity.StatusRejected, func(d *entity.FiscalDocument) {
		d.ReasonCode = out.ReasonCode
		d.ErrorMessage = out.ReasonText
	}, extra)
}

// enterContingency asigna la chave de contingencia (tpEmis según el modelo), reconstruye y vuelve a
// firmar el documento, y lo encola en la misma transacción del cambio de estado. Si la
// nueva firma falla se conserva el documento ya firmado en emisión normal.
func (o *EmissionOrchestrator) enterContingency(ctx context.Context, doc *entity.FiscalDocument, build *sefaz.DocumentBuildContext, cred tls.Certificate, reason string) error {
	now := o.now()
	key, canonical, signed := doc.AccessKey, doc.CanonicalXML, doc.SignedXML
	emissionType := doc.EmissionType

	ck, cc, cs, err := o.contingencyVersion(doc, build, cred, now)
	if err != nil {
		o.log.Warn().Err(err).Str("document_id", doc.ID).Msg("re-firma en contingencia fallida, se conserva el documento firmado")
	} else {
		key, canonical, signed, emissionType = ck, cc, cs, nfe.ContingencyEmissionType(sefaz.ModelFor(doc.Type))
	}

	entry := &entity.ContingencyQueueEntry{
		ID:          uuid.NewString(),
		TenantID:    doc.TenantID,
		DocumentID:  doc.ID,
		UF:          strings.ToUpper(build.Config.Address.UF),
		Model:       sefaz.ModelFor(doc.Type),
		Environment: build.Config.Environment,
		IssuedAt:    doc.IssuedAt,
		CreatedAt:   now,
	}
	err = o.transition(ctx, doc, entity.StatusContingency, func(d *entity.FiscalDocument) {
		d.AccessKey = key
		d.EmissionType = emissionType
		d.CanonicalXML = canonical
		d.SignedXML = signed
		d.ErrorMessage = reason
		d.QRCodeData = o.qrCode(build.Config, d, []byte(signed))
	}, func(q repository.ContingencyQueueRepository) error {
		return q.Enqueue(ctx, entry)
	})
	if err != nil {
		return err
	}
	o.log.Warn().Str("document_id", doc.ID).Str("reason", reason).Msg("SEFAZ inalcanzable, documento en contingencia")
	return nil
}

func (o *EmissionOrchestrator) contingencyVersion(doc *entity.FiscalDocument, build *sefaz.DocumentBuildContext, cred tls.Certificate, at time.Time) (key, canonical, signed string, err error) {
	emissionType := nfe.ContingencyEmissionType(sefaz.ModelFor(doc.Type))
	key, err = o.keys.Generate(o.keyParams(build.Config, doc, emissionType, build.NumericCode))
	if err != nil {
		return "", "", "", err
	}
	cdoc := doc.Clone()
	cdoc.EmissionType = emissionType
	b := *build
	b.Document = cdoc
	b.AccessKey = key
	b.ContingencyAt = &at
	b.ContingencyReason = contingencyJustification
	c, err := o.builder.Build(&b)
	if err != nil {
		return "", "", "", err
	}
	s, err := o.signer.Sign(c, cred)
	if err != nil {
		return "", "", "", err
	}
	return key, string(c), string(s), nil
}

// qrCode compone el QR-Code de la NFC-e; vacío si el emisor no tiene CSC o la UF no
// publica URL de consulta.
func (o *EmissionOrchestrator) qrCode(cfg *entity.FiscalConfiguration, doc *entity.FiscalDocument, signed []byte) string {
	if doc.Type != entity.DocumentTypeNFCe || cfg.CSC == "" {
		return ""
	}
	p := nfe.QRCodeParams{
		UF:          strings.ToUpper(cfg.Address.UF),
		Environment: sefaz.EnvironmentCode(cfg.Environment),
		AccessKey:   doc.AccessKey,
		CSCID:       cfg.CSCID,
		CSC:         cfg.CSC,
	}
	if doc.EmissionType == nfe.EmissionOfflineNFCe {
		p.Offline = true
		p.IssuedAt = sefaz.LocalTime(doc.IssuedAt)
		p.Total = doc.TotalAmount
		p.DigestValue = signer.DigestValue(signed)
	}
	qr, err := nfe.BuildQRCode(p)
	if err != nil {
		o.log.Debug().Err(err).Str("document_id", doc.ID).Msg("QR-Code no generado")
		return ""
	}
	return qr
}

// transition aplica mutate y la arista from → to, y persiste documento, trabajo extra
// sobre la cola y auditoría en una sola transacción. doc solo se actualiza si todo se
// confirmó.
func (o *EmissionOrchestrator) transition(ctx context.Context, doc *entity.FiscalDocument, to entity.DocumentStatus, mutate func(*entity.FiscalDocument), extra func(repository.ContingencyQueueRepository) error) error {
	from := doc.Status
	next := doc.Clone()
	if mutate != nil {
		mutate(next)
	}
	if err := next.TransitionTo(to, o.now()); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidTransition, err)
	}
	err := o.tx.RunFiscal(ctx, func(
		_ repository.FiscalConfigurationRepository,
		docRepo repository.FiscalDocumentRepository,
		queueRepo repository.ContingencyQueueRepository,
		auditRepo repository.AuditLogRepository,
	) error {
		if err := docRepo.Update(ctx, next, from); err != nil {
			return err
		}
		if extra != nil {
			if err := extra(queueRepo); err != nil {
				return err
			}
		}
		return auditRepo.Append(ctx, o.auditEntry(ctx, doc.TenantID, entity.AuditActionDocumentTransition,
			entity.AuditEntityFiscalDocument, doc.ID, snapshotOf(doc), snapshotOf(next)))
	})
	if err != nil {
		return fmt.Errorf("documento %s %s → %s: %w", doc.ID, from, to, err)
	}
	*doc = *next
	o.log.Debug().Str("document_id", doc.ID).Str("from", string(from)).Str("to", string(to)).Msg("transición de estado")
	return nil
}

// releaseSigning devuelve a pending un documento en signing. Corre aunque el contexto
// del llamador esté cancelado: un documento abandonado en signing bloquea el pedido.
func (o *EmissionOrchestrator) releaseSigning(ctx context.Context, doc *entity.FiscalDocument, reason string) error {
	return o.transition(context.WithoutCancel(ctx), doc, entity.StatusPending, func(d *entity.FiscalDocument) {
		d.ErrorMessage = reason
	}, nil)
}

// currentOnConflict si otro proceso avanzó el documento, devuelve su estado actual.
func (o *EmissionOrchestrator) currentOnConflict(ctx context.Context, doc *entity.FiscalDocument, err error) (*entity.FiscalDocument, error) {
	if !errors.Is(err, domain.ErrConflict) {
		return doc, err
	}
	current, gerr := o.docs.GetByID(ctx, doc.TenantID, doc.ID)
	if gerr != nil || current == nil {
		return doc, err
	}
	return current, nil
}
