package fiscal_test

import (
	"context"
	"crypto/tls"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/pdv-fiscal/internal/application/fiscal"
	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/memory"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/sefaz"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/sefaz/signer"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/sefaz/signer/signertest"
)

const tenantID = "tenant-1"

// fakeSEFAZ Transmitter y StatusQuerier con respuestas programables.
type fakeSEFAZ struct {
	mu        sync.Mutex
	submitFn  func(ctx context.Context, accessKey string) sefaz.Outcome
	queryFn   func(accessKey string) sefaz.Outcome
	submitted []string
	queried   []string
}

func newFakeSEFAZ() *fakeSEFAZ {
	return &fakeSEFAZ{
		submitFn: func(_ context.Context, key string) sefaz.Outcome {
			at := time.Now()
			return sefaz.Accepted(key, "131240000000001", &at)
		},
		queryFn: func(string) sefaz.Outcome {
			return sefaz.Outcome{Kind: sefaz.OutcomeNotFound, ReasonCode: "217"}
		},
	}
}

func (f *fakeSEFAZ) Submit(ctx context.Context, signed []byte, _ sefaz.Endpoint) sefaz.Outcome {
	key := accessKeyOf(signed)
	f.mu.Lock()
	f.submitted = append(f.submitted, key)
	fn := f.submitFn
	f.mu.Unlock()
	return fn(ctx, key)
}

func (f *fakeSEFAZ) QueryStatus(_ context.Context, accessKey string, _ sefaz.Endpoint) sefaz.Outcome {
	f.mu.Lock()
	f.queried = append(f.queried, accessKey)
	fn := f.queryFn
	f.mu.Unlock()
	return fn(accessKey)
}

func (f *fakeSEFAZ) onSubmit(fn func(ctx context.Context, accessKey string) sefaz.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitFn = fn
}

func (f *fakeSEFAZ) onQuery(fn func(accessKey string) sefaz.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryFn = fn
}

func (f *fakeSEFAZ) submissions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

func (f *fakeSEFAZ) queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queried...)
}

func unreachable(context.Context, string) sefaz.Outcome {
	return sefaz.Unreachable("dial tcp: connection refused")
}

// accessKeyOf extrae la chave del atributo Id="NFe<chave>".
func accessKeyOf(signed []byte) string {
	s := string(signed)
	i := strings.Index(s, `Id="NFe`)
	if i < 0 || len(s) < i+7+44 {
		return ""
	}
	return s[i+7 : i+7+44]
}

type testEnv struct {
	store  *memory.Store
	sefaz  *fakeSEFAZ
	orch   *fiscal.EmissionOrchestrator
	deps   fiscal.Deps
	config *entity.FiscalConfiguration
}

func newTestEnv(t *testing.T, opts ...fiscal.Option) *testEnv {
	t.Helper()
	store := memory.NewStore()
	fake := newFakeSEFAZ()
	endpoints, err := sefaz.NewEndpointResolver("")
	require.NoError(t, err)

	_, bundle := signertest.Valid(t)
	cfg := &entity.FiscalConfiguration{
		TenantID:          tenantID,
		CNPJ:              "12.345.678/0001-90",
		CompanyName:       "Loja Teste Ltda",
		StateRegistration: "0012345670089",
		TaxRegime:         entity.TaxRegimeLucroPresumido,
		Address: entity.Address{
			Street: "Rua da Bahia", Number: "1000", District: "Centro",
			City: "Belo Horizonte", CityCode: "3106200", UF: "MG", ZipCode: "30160011",
		},
		DefaultCFOP: "5102",
		DefaultNCM:  "21069090",
		Certificate: entity.CertificateMaterial{PKCS12: bundle, Reference: "LOJA TESTE LTDA"},
		Environment: entity.EnvironmentHomologation,
		Series:      1,
		CSCID:       "000001",
		CSC:         "0123456789ABCDEF0123456789ABCDEF",
	}
	store.PutConfiguration(cfg)

	deps := fiscal.Deps{
		Configs:     store.Configurations(),
		Orders:      store.Orders(),
		Taxes:       store.TaxBreakdowns(),
		Documents:   store.Documents(),
		Queue:       store.Queue(),
		Audit:       store.AuditLogs(),
		Tx:          store,
		Signer:      signer.NewDigitalSignatureService(),
		Transmitter: fake,
		Status:      fake,
		Endpoints:   endpoints,
	}
	return &testEnv{
		store:  store,
		sefaz:  fake,
		orch:   fiscal.NewEmissionOrchestrator(deps, opts...),
		deps:   deps,
		config: cfg,
	}
}

func (e *testEnv) sweeper(cfg fiscal.SweepConfig, opts ...fiscal.SweeperOption) *fiscal.ContingencySweeper {
	return fiscal.NewContingencySweeper(e.orch, e.store.Queue(), cfg, opts...)
}

// putOrder pedido de 2 × 50,00.
func (e *testEnv) putOrder(orderID string) {
	e.store.PutOrder(&entity.Order{
		ID:            orderID,
		TenantID:      tenantID,
		TotalAmount:   decimal.RequireFromString("100.00"),
		PaymentMethod: "cash",
		Items: []entity.OrderItem{{
			ID: orderID + "-item-1", ProductID: "prod-1", ProductName: "Cafe especial", Unit: "UN",
			Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("50.00"),
		}},
	})
}

func (e *testEnv) document(t *testing.T, id string) *entity.FiscalDocument {
	t.Helper()
	doc, err := e.store.Documents().GetByID(context.Background(), tenantID, id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	return doc
}

func (e *testEnv) queue(t *testing.T) []*entity.ContingencyQueueEntry {
	t.Helper()
	entries, err := e.store.Queue().ListByTenant(context.Background(), tenantID)
	require.NoError(t, err)
	return entries
}

// failingLoader CredentialLoader que falla mientras *fail sea true.
func failingLoader(mu *sync.Mutex, fail *bool) fiscal.CredentialLoader {
	return func(m entity.CertificateMaterial, now time.Time) (tls.Certificate, error) {
		mu.Lock()
		f := *fail
		mu.Unlock()
		if f {
			return tls.Certificate{}, signer.ErrCertificateExpired
		}
		return fiscal.DefaultCredentialLoader(m, now)
	}
}

// fakeLocker Locker que nunca concede el lock.
type fakeLocker struct{ calls int }

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	l.calls++
	return "", false, nil
}

func (l *fakeLocker) Release(context.Context, string, string) error { return nil }
