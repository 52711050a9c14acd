package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/pdv-fiscal/internal/domain"
	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/internal/domain/repository"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/postgres"
	"github.com/jhoicas/pdv-fiscal/pkg/config"
	"github.com/jhoicas/pdv-fiscal/pkg/logger"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// testPool conecta a TEST_DATABASE_URL y aplica las migraciones; sin la variable el test se omite.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL no definido")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, config.DBConfig{DatabaseURL: dsn}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.RunMigrations(pool))
	return pool
}

func newTenant(t *testing.T, repos *postgres.Repositories) string {
	t.Helper()
	tenant := "tenant-" + uuid.NewString()
	cfg := &entity.FiscalConfiguration{
		TenantID: tenant, CNPJ: "12345678000190", CompanyName: "Loja Teste",
		TaxRegime: entity.TaxRegimeSimplesNacional, Environment: entity.EnvironmentHomologation,
		Series: 1, Address: entity.Address{UF: "MG", CityCode: "3106200"},
		TaxRules: entity.DefaultTaxRules(), UpdatedAt: time.Now(),
	}
	require.NoError(t, repos.Configurations.Save(context.Background(), cfg))
	return tenant
}

func newDocument(tenant, orderID string, number int64) *entity.FiscalDocument {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &entity.FiscalDocument{
		ID: uuid.NewString(), TenantID: tenant, OrderID: orderID, Type: entity.DocumentTypeNFCe,
		Series: 1, Number: number, Status: entity.StatusPending, EmissionType: "1",
		TotalAmount: decimal.RequireFromString("100.00"), TotalTax: decimal.Zero,
		IssuedAt: now, CreatedAt: now, UpdatedAt: now,
	}
}

// ─── Configuración ────────────────────────────────────────────────────────────

func TestFiscalConfiguration_GuardarCompararVersion(t *testing.T) {
	repos := postgres.NewRepositories(testPool(t))
	ctx := context.Background()
	tenant := newTenant(t, repos)

	cfg, err := repos.Configurations.GetByTenant(ctx, tenant)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, int64(1), cfg.Version)
	assert.Equal(t, "MG", cfg.Address.UF)
	assert.Len(t, cfg.TaxRules, len(entity.DefaultTaxRules()))

	stale := *cfg
	cfg.CompanyName = "Nuevo"
	require.NoError(t, repos.Configurations.Save(ctx, cfg))
	assert.Equal(t, int64(2), cfg.Version)

	stale.CompanyName = "Perdida"
	assert.ErrorIs(t, repos.Configurations.Save(ctx, &stale), domain.ErrStaleConfiguration)
}

func TestFiscalConfiguration_NumeracionConcurrenteSinHuecos(t *testing.T) {
	repos := postgres.NewRepositories(testPool(t))
	ctx := context.Background()
	tenant := newTenant(t, repos)

	const n = 20
	var (
		mu      sync.Mutex
		numbers = make(map[int64]bool)
		wg      sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, num, err := repos.Configurations.NextDocumentNumber(ctx, tenant)
			assert.NoError(t, err)
			mu.Lock()
			numbers[num] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, numbers, n)
	for i := int64(1); i <= n; i++ {
		assert.True(t, numbers[i], "falta el número %d", i)
	}

	_, _, err := repos.Configurations.NextDocumentNumber(ctx, "sin-config")
	assert.ErrorIs(t, err, domain.ErrConfigurationMissing)
}

func TestFiscalConfiguration_SaveNoRetrocedeNumeracion(t *testing.T) {
	repos := postgres.NewRepositories(testPool(t))
	ctx := context.Background()
	tenant := newTenant(t, repos)

	cfg, err := repos.Configurations.GetByTenant(ctx, tenant)
	require.NoError(t, err)
	_, _, err = repos.Configurations.NextDocumentNumber(ctx, tenant)
	require.NoError(t, err)

	// cfg fue leído antes del incremento: Save conserva el número mayor
	require.NoError(t, repos.Configurations.Save(ctx, cfg))
	assert.Equal(t, int64(1), cfg.LastDocumentNumber)
}

// ─── Documentos ───────────────────────────────────────────────────────────────

func TestFiscalDocument_UnDocumentoVivoPorPedido(t *testing.T) {
	repos := postgres.NewRepositories(testPool(t))
	ctx := context.Background()
	tenant := newTenant(t, repos)

	first := newDocument(tenant, "order-1", 1)
	require.NoError(t, repos.Documents.Create(ctx, first))
	assert.ErrorIs(t, repos.Documents.Create(ctx, newDocument(tenant, "order-1", 2)), domain.ErrDuplicate)
	assert.ErrorIs(t, repos.Documents.Create(ctx, newDocument(tenant, "order-2", 1)), domain.ErrConflict)

	// un documento rechazado libera el pedido
	first.Status = entity.StatusSigning
	require.NoError(t, repos.Documents.Update(ctx, first, entity.StatusPending))
	first.Status = entity.StatusTransmitting
	require.NoError(t, repos.Documents.Update(ctx, first, entity.StatusSigning))
	first.Status = entity.StatusRejected
	first.ReasonCode = "539"
	require.NoError(t, repos.Documents.Update(ctx, first, entity.StatusTransmitting))
	require.NoError(t, repos.Documents.Create(ctx, newDocument(tenant, "order-1", 3)))

	live, err := repos.Documents.FindLiveByOrder(ctx, tenant, "order-1", entity.DocumentTypeNFCe)
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, int64(3), live.Number)
}

func TestFiscalDocument_UpdateCompararEstado(t *testing.T) {
	repos := postgres.NewRepositories(testPool(t))
	ctx := context.Background()
	tenant := newTenant(t, repos)

	doc := newDocument(tenant, "order-1", 1)
	require.NoError(t, repos.Documents.Create(ctx, doc))

	doc.Status = entity.StatusSigning
	doc.AccessKey = "31240112345678000190650010000000011000000016"
	require.NoError(t, repos.Documents.Update(ctx, doc, entity.StatusPending))

	// otro proceso ya avanzó el estado
	assert.ErrorIs(t, repos.Documents.Update(ctx, doc, entity.StatusPending), domain.ErrConflict)

	doc.Status = entity.StatusTransmitting
	require.NoError(t, repos.Documents.Update(ctx, doc, entity.StatusSigning))
	now := time.Now().UTC()
	doc.Status = entity.StatusAuthorized
	doc.Protocol = "131240000000001"
	doc.AuthorizedAt = &now
	require.NoError(t, repos.Documents.Update(ctx, doc, entity.StatusTransmitting))

	doc.Status = entity.StatusRejected
	assert.ErrorIs(t, repos.Documents.Update(ctx, doc, entity.StatusTransmitting), domain.ErrDocumentFinalized)

	got, err := repos.Documents.GetByID(ctx, tenant, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAuthorized, got.Status)
	assert.Equal(t, "131240000000001", got.Protocol)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("100")))

	missing, err := repos.Documents.GetByID(ctx, "otro-tenant", doc.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFiscalDocument_ListStalePorEstado(t *testing.T) {
	repos := postgres.NewRepositories(testPool(t))
	ctx := context.Background()
	tenant := newTenant(t, repos)

	signing := newDocument(tenant, "order-1", 1)
	require.NoError(t, repos.Documents.Create(ctx, signing))
	signing.Status = entity.StatusSigning
	require.NoError(t, repos.Documents.Update(ctx, signing, entity.StatusPending))

	pending := newDocument(tenant, "order-2", 2)
	require.NoError(t, repos.Documents.Create(ctx, pending))

	ids := func(status entity.DocumentStatus, before time.Time) []string {
		docs, err := repos.Documents.ListStale(ctx, status, before, 1000)
		require.NoError(t, err)
		var out []string
		for _, d := range docs {
			if d.TenantID == tenant {
				out = append(out, d.ID)
			}
		}
		return out
	}
	future := time.Now().Add(time.Minute)
	assert.Equal(t, []string{signing.ID}, ids(entity.StatusSigning, future))
	assert.Empty(t, ids(entity.StatusTransmitting, future))
	assert.Empty(t, ids(entity.StatusSigning, signing.UpdatedAt.Add(-time.Minute)), "solo los anteriores a before")
}

// ─── Cola de contingencia y auditoría ─────────────────────────────────────────

func TestContingencyQueue_FIFOEIdempotente(t *testing.T) {
	pool := testPool(t)
	repos := postgres.NewRepositories(pool)
	ctx := context.Background()
	tenant := newTenant(t, repos)

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	var ids []string
	for i := 0; i < 2; i++ {
		doc := newDocument(tenant, uuid.NewString(), int64(i+1))
		require.NoError(t, repos.Documents.Create(ctx, doc))
		entry := &entity.ContingencyQueueEntry{
			ID: uuid.NewString(), TenantID: tenant, DocumentID: doc.ID, UF: "MG", Model: "65",
			Environment: entity.EnvironmentHomologation, IssuedAt: base.Add(time.Duration(i) * time.Minute),
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, repos.Queue.Enqueue(ctx, entry))
		dup := *entry
		dup.ID = uuid.NewString()
		require.NoError(t, repos.Queue.Enqueue(ctx, &dup))
		ids = append(ids, entry.ID)
	}

	entries, err := repos.Queue.ListByTenant(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ids, []string{entries[0].ID, entries[1].ID})

	require.NoError(t, repos.Queue.RecordAttempt(ctx, ids[0], time.Now(), "timeout"))
	got, err := repos.Queue.GetByDocumentID(ctx, entries[0].DocumentID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "timeout", got.LastError)

	require.NoError(t, repos.Queue.Remove(ctx, ids[0]))
	entries, err = repos.Queue.ListByTenant(ctx, tenant)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAuditLog_AppendOnly(t *testing.T) {
	pool := testPool(t)
	repos := postgres.NewRepositories(pool)
	ctx := context.Background()
	tenant := newTenant(t, repos)

	entry := &entity.AuditLogEntry{
		ID: uuid.NewString(), TenantID: tenant, Actor: "admin", Action: entity.AuditActionSettingsUpdated,
		Entity: entity.AuditEntityFiscalSettings, EntityID: tenant, After: []byte(`{"version":1}`),
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, repos.AuditLogs.Append(ctx, entry))

	logs, err := repos.AuditLogs.List(ctx, repository.AuditLogFilter{TenantID: tenant})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].Before)
	assert.JSONEq(t, `{"version":1}`, string(logs[0].After))

	_, err = pool.Exec(ctx, `DELETE FROM audit_logs WHERE id = $1`, entry.ID)
	assert.Error(t, err)
}

// ─── Transacciones ────────────────────────────────────────────────────────────

func TestTxRunner_RollbackDeshaceTodo(t *testing.T) {
	repos := postgres.NewRepositories(testPool(t))
	ctx := context.Background()
	tenant := newTenant(t, repos)
	doc := newDocument(tenant, "order-tx", 1)

	err := repos.Tx.RunFiscal(ctx, func(cfg repository.FiscalConfigurationRepository, docs repository.FiscalDocumentRepository,
		_ repository.ContingencyQueueRepository, _ repository.AuditLogRepository) error {
		if _, _, err := cfg.NextDocumentNumber(ctx, tenant); err != nil {
			return err
		}
		if err := docs.Create(ctx, doc); err != nil {
			return err
		}
		return domain.ErrConflict
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := repos.Documents.GetByID(ctx, tenant, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	cfg, err := repos.Configurations.GetByTenant(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cfg.LastDocumentNumber)
}
