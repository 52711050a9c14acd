package fiscal_test

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/pdv-fiscal/internal/application/dto"
	"github.com/jhoicas/pdv-fiscal/internal/application/fiscal"
	"github.com/jhoicas/pdv-fiscal/internal/domain"
	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/internal/domain/repository"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/memory"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/sefaz/signer/signertest"
)

func ptr[T any](v T) *T { return &v }

func TestSettingsUpdate_CreaConfiguracionConCertificado(t *testing.T) {
	store := memory.NewStore()
	uc := fiscal.NewSettingsUseCase(store.Configurations(), store.AuditLogs())
	_, bundle := signertest.Valid(t)
	ctx := fiscal.WithActor(context.Background(), "admin-1")

	out, err := uc.Update(ctx, "tenant-9", dto.UpdateFiscalSettingsRequest{
		CNPJ:              ptr("12.345.678/0001-90"),
		CompanyName:       ptr("Loja Teste Ltda"),
		Address:           &dto.AddressDTO{UF: "mg", City: "Belo Horizonte", CityCode: "3106200"},
		CertificateBase64: ptr(base64.StdEncoding.EncodeToString(bundle)),
		CSC:               ptr("SEGREDO"),
	})
	require.NoError(t, err)

	assert.True(t, out.CertificateConfigured)
	assert.Equal(t, "LOJA TESTE LTDA:12345678000190", out.CertificateReference)
	assert.NotNil(t, out.CertificateExpiresAt)
	assert.Equal(t, "MG", out.Address.UF)
	assert.True(t, out.CSCConfigured)
	assert.Equal(t, entity.EnvironmentHomologation, out.Environment)
	assert.Equal(t, int64(1), out.Version)

	logs, err := store.AuditLogs().List(ctx, repository.AuditLogFilter{TenantID: "tenant-9"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "admin-1", logs[0].Actor)
	assert.NotContains(t, string(logs[0].After), "SEGREDO")
	assert.NotContains(t, string(logs[0].After), "PRIVATE KEY")
}

func TestSettingsUpdate_NumeracionNoRetrocede(t *testing.T) {
	store := memory.NewStore()
	store.PutConfiguration(&entity.FiscalConfiguration{
		TenantID: tenantID, CNPJ: "12345678000190", TaxRegime: entity.TaxRegimeSimplesNacional,
		Environment: entity.EnvironmentHomologation, Series: 1, LastDocumentNumber: 10,
	})
	uc := fiscal.NewSettingsUseCase(store.Configurations(), store.AuditLogs())

	_, err := uc.Update(context.Background(), tenantID, dto.UpdateFiscalSettingsRequest{LastDocumentNumber: ptr(int64(5))})
	assert.ErrorIs(t, err, domain.ErrNumberingRegression)

	out, err := uc.Update(context.Background(), tenantID, dto.UpdateFiscalSettingsRequest{LastDocumentNumber: ptr(int64(50))})
	require.NoError(t, err)
	assert.Equal(t, int64(50), out.LastDocumentNumber)
}

func TestSettingsUpdate_VersionDesactualizada(t *testing.T) {
	store := memory.NewStore()
	store.PutConfiguration(&entity.FiscalConfiguration{
		TenantID: tenantID, CNPJ: "12345678000190", TaxRegime: entity.TaxRegimeSimplesNacional,
		Environment: entity.EnvironmentHomologation, Series: 1,
	})
	uc := fiscal.NewSettingsUseCase(store.Configurations(), store.AuditLogs())

	_, err := uc.Update(context.Background(), tenantID, dto.UpdateFiscalSettingsRequest{
		CompanyName: ptr("Nuevo nombre"),
		Version:     ptr(int64(99)),
	})
	assert.ErrorIs(t, err, domain.ErrStaleConfiguration)
}

func TestSettingsUpdate_Validaciones(t *testing.T) {
	tests := []struct {
		name    string
		in      dto.UpdateFiscalSettingsRequest
		wantErr error
	}{
		{"CNPJ corto", dto.UpdateFiscalSettingsRequest{CNPJ: ptr("123")}, domain.ErrInvalidIssuerID},
		{"UF desconocida", dto.UpdateFiscalSettingsRequest{Address: &dto.AddressDTO{UF: "XX"}}, domain.ErrInvalidJurisdiction},
		{"ambiente inválido", dto.UpdateFiscalSettingsRequest{Environment: ptr("staging")}, domain.ErrInvalidInput},
		{"certificado no base64", dto.UpdateFiscalSettingsRequest{CertificateBase64: ptr("%%%")}, domain.ErrInvalidInput},
		{"certificado ilegible", dto.UpdateFiscalSettingsRequest{CertificateBase64: ptr(base64.StdEncoding.EncodeToString([]byte("no es un p12")))}, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewStore()
			uc := fiscal.NewSettingsUseCase(store.Configurations(), store.AuditLogs())
			_, err := uc.Update(context.Background(), tenantID, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)

			cfg, err := store.Configurations().GetByTenant(context.Background(), tenantID)
			require.NoError(t, err)
			assert.Nil(t, cfg, "una actualización inválida no persiste nada")
		})
	}
}

func TestSettingsUpdate_CertificadoVencidoRechazado(t *testing.T) {
	store := memory.NewStore()
	uc := fiscal.NewSettingsUseCase(store.Configurations(), store.AuditLogs())
	past := time.Now().AddDate(-2, 0, 0)
	_, bundle := signertest.NewCertificate(t, "VENCIDO", past, past.AddDate(1, 0, 0))

	_, err := uc.Update(context.Background(), tenantID, dto.UpdateFiscalSettingsRequest{
		CNPJ:              ptr("12345678000190"),
		CertificateBase64: ptr(base64.StdEncoding.EncodeToString(bundle)),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSettingsGet_SinConfiguracion(t *testing.T) {
	store := memory.NewStore()
	uc := fiscal.NewSettingsUseCase(store.Configurations(), store.AuditLogs())
	_, err := uc.Get(context.Background(), tenantID)
	assert.ErrorIs(t, err, domain.ErrConfigurationMissing)
}

func TestQuery_DocumentosYXML(t *testing.T) {
	env := newTestEnv(t)
	env.putOrder("order-1")
	doc, err := env.orch.EmitDocument(context.Background(), tenantID, "order-1", entity.DocumentTypeNFCe)
	require.NoError(t, err)
	q := fiscal.NewQueryUseCase(env.store.Documents(), env.store.Queue(), env.store.AuditLogs())

	got, err := q.GetDocument(context.Background(), tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "authorized", got.Status)

	xml, err := q.GetDocumentXML(context.Background(), tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.SignedXML, string(xml))

	_, err = q.GetDocument(context.Background(), "otro-tenant", doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := q.ListDocuments(context.Background(), tenantID, entity.StatusAuthorized, dto.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Page.Total)
	assert.Equal(t, 20, list.Page.Limit)

	logs, err := q.ListAuditLogs(context.Background(), tenantID, entity.AuditEntityFiscalDocument, doc.ID, dto.PageRequest{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, logs.Items, 2)
}
