package sefaz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/pdv-fiscal/internal/domain"
	"github.com/jhoicas/pdv-fiscal/internal/domain/entity"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/sefaz"
	"github.com/jhoicas/pdv-fiscal/pkg/nfe"
)

func TestResolve_TablaPorDefecto(t *testing.T) {
	r, err := sefaz.NewEndpointResolver("")
	require.NoError(t, err)

	ep, err := r.Resolve("mg", nfe.ModelNFCe, entity.EnvironmentHomologation)
	require.NoError(t, err)
	assert.Equal(t, "MG", ep.UF)
	assert.Contains(t, ep.AuthorizationURL, "hnfce.fazenda.mg.gov.br")
	assert.Contains(t, ep.StatusURL, "NFeConsultaProtocolo4")
}

func TestResolve_UFSinServicioPropioUsaSVRS(t *testing.T) {
	r, err := sefaz.NewEndpointResolver("")
	require.NoError(t, err)

	ep, err := r.Resolve("SC", nfe.ModelNFe, entity.EnvironmentProduction)
	require.NoError(t, err)
	assert.Equal(t, "SC", ep.UF)
	assert.Contains(t, ep.AuthorizationURL, "svrs.rs.gov.br")
}

func TestResolve_AmbienteDesconocidoEsHomologacion(t *testing.T) {
	r, err := sefaz.NewEndpointResolver("")
	require.NoError(t, err)

	ep, err := r.Resolve("SP", nfe.ModelNFe, "")
	require.NoError(t, err)
	assert.Equal(t, entity.EnvironmentHomologation, ep.Environment)
	assert.Contains(t, ep.AuthorizationURL, "homologacao")
}

func TestResolve_Override(t *testing.T) {
	r, err := sefaz.NewEndpointResolver(
		"MG/65/homologation=http://localhost:9000/auth,http://localhost:9000/status; MG/99/production=http://nfse.local/ws")
	require.NoError(t, err)

	ep, err := r.Resolve("MG", nfe.ModelNFCe, entity.EnvironmentHomologation)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/auth", ep.AuthorizationURL)
	assert.Equal(t, "http://localhost:9000/status", ep.StatusURL)
	assert.Equal(t, ep.AuthorizationURL, ep.Key())

	ep, err = r.Resolve("MG", nfe.ModelNFSe, entity.EnvironmentProduction)
	require.NoError(t, err)
	assert.Equal(t, "http://nfse.local/ws", ep.AuthorizationURL)
	assert.Empty(t, ep.StatusURL)
}

func TestResolve_Errores(t *testing.T) {
	r, err := sefaz.NewEndpointResolver("")
	require.NoError(t, err)

	_, err = r.Resolve("XX", nfe.ModelNFe, entity.EnvironmentProduction)
	assert.ErrorIs(t, err, domain.ErrInvalidJurisdiction)

	_, err = r.Resolve("MG", nfe.ModelNFSe, entity.EnvironmentProduction)
	assert.ErrorIs(t, err, domain.ErrEndpointNotConfigured)
}

func TestNewEndpointResolver_OverrideInvalido(t *testing.T) {
	for _, raw := range []string{
		"MG/65=http://x",
		"MG/65/staging=http://x",
		"MG/65/production",
		"MG/65/production=",
	} {
		_, err := sefaz.NewEndpointResolver(raw)
		assert.Error(t, err, raw)
	}
}
