package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/pdv-fiscal/pkg/config"
)

func TestLoad_ValoresPorDefecto(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "pdv-fiscal", cfg.App.Name)
	assert.Equal(t, "postgres", cfg.App.Storage)
	assert.Equal(t, 30*time.Second, cfg.Fiscal.TransmitTimeout)
	assert.Equal(t, time.Minute, cfg.Fiscal.SweepInterval)
	assert.Equal(t, 4, cfg.Fiscal.SweepParallelism)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_VariablesDeEntorno(t *testing.T) {
	t.Setenv("APP_STORAGE", "memory")
	t.Setenv("FISCAL_TRANSMIT_TIMEOUT", "10s")
	t.Setenv("FISCAL_SWEEP_INTERVAL", "120")
	t.Setenv("FISCAL_SWEEP_PARALLELISM", "8")
	t.Setenv("SEFAZ_ENDPOINT_OVERRIDES", "MG/65/homologation=https://localhost/auth")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.App.Storage)
	assert.Equal(t, 10*time.Second, cfg.Fiscal.TransmitTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Fiscal.SweepInterval)
	assert.Equal(t, 8, cfg.Fiscal.SweepParallelism)
	assert.Equal(t, "MG/65/homologation=https://localhost/auth", cfg.Fiscal.EndpointOverrides)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_AlmacenamientoInvalido(t *testing.T) {
	t.Setenv("APP_STORAGE", "sqlite")
	_, err := config.Load()
	assert.Error(t, err)
}
