// seed_fiscal registra la configuración fiscal de un emisor y, opcionalmente, un pedido de
// prueba para emitir contra el ambiente de homologación.
//
// Uso: go run ./cmd/seed_fiscal <tenant_id> <settings.json> [certificado.pfx|.pem]
// settings.json sigue el cuerpo de PUT /api/fiscal/settings. La contraseña del certificado
// se lee de SEED_CERT_PASSWORD. Con SEED_DEMO_ORDER=<order_id> se crea además un pedido de
// dos ítems.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/pdv-fiscal/internal/application/dto"
	"github.com/jhoicas/pdv-fiscal/internal/application/fiscal"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/postgres"
	"github.com/jhoicas/pdv-fiscal/pkg/config"
	"github.com/jhoicas/pdv-fiscal/pkg/logger"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "uso: seed_fiscal <tenant_id> <settings.json> [certificado]")
		os.Exit(2)
	}
	tenantID, settingsPath := os.Args[1], os.Args[2]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargar configuración: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, Service: "seed_fiscal"})

	in, err := readSettings(settingsPath)
	if err != nil {
		log.Fatal().Err(err).Str("file", settingsPath).Msg("leer configuración")
	}
	if len(os.Args) > 3 {
		raw, err := os.ReadFile(os.Args[3])
		if err != nil {
			log.Fatal().Err(err).Msg("leer certificado")
		}
		encoded := base64.StdEncoding.EncodeToString(raw)
		password := os.Getenv("SEED_CERT_PASSWORD")
		in.CertificateBase64 = &encoded
		in.CertificatePassword = &password
	}

	ctx := fiscal.WithActor(context.Background(), "seed_fiscal")
	pool, err := postgres.NewPool(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()
	if err := postgres.RunMigrations(pool); err != nil {
		log.Fatal().Err(err).Msg("migraciones")
	}

	repos := postgres.NewRepositories(pool)
	settings := fiscal.NewSettingsUseCase(repos.Configurations, repos.AuditLogs)
	settings.SetLogger(log)
	out, err := settings.Update(ctx, tenantID, in)
	if err != nil {
		log.Fatal().Err(err).Msg("guardar configuración fiscal")
	}
	log.Info().Str("tenant_id", tenantID).Int64("version", out.Version).
		Bool("certificate", out.CertificateConfigured).Msg("configuración fiscal registrada")

	if orderID := os.Getenv("SEED_DEMO_ORDER"); orderID != "" {
		if err := seedDemoOrder(ctx, pool, tenantID, orderID); err != nil {
			log.Fatal().Err(err).Str("order_id", orderID).Msg("pedido de prueba")
		}
		log.Info().Str("order_id", orderID).Msg("pedido de prueba creado")
	}
}

func readSettings(path string) (dto.UpdateFiscalSettingsRequest, error) {
	var in dto.UpdateFiscalSettingsRequest
	raw, err := os.ReadFile(path)
	if err != nil {
		return in, err
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("decodificar %s: %w", path, err)
	}
	return in, nil
}

// seedDemoOrder inserta un pedido de 100,00 (2 × 35,00 + 1 × 30,00). Idempotente.
func seedDemoOrder(ctx context.Context, pool *pgxpool.Pool, tenantID, orderID string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders (id, tenant_id, total_amount, payment_method)
		VALUES ($1, $2, 100.00, 'cash')
		ON CONFLICT (tenant_id, id) DO NOTHING`, orderID, tenantID); err != nil {
		return fmt.Errorf("insertar pedido: %w", err)
	}
	items := []struct {
		suffix, product, name string
		qty, price            decimal.Decimal
	}{
		{"1", "demo-cafe", "Cafe torrado 500g", decimal.NewFromInt(2), decimal.RequireFromString("35.00")},
		{"2", "demo-pao", "Pao de queijo 1kg", decimal.NewFromInt(1), decimal.RequireFromString("30.00")},
	}
	for i, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, tenant_id, order_id, position, product_id, product_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (tenant_id, id) DO NOTHING`,
			orderID+"-"+it.suffix, tenantID, orderID, i, it.product, it.name, it.qty, it.price); err != nil {
			return fmt.Errorf("insertar ítem %d: %w", i+1, err)
		}
	}
	return tx.Commit(ctx)
}
