package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jhoicas/pdv-fiscal/docs"
	"github.com/jhoicas/pdv-fiscal/internal/application/fiscal"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/memory"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/metrics"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/postgres"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/redislock"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/sefaz"
	"github.com/jhoicas/pdv-fiscal/internal/infrastructure/sefaz/signer"
	httpRouter "github.com/jhoicas/pdv-fiscal/internal/interfaces/http"
	"github.com/jhoicas/pdv-fiscal/pkg/config"
	"github.com/jhoicas/pdv-fiscal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: cfg.App.Name,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("storage", cfg.App.Storage).
		Msg("iniciando aplicación")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	deps, closeStorage := openStorage(ctx, cfg, log)
	defer closeStorage()

	endpoints, err := sefaz.NewEndpointResolver(cfg.Fiscal.EndpointOverrides)
	if err != nil {
		log.Fatal().Err(err).Msg("endpoints SEFAZ")
	}
	soapClient := sefaz.NewSOAPClient(cfg.Fiscal.TransmitTimeout)
	deps.Builder = sefaz.NewXMLBuilderService()
	deps.Signer = signer.NewDigitalSignatureService()
	deps.Transmitter = soapClient
	deps.Status = soapClient
	deps.Endpoints = endpoints

	orchOpts := []fiscal.Option{
		fiscal.WithLogger(log.Component("orchestrator")),
		fiscal.WithTransmitTimeout(cfg.Fiscal.TransmitTimeout),
	}
	if cfg.Metrics.Enabled {
		orchOpts = append(orchOpts, fiscal.WithMetrics(metrics.Fiscal(metrics.Config{
			ServiceName: cfg.App.Name,
			Environment: cfg.App.Env,
		})))
	}
	orchestrator := fiscal.NewEmissionOrchestrator(deps, orchOpts...)

	settingsUC := fiscal.NewSettingsUseCase(deps.Configs, deps.Audit)
	settingsUC.SetLogger(log.Component("settings"))
	queryUC := fiscal.NewQueryUseCase(deps.Documents, deps.Queue, deps.Audit)

	var sweeperOpts []fiscal.SweeperOption
	redisClient, err := redislock.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a Redis")
	}
	if locker := redislock.New(redisClient); locker != nil {
		defer redisClient.Close()
		sweeperOpts = append(sweeperOpts, fiscal.WithLocker(locker))
		log.Info().Str("addr", cfg.Redis.Addr).Msg("lock distribuido del barrido activo")
	}
	sweeper := fiscal.NewContingencySweeper(orchestrator, deps.Queue, fiscal.SweepConfig{
		BatchSize:     cfg.Fiscal.SweepBatchSize,
		Parallelism:   cfg.Fiscal.SweepParallelism,
		EntryTimeout:  cfg.Fiscal.EntryTimeout,
		RatePerSecond: cfg.Fiscal.RatePerSecond,
		StaleAfter:    cfg.Fiscal.StaleTransmitting,
	}, sweeperOpts...)

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.RunForever(ctx, cfg.Fiscal.SweepInterval)
	}()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.Fiscal.TransmitTimeout + 10*time.Second,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath:    "/",
		FileContent: []byte(docs.SwaggerInfo.ReadDoc()),
		Path:        "docs",
		Title:       "PDV Fiscal API",
	}))

	httpRouter.Router(app, httpRouter.RouterDeps{
		Fiscal:         httpRouter.NewFiscalHandler(orchestrator, settingsUC, queryUC, sweeper, log.Component("http")),
		JWTSecret:      cfg.JWT.Secret,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
		Logger:         log.Component("http"),
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
	stop()
	select {
	case <-sweepDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("barrido de contingencia no terminó a tiempo")
	}

	log.Info().Msg("aplicación detenida")
}

// openStorage arma los repositorios según APP_STORAGE. El modo memory no persiste nada
// y sirve para desarrollo contra el ambiente de homologación.
func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (fiscal.Deps, func()) {
	if cfg.App.Storage == config.StorageMemory {
		log.Warn().Msg("almacenamiento en memoria: los documentos se pierden al reiniciar")
		store := memory.NewStore()
		return fiscal.Deps{
			Configs:   store.Configurations(),
			Orders:    store.Orders(),
			Taxes:     store.TaxBreakdowns(),
			Documents: store.Documents(),
			Queue:     store.Queue(),
			Audit:     store.AuditLogs(),
			Tx:        store,
		}, func() {}
	}

	pool, err := postgres.NewPool(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	if cfg.DB.Migrate {
		if err := postgres.RunMigrations(pool); err != nil {
			pool.Close()
			log.Fatal().Err(err).Msg("migraciones")
		}
		log.Info().Msg("migraciones aplicadas")
	}
	repos := postgres.NewRepositories(pool)
	return fiscal.Deps{
		Configs:   repos.Configurations,
		Orders:    repos.Orders,
		Taxes:     repos.TaxBreakdowns,
		Documents: repos.Documents,
		Queue:     repos.Queue,
		Audit:     repos.AuditLogs,
		Tx:        repos.Tx,
	}, pool.Close
}
