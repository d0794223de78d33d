package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/assetdesk/modules"
	"github.com/iota-uz/assetdesk/modules/importer"
	"github.com/iota-uz/assetdesk/modules/importer/domain/backend"
	"github.com/iota-uz/assetdesk/modules/importer/infrastructure/memory"
	"github.com/iota-uz/assetdesk/modules/importer/infrastructure/persistence"
	"github.com/iota-uz/assetdesk/modules/importer/infrastructure/progress"
	"github.com/iota-uz/assetdesk/pkg/application"
	"github.com/iota-uz/assetdesk/pkg/configuration"
	"github.com/iota-uz/assetdesk/pkg/eventbus"
	"github.com/iota-uz/assetdesk/pkg/logging"
	"github.com/iota-uz/assetdesk/pkg/metrics"
	"github.com/iota-uz/assetdesk/pkg/middleware"
	"github.com/iota-uz/assetdesk/pkg/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	defer conf.Unload()
	logger := conf.Logger()

	if conf.OpenTelemetry.Enabled {
		tracingCleanup := logging.SetupTracing(
			context.Background(),
			conf.OpenTelemetry.ServiceName,
			conf.OpenTelemetry.TempoURL,
		)
		defer tracingCleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	var pool *pgxpool.Pool
	var importBackend backend.Backend
	switch conf.Import.Backend {
	case "memory":
		importBackend = memory.NewStore()
		logger.Warn("import backend is in-memory; imported data is lost on restart")
	default:
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		p, err := pgxpool.New(ctx, conf.Database.Opts)
		cancel()
		if err != nil {
			panic(err)
		}
		pool = p
		defer pool.Close()
		pg, err := persistence.NewPostgresBackend(persistence.DefaultMapping())
		if err != nil {
			panic(err)
		}
		importBackend = pg
	}

	var statuses progress.Store
	if conf.Import.ProgressStore == "redis" {
		client := redis.NewClient(&redis.Options{Addr: conf.RedisURL})
		defer func() { _ = client.Close() }()
		statuses = progress.NewRedisStore(client, conf.Import.ProgressTTL)
	} else {
		statuses = progress.NewMemoryStore(conf.Import.ProgressTTL)
	}

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	app.RegisterMiddleware(
		middleware.TracedMiddleware("http"),
		middleware.WithLogger(logger, conf.RequestIDHeader),
		middleware.ProvideDB(pool),
	)

	importModule := importer.NewModule(&importer.ModuleOptions{
		Backend:      importBackend,
		Statuses:     statuses,
		Import:       conf.Import,
		TenantHeader: conf.TenantIDHeader,
	})
	if err := modules.Load(app, importModule); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := server.NewHTTPServer(app).Start(ctx, conf.SocketAddress); err != nil {
		log.Printf("server stopped: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := importModule.Service().Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("imports were cancelled during shutdown")
	}
}
