// Command weatherd is the weather event-sourcing service's process entry
// point: it wires the Postgres event store, the view repository, the three
// aggregate runtimes and their relays, the broadcast bus and subscribers,
// the weather provider adapter, the cron scheduler, the zones-file watcher,
// and the HTTP surface, then runs until a shutdown signal arrives.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/dmrolfs/weatherzone/internal/bus"
	"github.com/dmrolfs/weatherzone/internal/config"
	"github.com/dmrolfs/weatherzone/internal/eventstore"
	"github.com/dmrolfs/weatherzone/internal/httpapi"
	"github.com/dmrolfs/weatherzone/internal/model/registrar"
	"github.com/dmrolfs/weatherzone/internal/model/saga"
	"github.com/dmrolfs/weatherzone/internal/model/zone"
	"github.com/dmrolfs/weatherzone/internal/scheduler"
	"github.com/dmrolfs/weatherzone/internal/views"
	"github.com/dmrolfs/weatherzone/internal/weather"
	"github.com/dmrolfs/weatherzone/pkg/events"
	"github.com/dmrolfs/weatherzone/pkg/health"
	"github.com/dmrolfs/weatherzone/pkg/logger"
	"github.com/dmrolfs/weatherzone/pkg/metrics"
	weatherredis "github.com/dmrolfs/weatherzone/pkg/redis"
	"github.com/dmrolfs/weatherzone/pkg/tracing"
)

func main() {
	baseLog, err := logger.New(logger.Config{
		Environment: os.Getenv("APP_ENV"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		ServiceName: "weatherd",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	log := baseLog.GetZapLogger()
	defer func() {
		if err := log.Sync(); err != nil {
			log.Warn("failed to sync logger", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	tracingCfg := tracing.DefaultConfig()
	tracingCfg.ServiceName = cfg.AppName
	tracingCfg.Environment = cfg.AppEnv
	tp, shutdownTracing, err := tracing.Init(tracingCfg)
	if err != nil {
		log.Warn("failed to initialize tracing, continuing without it", zap.Error(err))
	} else if tp != nil {
		otel.SetTracerProvider(tp)
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				log.Warn("failed to shutdown tracing", zap.Error(err))
			}
		}()
	}

	db, err := sql.Open("postgres", fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
	))
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}()

	cache, err := weatherredis.NewCache(&weatherredis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     cfg.RedisPoolSize,
		MinIdleConns: cfg.RedisMinIdleConns,
		MaxRetries:   cfg.RedisMaxRetries,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer func() {
		if err := cache.Close(); err != nil {
			log.Warn("failed to close redis cache", zap.Error(err))
		}
	}()

	eventStore := eventstore.New(db)
	if err := eventStore.EnsureSchema(ctx); err != nil {
		log.Fatal("failed to ensure event store schema", zap.Error(err))
	}

	viewStore := views.NewStore(db)
	if err := viewStore.EnsureSchema(ctx); err != nil {
		log.Fatal("failed to ensure view store schema", zap.Error(err))
	}
	viewRepo := views.NewCachedRepository(viewStore, cache, 5*time.Minute)

	provider := weather.New(weather.Config{
		BaseURL:   cfg.WeatherProviderBaseURL,
		UserAgent: cfg.WeatherProviderUserAgent,
	}, log)

	healthChecker := health.NewHealthChecker()
	healthChecker.Register(health.NewDatabaseHealthCheck("postgres", db))
	healthChecker.Register(health.NewRedisHealthCheck("redis", cache.GetClient()))
	healthChecker.Register(health.NewHTTPHealthCheck("weather_provider", cfg.WeatherProviderBaseURL, 5*time.Second))

	// --- aggregate runtimes, relays, and the broadcast/subscriber fabric ---

	zoneRuntime := events.NewRuntime[zone.State, zone.Command, zone.Event](
		zone.New(zone.Services{Provider: provider}), eventStore, zone.Codec{}, log, 0)
	zoneBroadcast := events.NewEventBroadcastQuery[zone.Event]("location_zone", 0, log)
	zoneRuntime.AddQuery(zoneBroadcast)
	zoneRelay := events.NewCommandRelay[zone.Command]("location_zone", 0, func(ctx context.Context, id string, cmd zone.Command, md map[string]string) error {
		_, err := zoneRuntime.ExecuteWithMetadata(ctx, id, cmd, md)
		return err
	}, log)

	// sagaRuntime is referenced by sagaRelay's execute closure before it
	// exists: saga.Services (registering as a LocationZone subscriber) needs
	// the relay, and the relay needs a runtime to submit into. The closure
	// captures the variable, not its value, so this resolves once sagaRuntime
	// is assigned below, before anything calls Submit.
	var sagaRuntime *events.Runtime[saga.State, saga.Command, saga.Event]
	sagaBroadcast := events.NewEventBroadcastQuery[saga.Event]("update_locations", 0, log)
	sagaRelay := events.NewCommandRelay[saga.Command]("update_locations", 0, func(ctx context.Context, id string, cmd saga.Command, md map[string]string) error {
		_, err := sagaRuntime.ExecuteWithMetadata(ctx, id, cmd, md)
		return err
	}, log)

	sagaSubscriberRelay := events.NewSubscriberRelay[zone.Event, saga.Command](zoneBroadcast, sagaRelay, bus.ZoneEventConvert, log)
	sagaServices := saga.New(bus.NewSagaSubscriberAdmin(sagaSubscriberRelay))
	sagaRuntime = events.NewRuntime[saga.State, saga.Command, saga.Event](sagaServices, eventStore, saga.Codec{}, log, 0)
	sagaRuntime.AddQuery(sagaBroadcast)

	registrarServices := bus.NewRegistrarServices(zoneRelay, sagaRelay, zone.Forecast)
	registrarRuntime := events.NewRuntime[registrar.State, registrar.Command, registrar.Event](
		registrar.New(registrarServices), eventStore, registrar.Codec{}, log, 0)

	zoneUpdateController := bus.NewZoneUpdateController(zoneRelay, sagaRelay, provider, log)
	defer zoneUpdateController.Stop()
	sagaRuntime.AddQuery(zoneUpdateController)

	weatherProjection := views.NewWeatherProjection(viewRepo, log)
	zoneRuntime.AddQuery(weatherProjection)
	monitoredZonesProjection := views.NewMonitoredZonesProjection(viewRepo, log)
	registrarRuntime.AddQuery(monitoredZonesProjection)
	updateLocationsProjection := views.NewUpdateLocationsProjection(viewRepo, log)
	sagaRuntime.AddQuery(updateLocationsProjection)

	sagaRuntime.AddQuery(events.NewTracingQuery[saga.Event]("update_locations", func(e saga.Event) string { return e.Kind.String() }))
	zoneRuntime.AddQuery(events.NewTracingQuery[zone.Event]("location_zone", func(e zone.Event) string { return e.Kind.String() }))
	registrarRuntime.AddQuery(events.NewTracingQuery[registrar.Event]("registrar", func(e registrar.Event) string { return e.Kind.String() }))

	go zoneRelay.Run(ctx)
	go sagaRelay.Run(ctx)
	go sagaSubscriberRelay.Run(ctx)

	// --- scheduler: cron-driven UpdateWeather and zones-file hot reload ---

	cronTrigger, err := scheduler.NewCronTrigger(cfg.UpdateWeatherCron, registrarRuntime, log)
	if err != nil {
		log.Fatal("failed to build cron trigger", zap.Error(err))
	}
	cronTrigger.Start()
	defer cronTrigger.Stop()

	zonesWatcher, err := scheduler.NewZonesWatcher(cfg.WeatherZonesConfigPath, registrarRuntime, log)
	if err != nil {
		log.Warn("failed to start zones watcher, monitored zones will not hot-reload", zap.Error(err))
	} else {
		zonesWatcher.LoadInitial(ctx)
		go zonesWatcher.Run(ctx)
	}

	// --- metrics exposition ---

	metrics.Init(":" + cfg.MetricsPort)
	metrics.CollectRuntimeStats(ctx, 15*time.Second)

	// --- HTTP surface ---

	httpSrv := httpapi.NewServer(registrarRuntime, viewRepo, healthChecker, log)
	server := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: httpSrv.Handler()}

	go func() {
		log.Info("weatherd listening", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server exited", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown error", zap.Error(err))
	}
	log.Info("weatherd stopped")
}
