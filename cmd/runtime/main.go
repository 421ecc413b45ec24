// cmd/runtime/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"contract-runtime/internal/common/aws"
	"contract-runtime/internal/common/config"
	"contract-runtime/internal/common/database"
	"contract-runtime/internal/common/httpclient"
	"contract-runtime/internal/common/logger"
	"contract-runtime/internal/common/observability"
	"contract-runtime/internal/dispatch"
	"contract-runtime/internal/events"
	"contract-runtime/internal/extension"
	"contract-runtime/internal/query"
	"contract-runtime/internal/runtime"
	"contract-runtime/internal/store"
	"contract-runtime/internal/validation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("starting contract runtime", map[string]interface{}{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	probes := map[string]runtime.Pinger{}

	dataStore, cleanup, err := buildStore(ctx, cfg, log, probes)
	if err != nil {
		log.Error("failed to initialize data store", map[string]interface{}{"error": err})
		os.Exit(1)
	}
	defer cleanup()

	registry := validation.NewRegistry()
	validation.RegisterBuiltins(registry, dataStore)

	snapshot := runtime.NewSnapshot(cfg.Contract.Path, registry, log)
	if err := snapshot.Load(); err != nil {
		log.Error("failed to load contract document", map[string]interface{}{
			"path":  cfg.Contract.Path,
			"error": err,
		})
		os.Exit(1)
	}

	emitter, err := buildEmitter(ctx, cfg, log, obs, probes)
	if err != nil {
		log.Error("failed to initialize event emitter", map[string]interface{}{"error": err})
		os.Exit(1)
	}

	dispatcher := dispatch.New(
		dataStore,
		validation.NewEngine(registry, log),
		query.NewTranslator(cfg.Query.DefaultPageSize, cfg.Query.MaxPageSize),
		extension.NewProxyExecutor(httpclient.NewClient(config.GetDuration(cfg.Proxy.Timeout)), log),
		emitter,
		cfg.Events.TopicPrefix,
		log,
		obs,
	)

	server := runtime.NewServer(cfg.Server, snapshot, dispatcher, cfg.Contract.ReloadEnable, log, probes)
	if err := server.Run(ctx); err != nil {
		log.Error("http server terminated", map[string]interface{}{"error": err})
		os.Exit(1)
	}
	log.Info("contract runtime stopped", nil)
}

func buildStore(ctx context.Context, cfg *config.Config, log logger.Logger, probes map[string]runtime.Pinger) (store.Store, func(), error) {
	cleanup := func() {}

	var s store.Store
	switch cfg.Store.Backend {
	case "postgres":
		client, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return nil, cleanup, err
		}
		pg := store.NewPostgres(client.DB, log)
		if err := pg.EnsureSchema(ctx); err != nil {
			client.Close()
			return nil, cleanup, err
		}
		probes["postgres"] = client
		cleanup = func() { client.Close() }
		s = pg

	case "elasticsearch":
		client, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return nil, cleanup, err
		}
		probes["elasticsearch"] = client
		s = store.NewElastic(client.Client, cfg.App.Name, log)

	default:
		s = store.NewMemory()
	}

	if cfg.Store.CacheEnabled {
		redisClient, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return nil, cleanup, err
		}
		probes["redis"] = redisClient
		inner := cleanup
		cleanup = func() {
			redisClient.Close()
			inner()
		}
		s = store.NewCached(s, redisClient.Client, config.GetDuration(cfg.Store.CacheTTL), log)
	}

	return s, cleanup, nil
}

func buildEmitter(ctx context.Context, cfg *config.Config, log logger.Logger, obs *observability.Observability, probes map[string]runtime.Pinger) (*events.Emitter, error) {
	var publisher events.Publisher

	switch cfg.Events.Backend {
	case "redis":
		redisClient, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return nil, err
		}
		probes["events-redis"] = redisClient
		publisher = events.NewRedisPublisher(redisClient.Client)

	case "sns":
		snsClient, err := aws.NewSNSClient(ctx, cfg.Events.SNS.Region)
		if err != nil {
			return nil, err
		}
		publisher = events.NewSNSPublisher(snsClient, cfg.Events.SNS.TopicARN)

	default:
		publisher = events.NewLogPublisher(log)
	}

	emitter := events.NewEmitter(publisher, cfg.Events.MaxAttempts,
		config.GetDuration(cfg.Events.BackoffBase), log, obs)

	if cfg.Events.Alerting.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Events.Alerting.Region)
		if err != nil {
			return nil, err
		}
		emitter.WithAlerter(events.NewSESAlerter(sesClient,
			cfg.Events.Alerting.FromEmail, cfg.Events.Alerting.ToEmail, log))
	}

	return emitter, nil
}
