// Command server runs the consent and decision gateway. main wires storage,
// the audit pipeline, and the HTTP surface; business logic lives in the
// internal service packages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"consentgate/internal/catalog"
	consenthandler "consentgate/internal/consent/handler"
	consentservice "consentgate/internal/consent/service"
	consentstore "consentgate/internal/consent/store"
	decisionhandler "consentgate/internal/decision/handler"
	decisionmetrics "consentgate/internal/decision/metrics"
	decisionservice "consentgate/internal/decision/service"
	decisionstore "consentgate/internal/decision/store"
	perceptionhandler "consentgate/internal/perception/handler"
	perceptionservice "consentgate/internal/perception/service"
	perceptionstore "consentgate/internal/perception/store"
	"consentgate/internal/perception/trigger"
	permissionhandler "consentgate/internal/permission/handler"
	permissionservice "consentgate/internal/permission/service"
	permissionstore "consentgate/internal/permission/store"
	"consentgate/internal/platform/config"
	"consentgate/internal/platform/httpserver"
	"consentgate/internal/platform/kafka"
	kafkaconsumer "consentgate/internal/platform/kafka/consumer"
	"consentgate/internal/platform/logger"
	"consentgate/internal/platform/metrics"
	"consentgate/internal/platform/middleware"
	platformredis "consentgate/internal/platform/redis"
	"consentgate/internal/privacy/cache"
	privacyhandler "consentgate/internal/privacy/handler"
	privacyservice "consentgate/internal/privacy/service"
	"consentgate/internal/token"
	"consentgate/pkg/platform/audit"
	auditconsumer "consentgate/pkg/platform/audit/consumer"
	"consentgate/pkg/platform/audit/publishers/compliance"
	"consentgate/pkg/platform/audit/publishers/ops"
	"consentgate/pkg/platform/audit/publishers/security"
	auditmem "consentgate/pkg/platform/audit/store/memory"
	auditpg "consentgate/pkg/platform/audit/store/postgres"
	"consentgate/pkg/platform/audit/worker"
	"consentgate/pkg/platform/tx"
)

const (
	jwtIssuer   = "consentgate"
	jwtAudience = "consentgate"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(context.Background(), cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage. An empty DSN selects the in-memory stores so the service can
	// run without infrastructure during development.
	var (
		consentStore    consentstore.Store
		permissionStore permissionstore.Store
		decisionStore   decisionstore.Store
		perceptionStore perceptionstore.Store
		auditStore      audit.Store
		outboxStore     *auditpg.Store
		runner          tx.Runner
	)
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("pgx", cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		defer db.Close()

		consentStore = consentstore.NewPostgresStore(db)
		permissionStore = permissionstore.NewPostgresStore(db)
		decisionStore = decisionstore.NewPostgresStore(db)
		perceptionStore = perceptionstore.NewPostgresStore(db)
		outboxStore = auditpg.New(db)
		auditStore = outboxStore
		runner = tx.NewPostgresRunner(db)
		log.Info("using postgres storage")
	} else {
		consentStore = consentstore.NewMemoryStore()
		permissionStore = permissionstore.NewMemoryStore()
		decisionStore = decisionstore.NewMemoryStore()
		perceptionStore = perceptionstore.NewMemoryStore()
		auditStore = auditmem.NewInMemoryStore()
		runner = tx.NewMemoryRunner()
		log.Warn("POSTGRES_DSN not set, using in-memory storage")
	}

	// Privacy score cache. Falls back to an in-process cache when Redis is
	// not configured.
	var scoreCache privacyservice.Cache = cache.NewMemoryCache()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		scoreCache = cache.NewRedisCache(redisClient.Client, 0)
		log.Info("using redis score cache")
	}

	// Kafka producer, shared by the outbox worker and the perception
	// re-evaluation trigger. No brokers means audit events stay in the
	// outbox and no trigger fires.
	var producer *kafka.Producer
	var reeval perceptionservice.Reevaluator
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafka.NewProducer(ctx, cfg.Kafka.Brokers,
			cfg.Kafka.ComplianceTopic,
			cfg.Kafka.SecurityTopic,
			cfg.Kafka.OperationsTopic,
			cfg.Kafka.ReevaluationTopic,
		)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer producer.Close()
		reeval = trigger.NewKafkaTrigger(producer, cfg.Kafka.ReevaluationTopic)
	}

	// Audit publishers.
	compliancePub := compliance.New(auditStore,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	)
	defer compliancePub.Close()

	opsTracker := ops.NewTracker(auditStore,
		ops.WithLogger(log),
		ops.WithMetrics(ops.NewMetrics()),
	)
	defer opsTracker.Close()

	secPub := security.NewPublisher(auditStore, log)
	defer secPub.Close()

	// Services.
	registry := catalog.Default()
	m := metrics.New()
	decisionM := decisionmetrics.New()
	tokens := token.NewService(cfg.Server.JWTSigningKey, jwtIssuer, jwtAudience)

	consentSvc := consentservice.New(consentStore, compliancePub, log, cfg.PolicyVersion)
	permissionSvc := permissionservice.New(registry, permissionStore, consentStore, runner, compliancePub, scoreCache, log)
	privacySvc := privacyservice.New(registry, permissionStore, scoreCache, m, log)
	decisionSvc := decisionservice.New(decisionStore, permissionSvc, compliancePub, opsTracker, m, log)
	gate := decisionservice.NewGate(decisionSvc, decisionM)
	perceptionSvc := perceptionservice.New(perceptionStore, runner, compliancePub, reeval, log)

	// HTTP surface.
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	router.Use(middleware.ContentTypeJSON)
	router.Use(middleware.ClientMetadata)
	router.Use(middleware.Latency(m))

	consenthandler.New(consentSvc, log, m, tokens, secPub).Register(router)
	permissionhandler.New(permissionSvc, registry, log, m, tokens, secPub).Register(router)
	privacyhandler.New(privacySvc, log, tokens, secPub).Register(router)
	decisionhandler.New(decisionSvc, gate, log, m, tokens, secPub).Register(router)
	perceptionhandler.New(perceptionSvc, log, m, tokens, secPub).Register(router)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.Handler())

	g, ctx := errgroup.WithContext(ctx)

	// The outbox worker and compliance consumer need both durable storage
	// and brokers; with either missing, events wait in the outbox.
	if producer != nil && outboxStore != nil {
		outboxWorker := worker.New(outboxStore, producer,
			worker.Topics{
				Compliance: cfg.Kafka.ComplianceTopic,
				Security:   cfg.Kafka.SecurityTopic,
				Operations: cfg.Kafka.OperationsTopic,
			},
			log,
			worker.WithPollInterval(cfg.Audit.PollInterval),
			worker.WithBatchSize(cfg.Audit.BatchSize),
		)
		g.Go(func() error {
			if err := outboxWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("outbox worker: %w", err)
			}
			return nil
		})

		auditRouter := auditconsumer.NewRouter(log)
		auditRouter.Register(cfg.Kafka.ComplianceTopic, auditconsumer.NewComplianceHandler(outboxStore, log))
		consumer, err := kafkaconsumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup,
			[]string{cfg.Kafka.ComplianceTopic}, auditRouter, log)
		if err != nil {
			return fmt.Errorf("create audit consumer: %w", err)
		}
		g.Go(func() error {
			defer consumer.Close()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("audit consumer: %w", err)
			}
			return nil
		})
	}

	srv := httpserver.New(cfg.Server.Addr, router)
	g.Go(func() error {
		log.Info("starting consentgate", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
