package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"haven/internal/anonymize"
	"haven/internal/audit"
	"haven/internal/blackout"
	blackoutHandler "haven/internal/blackout/handler"
	"haven/internal/isolation"
	isolationHandler "haven/internal/isolation/handler"
	"haven/internal/jwttoken"
	"haven/internal/partner"
	partnerHandler "haven/internal/partner/handler"
	"haven/internal/platform/config"
	"haven/internal/platform/httpserver"
	"haven/internal/platform/logger"
	"haven/internal/platform/metrics"
	platformRedis "haven/internal/platform/redis"
	"haven/internal/ratelimit"
	"haven/internal/routing"
	routingHandler "haven/internal/routing/handler"
	"haven/internal/signal"
	"haven/internal/signal/adapters"
	signalHandler "haven/internal/signal/handler"
	httptransport "haven/internal/transport/http"
	"haven/internal/webhook"
)

// main wires the stores, services, and transport. Business logic stays in
// the internal packages; this file only chooses backends from configuration
// and owns the process lifecycle.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	m := metrics.New()

	var db *sql.DB
	if cfg.PostgresURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			return err
		}
	}

	redisClient, err := platformRedis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Audit: in-process store always, Kafka stream when brokers are set.
	auditStore := audit.NewInMemoryStore()
	var publisher audit.Publisher = audit.NewStorePublisher(auditStore, audit.WithLogger(log))
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPub, err := audit.NewKafkaPublisher(cfg.Kafka, log)
		if err != nil {
			return err
		}
		defer kafkaPub.Close()
		publisher = audit.Fanout{publisher, kafkaPub}
	}

	anonymizer, err := anonymize.New(cfg.AnonymizationSecret)
	if err != nil {
		return err
	}
	tokens := jwttoken.NewService(cfg.JWTSigningKey, "haven", "haven-api")

	// Stores: Postgres when configured, in-memory otherwise.
	var (
		signalStore  signal.Store
		partnerStore partner.Store
		ledgerStore  routing.Store
		sealedStore  isolation.SealedStore
		familyStore  isolation.FamilyVisibleStore
		legalGate    isolation.LegalRequestGate
		uow          isolation.UnitOfWork
		profiles     signal.ProfileDirectory
	)
	if db != nil {
		signalStore = signal.NewPostgresStore(db)
		partnerStore = partner.NewPostgresStore(db)
		ledgerStore = routing.NewPostgresStore(db)
		sealedStore = isolation.NewPostgresSealedStore(db)
		familyStore = isolation.NewPostgresFamilyStore(db)
		legalGate = isolation.NewPostgresLegalGate(db)
		uow = isolation.NewSQLUnitOfWork(db)
		profiles = signal.NewPostgresProfileDirectory(db)
	} else {
		log.Warn("no postgres configured, using in-memory stores")
		memSignals := signal.NewInMemoryStore()
		memLedger := routing.NewInMemoryStore()
		memSealed := isolation.NewInMemorySealedStore()
		memFamily := isolation.NewInMemoryFamilyStore()
		signalStore = memSignals
		partnerStore = partner.NewInMemoryStore()
		ledgerStore = memLedger
		sealedStore = memSealed
		familyStore = memFamily
		legalGate = isolation.NewInMemoryLegalGate()
		uow = isolation.MemoryUnitOfWork(memSealed, memFamily, memSignals, memLedger)
		profiles = signal.NewInMemoryProfileDirectory()
	}

	var blackoutStore blackout.Store
	var rateStore ratelimit.Store
	if redisClient != nil {
		blackoutStore = blackout.NewRedisStore(redisClient.Client)
		rateStore = ratelimit.NewRedisStore(redisClient.Client)
	} else {
		log.Warn("no redis configured, using in-memory blackout store")
		blackoutStore = blackout.NewInMemoryStore()
		rateStore = ratelimit.NewInMemoryStore()
	}
	limiter, err := ratelimit.NewLimiter(rateStore, cfg.TriggerRateLimit, cfg.TriggerRateWindow)
	if err != nil {
		return err
	}

	deliverer, err := webhook.New(tokens,
		webhook.WithLogger(log),
		webhook.WithTimeout(cfg.DeliveryTimeout),
	)
	if err != nil {
		return err
	}

	partnerSvc, err := partner.New(partnerStore,
		partner.WithLogger(log),
		partner.WithAuditPublisher(publisher),
	)
	if err != nil {
		return err
	}
	routingSvc, err := routing.New(partnerStore, ledgerStore,
		routing.WithLogger(log),
		routing.WithMetrics(m),
		routing.WithAuditPublisher(publisher),
		routing.WithDeliverer(deliverer),
	)
	if err != nil {
		return err
	}
	blackoutMgr, err := blackout.New(blackoutStore,
		blackout.WithLogger(log),
		blackout.WithMetrics(m),
		blackout.WithAuditPublisher(publisher),
		blackout.WithWindow(cfg.BlackoutDefault),
	)
	if err != nil {
		return err
	}
	isolationSvc, err := isolation.New(signalStore, ledgerStore, sealedStore, familyStore, legalGate, anonymizer, uow,
		isolation.WithLogger(log),
		isolation.WithMetrics(m),
		isolation.WithAuditPublisher(publisher),
	)
	if err != nil {
		return err
	}
	signalSvc, err := signal.New(signalStore, profiles,
		adapters.NewDeliveryRouter(routingSvc, partnerStore, log),
		adapters.NewBlackoutStart(blackoutMgr),
		signal.WithLogger(log),
		signal.WithMetrics(m),
		signal.WithAuditPublisher(publisher),
	)
	if err != nil {
		return err
	}

	router := httptransport.NewRouter(log, m,
		signalHandler.New(signalSvc, log, m, tokens,
			signalHandler.WithTriggerLimiter(ratelimit.Middleware(limiter, cfg.IPSalt, log)),
		),
		routingHandler.New(routingSvc, log, tokens),
		blackoutHandler.New(blackoutMgr, log, tokens),
		partnerHandler.New(partnerSvc, log, tokens),
		isolationHandler.New(isolationSvc, log, tokens),
	)
	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting haven", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	ossignal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
