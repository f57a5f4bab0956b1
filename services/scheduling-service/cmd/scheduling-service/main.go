package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/clinicslots/libs/auth"
	"github.com/md-rashed-zaman/clinicslots/libs/config"
	"github.com/md-rashed-zaman/clinicslots/libs/db"
	"github.com/md-rashed-zaman/clinicslots/libs/grpcx"
	"github.com/md-rashed-zaman/clinicslots/libs/httpx"
	"github.com/md-rashed-zaman/clinicslots/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicslots/libs/otel"
	"github.com/md-rashed-zaman/clinicslots/libs/runtime"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/agenda"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/cache"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/consumer"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/grpcserver"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/inbox"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/jobs"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/storage"
)

func main() {
	config.LoadDotEnv()
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer runtime.Shutdown(logger, "otel", 5*time.Second, otelShutdown)
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewSchedulingMetrics(reg)

	outboxRepo := outbox.NewRepository(pool)
	inboxRepo := inbox.NewRepository(pool)
	scheduleRepo := storage.NewScheduleRepository(pool, outboxRepo)
	appointmentRepo := storage.NewAppointmentRepository(pool, outboxRepo)
	serviceRepo := storage.NewServiceRepository(pool)

	engine := availability.NewEngine(cfg.Location, logger)
	agendaSvc := agenda.NewService(engine, scheduleRepo, appointmentRepo, agenda.Options{
		Cache:    cache.NewScheduleCache(rdb, cfg.RulesCacheTTL),
		Defaults: cfg.DefaultSlots,
		Metrics:  m,
		Logger:   logger,
	})
	coordinator := booking.NewCoordinator(agendaSvc, serviceRepo, appointmentRepo, cfg.Location, logger)

	publisher := outbox.NewPublisher(outboxRepo, outbox.NewKafkaWriter(cfg.KafkaBrokers), logger, m, outbox.PublisherConfig{})
	go publisher.Run(ctx)

	reader := consumer.NewKafkaReader(consumer.Config{
		Brokers: cfg.KafkaBrokers,
		GroupID: cfg.KafkaGroupID,
		Topics:  cfg.ConsumeTopics,
	})
	go consumer.New(reader, inboxRepo, logger, m, consumer.InvalidateSchedule(agendaSvc, logger)).Run(ctx)

	maintenance := jobs.NewMaintenance(outboxRepo, inboxRepo, cfg.OutboxRetention, logger)
	if _, err := maintenance.Start(ctx, cfg.MaintenanceCron); err != nil {
		logger.Error("maintenance schedule invalid", "err", err, "spec", cfg.MaintenanceCron)
		panic(err)
	}

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "redis", Check: cache.ReadyCheck(rdb)},
		{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)},
	}
	grpcSrv := grpcserver.New(logger, checks...)
	grpcAddr, err := grpcSrv.Start(ctx, ":"+cfg.GRPCPort)
	if err != nil {
		logger.Error("grpc server failed to start", "err", err)
		panic(err)
	}
	grpcConn, err := grpcx.Dial(ctx, grpcAddr.String(), grpcx.DialOptions{})
	if err != nil {
		logger.Error("grpc self dial failed", "err", err)
	} else {
		defer grpcConn.Close()
		checks = append(checks, runtime.ReadyCheck{Name: "grpc", Check: grpcx.HealthReadyCheck(grpcConn, grpcserver.ServiceName)})
	}

	verifier := auth.Verifier{Secret: cfg.JWTSecret}
	if cfg.JWKSURL != "" {
		verifier.Keys = auth.NewJWKSClient(cfg.JWKSURL, 0)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", metrics.Handler(reg))
	handlers.NewSchedulingHandler(agendaSvc, coordinator, scheduleRepo, logger, m).Register(mux, verifier)

	limiter := httpx.NewRedisRateLimiter(rdb, cfg.RateLimit, time.Minute, "clinicslots:rl")
	handler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{AllowedOrigins: cfg.CORSOrigins, MaxAge: 10 * time.Minute}),
		httpx.NewRateLimiter(cfg.RateLimit).Middleware(),
		limiter.Middleware(logger, true),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	handler = otelhttp.NewHandler(handler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "timezone", cfg.Location.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	runtime.Shutdown(logger, "http", 10*time.Second, srv.Shutdown)
}
