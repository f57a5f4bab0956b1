package main

import (
	"time"

	"github.com/md-rashed-zaman/clinicslots/libs/config"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/cache"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/jobs"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/outbox"
)

type serviceConfig struct {
	Service         string
	Port            string
	GRPCPort        string
	DatabaseURL     string
	Location        *time.Location
	DefaultSlots    availability.SlotConfig
	JWTSecret       string
	JWKSURL         string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RulesCacheTTL   time.Duration
	KafkaBrokers    []string
	KafkaGroupID    string
	ConsumeTopics   []string
	RateLimit       int
	CORSOrigins     []string
	OutboxRetention time.Duration
	MaintenanceCron string
}

func loadConfig() (serviceConfig, error) {
	cfg := serviceConfig{
		Service:         config.String("SERVICE_NAME", "scheduling-service"),
		JWTSecret:       config.String("JWT_SECRET", ""),
		JWKSURL:         config.String("JWKS_URL", ""),
		RedisAddr:       config.String("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   config.String("REDIS_PASSWORD", ""),
		KafkaBrokers:    config.List("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:    config.String("KAFKA_GROUP_ID", "scheduling-service"),
		ConsumeTopics:   config.List("KAFKA_CONSUME_TOPICS", []string{outbox.TypeWindowsChanged, outbox.TypeConfigChanged}),
		CORSOrigins:     config.List("CORS_ALLOWED_ORIGINS", nil),
		MaintenanceCron: config.String("MAINTENANCE_CRON", jobs.DefaultSchedule),
	}

	var err error
	if cfg.Port, err = config.Port("PORT", "8083"); err != nil {
		return cfg, err
	}
	if cfg.GRPCPort, err = config.Port("GRPC_PORT", "9093"); err != nil {
		return cfg, err
	}
	if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return cfg, err
	}
	if cfg.Location, err = config.Location("CLINIC_TIMEZONE", "UTC"); err != nil {
		return cfg, err
	}
	interval, err := config.Int("DEFAULT_SLOT_INTERVAL_MINUTES", availability.DefaultIntervalMinutes)
	if err != nil {
		return cfg, err
	}
	cfg.DefaultSlots = availability.SlotConfig{IntervalMinutes: interval}
	if err := cfg.DefaultSlots.Validate(); err != nil {
		return cfg, err
	}
	if cfg.RedisDB, err = config.Int("REDIS_DB", 0); err != nil {
		return cfg, err
	}
	if cfg.RulesCacheTTL, err = config.Duration("RULES_CACHE_TTL", cache.DefaultTTL); err != nil {
		return cfg, err
	}
	if cfg.RateLimit, err = config.Int("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return cfg, err
	}
	if cfg.OutboxRetention, err = config.Duration("OUTBOX_RETENTION", jobs.DefaultRetention); err != nil {
		return cfg, err
	}
	return cfg, nil
}
