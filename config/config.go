package config

import (
	"log"
	"time"

	pkgconfig "timeline-service/pkg/config"
)

type Config struct {
	Server pkgconfig.ServerConfig `yaml:"server"`
	DB     pkgconfig.DBConfig     `yaml:"db"`
	MQ     pkgconfig.MQConfig     `yaml:"mq"`
	Redis  pkgconfig.RedisConfig  `yaml:"redis"`
	JWT    pkgconfig.JWTConfig    `yaml:"jwt"`
	OTel   pkgconfig.OTelConfig   `yaml:"otel"`
	Outbox pkgconfig.OutboxConfig `yaml:"outbox"`
	RBAC   pkgconfig.RBACConfig   `yaml:"rbac"`
	// IndexTTL is how long a rebuilt timeline index stays in Redis
	IndexTTL time.Duration `yaml:"index_ttl"`
}

// Load reads config/base.yaml plus the CONFIG_ENV overlay, then applies env overrides.
func Load() *Config {
	cfg, err := LoadFrom(pkgconfig.GetConfigEnv(), pkgconfig.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom is Load with an explicit environment and directory.
func LoadFrom(env, dir string) (*Config, error) {
	merged, err := pkgconfig.LoadConfig(env, dir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := pkgconfig.Decode(merged, &cfg); err != nil {
		return nil, err
	}

	// environment variables win (production)
	pkgconfig.OverrideServerFromEnv(&cfg.Server)
	pkgconfig.OverrideDBFromEnv(&cfg.DB)
	pkgconfig.OverrideMQFromEnv(&cfg.MQ)
	pkgconfig.OverrideRedisFromEnv(&cfg.Redis)
	pkgconfig.OverrideJWTFromEnv(&cfg.JWT)
	pkgconfig.OverrideOTelFromEnv(&cfg.OTel)
	pkgconfig.OverrideRBACFromEnv(&cfg.RBAC)

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.OTel.ServiceName == "" {
		cfg.OTel.ServiceName = "timeline-service"
	}
	if cfg.Outbox.Interval == 0 {
		cfg.Outbox.Interval = time.Second
	}
	if cfg.Outbox.BatchSize == 0 {
		cfg.Outbox.BatchSize = 100
	}
	if cfg.Outbox.MaxRetries == 0 {
		cfg.Outbox.MaxRetries = 5
	}
	if cfg.RBAC.DefaultRole == "" {
		cfg.RBAC.DefaultRole = "editor"
	}
	if cfg.IndexTTL == 0 {
		cfg.IndexTTL = 24 * time.Hour
	}
}
