package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"hwjudge/internal/common/cache"
	"hwjudge/internal/common/db"
	"hwjudge/internal/common/mq"
	"hwjudge/internal/common/storage"
	"hwjudge/internal/grader/sandbox"
	"hwjudge/internal/grader/service"
	"hwjudge/pkg/utils/logger"
)

// AppConfig is the execute service configuration loaded from YAML.
type AppConfig struct {
	Logger   logger.Config         `yaml:"logger"`
	Database db.MySQLConfig        `yaml:"database"`
	Redis    cache.RedisConfig     `yaml:"redis"`
	MinIO    storage.MinIOConfig   `yaml:"minio"`
	Kafka    KafkaSection          `yaml:"kafka"`
	Sandbox  sandbox.Config        `yaml:"sandbox"`
	Execute  service.ExecuteConfig `yaml:"execute"`
	Grader   GraderSection         `yaml:"grader"`
	HTTP     HTTPSection           `yaml:"http"`
}

// KafkaSection is the YAML-friendly subset of the broker settings.
type KafkaSection struct {
	Brokers  []string `yaml:"brokers"`
	ClientID string   `yaml:"clientID"`
}

func (k KafkaSection) toMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:  k.Brokers,
		ClientID: k.ClientID,
	}
}

// GraderSection bounds the shared worker pool and the barrier lists.
type GraderSection struct {
	PoolSize       int           `yaml:"poolSize"`
	BarrierTTL     time.Duration `yaml:"barrierTTL"`
	FixturesBucket string        `yaml:"fixturesBucket"`
}

// HTTPSection configures the read-only result API.
type HTTPSection struct {
	Addr string `yaml:"addr"`
	Mode string `yaml:"mode"` // gin mode: debug, release, test
}

func loadAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := &AppConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if cfg.Execute.BinariesBucket == "" {
		cfg.Execute.BinariesBucket = "binaries"
	}
	if cfg.Grader.PoolSize <= 0 {
		cfg.Grader.PoolSize = 4
	}
	if cfg.Grader.BarrierTTL <= 0 {
		cfg.Grader.BarrierTTL = time.Hour
	}
	if cfg.Grader.FixturesBucket == "" {
		cfg.Grader.FixturesBucket = "fixtures"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8084"
	}
	if cfg.HTTP.Mode == "" {
		cfg.HTTP.Mode = "release"
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = "hwjudge-execute"
	}
	return cfg, nil
}
