package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"hwjudge/internal/common/db"
	"hwjudge/internal/common/mq"
	"hwjudge/internal/common/storage"
	"hwjudge/internal/grader/sandbox"
	"hwjudge/internal/grader/service"
	"hwjudge/pkg/utils/logger"
)

// AppConfig is the compile service configuration loaded from YAML.
type AppConfig struct {
	Logger   logger.Config         `yaml:"logger"`
	Database db.MySQLConfig        `yaml:"database"`
	MinIO    storage.MinIOConfig   `yaml:"minio"`
	Kafka    KafkaSection          `yaml:"kafka"`
	Sandbox  sandbox.Config        `yaml:"sandbox"`
	Compile  service.CompileConfig `yaml:"compile"`
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

func loadAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := &AppConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if cfg.Compile.UploadsBucket == "" {
		cfg.Compile.UploadsBucket = "uploads"
	}
	if cfg.Compile.BinariesBucket == "" {
		cfg.Compile.BinariesBucket = "binaries"
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = "hwjudge-compile"
	}
	return cfg, nil
}
