package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"hwjudge/internal/common/db"
	"hwjudge/internal/common/storage"
	"hwjudge/internal/grader/sandbox"
	"hwjudge/pkg/utils/logger"
)

// AppConfig is the reference upload tool configuration.
type AppConfig struct {
	Logger   logger.Config       `yaml:"logger"`
	Database db.MySQLConfig      `yaml:"database"`
	MinIO    storage.MinIOConfig `yaml:"minio"`
	Sandbox  sandbox.Config      `yaml:"sandbox"`
	Grader   GraderSection       `yaml:"grader"`
}

// GraderSection holds ingestion-side grading settings.
type GraderSection struct {
	FixturesBucket  string `yaml:"fixturesBucket"`
	CompileTemplate string `yaml:"compileTemplate"`
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
	if cfg.Grader.FixturesBucket == "" {
		cfg.Grader.FixturesBucket = "fixtures"
	}
	return cfg, nil
}
