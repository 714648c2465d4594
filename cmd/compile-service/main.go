package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"hwjudge/internal/common/db"
	"hwjudge/internal/common/mq"
	"hwjudge/internal/common/storage"
	"hwjudge/internal/grader/repository"
	"hwjudge/internal/grader/sandbox"
	"hwjudge/internal/grader/service"
	"hwjudge/pkg/utils/logger"
)

const defaultConfigPath = "configs/compile_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()

	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		logger.Error(ctx, "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		logger.Error(ctx, "init minio failed", zap.Error(err))
		return
	}

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
	if err != nil {
		logger.Error(ctx, "init kafka failed", zap.Error(err))
		return
	}
	defer func() {
		_ = mqClient.Close()
	}()

	engine := sandbox.NewEngine(appCfg.Sandbox)
	compileSvc := service.NewCompileService(
		appCfg.Compile,
		repository.NewSubmissionRepository(mysqlDB),
		repository.NewCompileRepository(mysqlDB),
		repository.NewAggregateRepository(mysqlDB),
		objStorage,
		engine,
		mqClient,
	)

	if err := compileSvc.Register(ctx); err != nil {
		logger.Error(ctx, "register compile handler failed", zap.Error(err))
		return
	}
	if err := mqClient.Start(); err != nil {
		logger.Error(ctx, "start consumer failed", zap.Error(err))
		return
	}
	logger.Info(ctx, "compile service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "compile service shutting down")
	if err := mqClient.Stop(); err != nil {
		logger.Error(ctx, "stop consumer failed", zap.Error(err))
	}
}
