package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hwjudge/internal/common/cache"
	"hwjudge/internal/common/db"
	"hwjudge/internal/common/mq"
	"hwjudge/internal/common/storage"
	"hwjudge/internal/grader/barrier"
	"hwjudge/internal/grader/controller"
	"hwjudge/internal/grader/dispatch"
	"hwjudge/internal/grader/fixture"
	"hwjudge/internal/grader/repository"
	"hwjudge/internal/grader/sandbox"
	"hwjudge/internal/grader/service"
	"hwjudge/pkg/utils/logger"
)

const defaultConfigPath = "configs/execute_service.yaml"

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

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(ctx, "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
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

	subRepo := repository.NewSubmissionRepository(mysqlDB)
	compileRepo := repository.NewCompileRepository(mysqlDB)
	testRepo := repository.NewTestCaseRepository(mysqlDB)
	resultRepo := repository.NewExecutionResultRepository(mysqlDB)
	aggRepo := repository.NewAggregateRepository(mysqlDB)

	engine := sandbox.NewEngine(appCfg.Sandbox)
	pool := dispatch.NewPool(appCfg.Grader.PoolSize)
	defer pool.Close()
	bar := barrier.New(redisCache, aggRepo, appCfg.Grader.BarrierTTL)
	fixtureStore := fixture.NewStore(objStorage, appCfg.Grader.FixturesBucket)

	executeSvc := service.NewExecuteService(
		appCfg.Execute,
		subRepo, compileRepo, testRepo, resultRepo,
		fixtureStore, objStorage, engine, pool, bar, mqClient,
	)

	if err := executeSvc.Register(ctx); err != nil {
		logger.Error(ctx, "register execute handler failed", zap.Error(err))
		return
	}
	if err := mqClient.Start(); err != nil {
		logger.Error(ctx, "start consumer failed", zap.Error(err))
		return
	}

	gin.SetMode(appCfg.HTTP.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	controller.NewResultController(resultRepo, aggRepo).RegisterRoutes(router)
	controller.NewHealthController(map[string]controller.Pinger{
		"mysql": mysqlDB,
		"redis": redisCache,
		"kafka": mqClient,
	}).RegisterRoutes(router)

	server := &http.Server{
		Addr:              appCfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server failed", zap.Error(err))
		}
	}()
	logger.Info(ctx, "execute service started", zap.String("addr", appCfg.HTTP.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "execute service shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "http shutdown failed", zap.Error(err))
	}
	if err := mqClient.Stop(); err != nil {
		logger.Error(ctx, "stop consumer failed", zap.Error(err))
	}
}
