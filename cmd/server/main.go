package main

import (
	"context"
	"fmt"
	"log"

	"cartflow/internal/api/handler"
	"cartflow/internal/config"
	"cartflow/internal/core/ports"
	"cartflow/internal/core/postgres/eventstore"
	"cartflow/internal/core/postgres/repository"
	"cartflow/internal/domain"
	"cartflow/internal/engine"
	redisinfra "cartflow/internal/infrastructure/redis"
	"cartflow/internal/logger"
	"cartflow/internal/orders"
	"cartflow/internal/saga"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	ctx := context.Background()

	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	zlog, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatal("Failed to build logger:", err)
	}
	defer zlog.Sync()

	// 2. Database connection and schema
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		cfg.DB.Host, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.Port, cfg.DB.SSLMode)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		zlog.Fatal("connecting to database", zap.Error(err))
	}

	models := append([]any{&domain.WorkflowInstance{}, &domain.WorkflowEventRecord{}}, repository.CatalogModels()...)
	if err := db.AutoMigrate(models...); err != nil {
		zlog.Fatal("migrating schema", zap.Error(err))
	}

	// 3. Storage adapters
	repo := repository.NewWorkflowRepository(db)
	events := eventstore.NewEventStore(db)

	// 4. Redis event fan-out (optional: the engine runs without it)
	var publisher ports.EventPublisher
	if client, err := redisinfra.NewClient(ctx, cfg.Redis.Addr); err != nil {
		zlog.Warn("redis unavailable, event fan-out disabled", zap.Error(err))
	} else {
		publisher = redisinfra.NewEventBus(client)
	}

	// 5. Engine
	sagas := saga.NewHandler(zlog, cfg.Saga.MaxParallel)
	eng := engine.New(repo, events, sagas, publisher, zlog)

	// 6. Built-in order-fulfillment catalog entries
	if err := orders.Seed(ctx, repo); err != nil {
		zlog.Fatal("seeding catalog", zap.Error(err))
	}

	// 7. HTTP surface
	workflowHandler := handler.NewWorkflowHandler(eng, orders.NewStepRegistry())
	router := gin.Default()
	workflowHandler.RegisterRoutes(router)
	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	zlog.Info("server starting", zap.String("addr", cfg.HTTP.Addr))
	if err := router.Run(cfg.HTTP.Addr); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}
