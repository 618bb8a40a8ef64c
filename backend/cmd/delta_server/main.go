package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"deltaServer/backend/config"
	"deltaServer/backend/internal/cache"
	"deltaServer/backend/internal/collab"
	"deltaServer/backend/internal/httpapi/handlers"
	"deltaServer/backend/internal/httpapi/middleware"
	"deltaServer/backend/internal/logs"
	"deltaServer/backend/internal/store"
	"deltaServer/backend/internal/ws"
)

var (
	buildVersion = "dev"
	buildCommit  = "local"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	logger := logs.Init(logs.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Path:       cfg.Log.Path,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	logger.Info("starting delta server", "version", buildVersion, "commit", buildCommit, "port", cfg.Running.Port)

	err = run(cfg, logger)
	if err != nil {
		logger.Error("server exited", "err", err)
	}
	_ = logs.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 外部依赖都是可选的：没配置时退化为纯内存实现
	var (
		presence  cache.PresenceCache
		cursors   collab.CursorStore
		snapshots collab.SnapshotStore
		docs      handlers.DocumentLister
		publisher collab.EventPublisher
	)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		presence = cache.NewRedisPresence(rdb)
		cursors = cache.NewCursorStore(rdb, cfg.Collab.CursorTTL)
	} else {
		logger.Warn("redis disabled, presence and cursors stay in process")
	}

	if cfg.Mysql.DSN != "" {
		db, err := store.InitMySQL(cfg.Mysql.DSN)
		if err != nil {
			return fmt.Errorf("connect mysql: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		snapshots = store.NewSnapshotStore(db)
		docs = store.NewDocumentStore(db)
	} else {
		logger.Warn("mysql disabled, snapshots are not persisted")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		// === 初始化 Kafka Producer ===
		kafkaCfg := sarama.NewConfig()
		// SyncProducer 必须开启 Return.Successes
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer producer.Close()

		dispatcher := collab.NewKafkaDispatcher(producer, cfg.Kafka.Topic,
			collab.NewSemaphoreControl(cfg.Kafka.Workers),
			collab.KafkaDispatcherOptions{
				QueueSize:   cfg.Kafka.QueueSize,
				Workers:     cfg.Kafka.Workers,
				MaxRetry:    cfg.Kafka.MaxRetry,
				BaseBackoff: cfg.Kafka.BaseBackoff,
				MaxBackoff:  cfg.Kafka.MaxBackoff,
				Logger:      logger.With("component", "kafka"),
			})
		// 先于 producer.Close 执行，排空队列
		defer dispatcher.Close()
		publisher = dispatcher
	} else {
		logger.Warn("kafka disabled, applied ops are not published")
	}

	svc := collab.NewInMemoryService(snapshots, publisher, cursors, collab.Options{
		RingCapacity: cfg.Collab.RingCapacity,
		Logger:       logger.With("component", "collab"),
	})
	manager := ws.NewManager(ws.NewHub(presence), svc,
		collab.NewSemaphoreControl(cfg.Collab.MaxInFlight),
		ws.ConnOptions{
			SubmitTimeout: cfg.Collab.SubmitTimeout,
			PresenceTTL:   cfg.Collab.PresenceTTL,
			Logger:        logger.With("component", "ws"),
		})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Running.Port),
		Handler: newRouter(cfg, svc, docs, manager, logger),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Running.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRouter(cfg *config.Config, svc collab.Service, docs handlers.DocumentLister, manager *ws.Manager, logger *slog.Logger) *gin.Engine {
	gin.SetMode(cfg.Running.Mode)
	r := gin.New()
	// 中间件
	r.Use(gin.Logger(), gin.Recovery(), middleware.LimitBody(cfg.Running.MaxBodyBytes))
	r.Use(cors.New(cors.Config{
		// 允许任意来源（包含 file:// 场景的 Origin: null）
		AllowOriginFunc: func(origin string) bool { return true },
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	// delta 算法接口无状态，不需要登录；请求体和 diff 规模有上限
	handlers.RegisterDeltaRoutes(r.Group("/v1/delta"),
		handlers.DeltaLimits{MaxDiffLength: cfg.Collab.MaxDiffLength})

	authed := []gin.HandlerFunc{}
	if cfg.Auth.Secret != "" {
		// 从 Authorization 或 ?token= 提取 token，本地校验后写入 userId/username
		authed = append(authed, middleware.AuthMiddleware(cfg.Auth.Secret))
	} else {
		logger.Warn("auth.secret is empty, document routes are unauthenticated")
	}

	collabGroup := r.Group("/collab", authed...)
	collabGroup.GET("/ws", manager.WebSocketConnect)

	handlers.NewDocumentHandler(svc, docs).Register(r.Group("/v1/documents", authed...))
	return r
}
