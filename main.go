// File: gigchat/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gigchat/config"
	"gigchat/cron"
	"gigchat/database"
	"gigchat/database/repository"
	memoryRepo "gigchat/database/repository/memory"
	mongoRepo "gigchat/database/repository/mongo"
	"gigchat/handlers"
	"gigchat/middleware"
	"gigchat/routes"
	"gigchat/services/admin"
	"gigchat/services/events"
	"gigchat/services/notification"
	"gigchat/services/storage"
	"gigchat/services/tasks"
	"gigchat/services/user"
	"gigchat/services/workflow"
	"gigchat/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger := utils.GetLogger()
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Storage.
	var (
		store       repository.Store
		mongoClient *mongo.Client
	)
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("main: using the in-memory store, data is lost on restart")
		store = memoryRepo.NewStore()
	default:
		database.InitDB()
		mongoClient = database.MongoClient
		mongoStore, err := mongoRepo.NewStore(ctx, database.Database())
		if err != nil {
			logger.Fatal("main: failed to prepare mongo store", zap.Error(err))
		}
		store = mongoStore
	}

	// Events. With Redis configured, events also fan out to other instances.
	hub := events.NewHub(logger.Named("events"), 64)
	defer hub.Close()
	var (
		publisher    events.Publisher = hub
		authCache    *redis.Client
		redisClients []*redis.Client
	)
	if cfg.RedisAddr != "" {
		authCache = utils.GetCacheClient()
		eventsClient := utils.GetEventsClient()
		redisClients = append(redisClients, authCache, eventsClient)

		bridge := events.NewRedisBridge(eventsClient, hub, events.DefaultChannel, logger.Named("events"))
		publisher = bridge
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.Error("main: event bridge stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Warn("main: REDIS_ADDR is empty, events stay local and bid expiry is lazy")
	}

	// Notifications.
	var notifier notification.NotificationService
	fcm, err := utils.FirebaseInit(ctx)
	if err != nil {
		logger.Fatal("main: failed to initialize firebase", zap.Error(err))
	}
	if fcm != nil {
		svc, err := notification.NewDefaultNotificationService(store.Users(), fcm, logger.Named("push"))
		if err != nil {
			logger.Fatal("main: failed to initialize notifications", zap.Error(err))
		}
		notifier = svc
	} else {
		notifier = notification.NewLogNotificationService(logger.Named("push"))
	}

	// Workflow.
	opts := []workflow.Option{
		workflow.WithPublisher(publisher),
		workflow.WithNotifier(notifier),
		workflow.WithLogger(logger.Named("workflow")),
	}
	var (
		queue      *asynq.Client
		taskServer *asynq.Server
	)
	if cfg.RedisAddr != "" {
		queue = asynq.NewClient(cron.RedisOpt())
		opts = append(opts, workflow.WithScheduler(tasks.NewScheduler(queue)))
	}
	wf := workflow.NewWorkflowService(store, workflow.SettingsFromConfig(cfg), opts...)
	if queue != nil {
		taskServer = cron.InitTaskWorker(ctx, wf)
	}

	userService := user.NewUserService(store, cfg.TokenTTL, logger.Named("users"))
	adminService := admin.NewAdminService(store, notifier, logger.Named("admin"))

	handlerBundle := &handlers.HandlerBundle{
		UserRepo:  store.Users(),
		AuthCache: authCache,
		User:      handlers.NewUserHandler(userService),
		Chat:      handlers.NewChatHandler(wf, store.Chats(), hub),
		Job:       handlers.NewJobHandler(wf, store.Jobs()),
		Admin:     handlers.NewAdminHandler(adminService),
	}

	if cfg.StorageBucket != "" {
		media, err := storage.NewFirebaseStorageService(cfg.FirebaseCredentialsFile, cfg.StorageBucket, cfg.UploadURLTTL)
		if err != nil {
			logger.Fatal("main: failed to initialize media storage", zap.Error(err))
		}
		handlerBundle.Chat.Media = media
	}

	router := gin.New()
	router.Use(utils.ErrorHandler())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.RateLimitMiddleware(cfg.MaxRequestsPerMin))
	routes.RegisterRoutes(router, handlerBundle)

	utils.StartHealthMonitor(ctx, redisClients, mongoClient)

	port := cfg.AppPort
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	logger.Sugar().Infof("Starting server on %s...", srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Sugar().Fatalf("main: server failed to start: %v", err)
		}
	}()

	// Wait for an OS signal to gracefully shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Sugar().Info("main: server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Errorf("main: server forced to shutdown: %v", err)
	}
	stop()
	if taskServer != nil {
		taskServer.Shutdown()
	}
	if queue != nil {
		_ = queue.Close()
	}
	if mongoClient != nil {
		_ = mongoClient.Disconnect(shutdownCtx)
	}

	logger.Sugar().Info("main: server stopped gracefully")
	_ = logger.Sync()
}
