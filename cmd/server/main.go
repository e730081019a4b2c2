package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/careassist/hospital-assistant/internal/api"
	"github.com/careassist/hospital-assistant/internal/chat"
	"github.com/careassist/hospital-assistant/internal/circuitbreaker"
	"github.com/careassist/hospital-assistant/internal/classifier"
	"github.com/careassist/hospital-assistant/internal/config"
	"github.com/careassist/hospital-assistant/internal/db"
	"github.com/careassist/hospital-assistant/internal/knowledge"
	"github.com/careassist/hospital-assistant/internal/sentiment"
	"github.com/careassist/hospital-assistant/internal/session"
	"github.com/careassist/hospital-assistant/internal/store"
	"github.com/careassist/hospital-assistant/internal/ws"
	"github.com/careassist/hospital-assistant/pkg/logger"
	"github.com/careassist/hospital-assistant/pkg/mongodb"
	"github.com/careassist/hospital-assistant/pkg/redis"
)

func main() {
	configPath := getEnv("CONFIG_PATH", "configs/server.yaml")
	if _, err := os.Stat(configPath); err != nil {
		configPath = ""
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	kb, err := loadKnowledge(cfg.Knowledge.Path)
	if err == nil {
		err = kb.Validate()
	}
	if err != nil {
		zapLogger.Fatal("Failed to load knowledge base", zap.Error(err))
	}
	zapLogger.Info("Knowledge base loaded",
		zap.Int("intents", len(kb.Intents)),
		zap.String("source", knowledgeSource(cfg.Knowledge.Path)),
	)

	engine := chat.NewEngine(
		classifier.NewClassifier(kb,
			classifier.WithThresholds(cfg.Classifier.MatchThreshold, cfg.Classifier.AcceptThreshold)),
		sentiment.NewClassifier(kb, cfg.Sentiment),
		zapLogger,
	)

	ctx := context.Background()
	backend, closeStore, err := openStore(ctx, cfg.Store, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer closeStore()

	breaker := circuitbreaker.NewCircuitBreaker(
		cfg.Store.Breaker.MaxFailures,
		cfg.Store.Breaker.ResetTimeout,
		circuitbreaker.WithStateChange(func(from, to circuitbreaker.State) {
			zapLogger.Warn("Store circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}),
	)
	guarded := store.NewGuarded(backend, breaker)

	sessions := session.NewManager(guarded, engine, zapLogger,
		session.WithDelay(session.RandomDelay{Min: cfg.Session.MinDelay, Max: cfg.Session.MaxDelay}),
	)
	stream := ws.NewStreamHandler(sessions, cfg.Server.AllowedOrigins, cfg.Server.WSPerMinute, zapLogger)

	router := api.NewRouter(api.RouterDeps{
		Server:   cfg.Server,
		Sessions: sessions,
		Store:    guarded,
		Stream:   stream.HandleStream,
		Logger:   zapLogger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLogger.Info("Server starting",
			zap.String("name", cfg.Server.Name),
			zap.Int("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func loadKnowledge(path string) (*knowledge.Base, error) {
	if path == "" {
		return knowledge.Default()
	}
	return knowledge.LoadFile(path)
}

func knowledgeSource(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}

// openStore connects the configured backend. The returned func releases it.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverRedis:
		client, err := redis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Redis connected", zap.String("host", cfg.Redis.Host), zap.Int("port", cfg.Redis.Port))
		return store.NewRedis(client, cfg.Redis.Prefix, cfg.Redis.TTL), func() { _ = client.Close() }, nil

	case config.DriverPostgres:
		database, err := db.NewFromURL(db.Config{
			URL:            cfg.Postgres.URL,
			MaxConnections: cfg.Postgres.MaxConnections,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, nil, err
		}
		logger.Info("Database connected")
		return database, func() { database.Close() }, nil

	case config.DriverMongo:
		client, err := mongodb.Connect(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("MongoDB connected", zap.String("database", cfg.Mongo.Database))
		return store.NewMongo(mongodb.Collection(client, cfg.Mongo)), func() { _ = client.Disconnect(context.Background()) }, nil

	default:
		logger.Warn("Using in-memory store; sessions are lost on restart")
		return store.NewMemory(), func() {}, nil
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
