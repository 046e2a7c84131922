// cmd/server/main.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"cyphr-server/internal/common/config"
	"cyphr-server/internal/common/database"
	"cyphr-server/internal/common/logger"
	"cyphr-server/internal/common/observability"
	"cyphr-server/internal/llm"
	"cyphr-server/internal/server"
	"cyphr-server/internal/store"
	"cyphr-server/internal/tableau"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting cyphr AI extension server...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Snowflake with retry ---
	var snowflakeDB *sql.DB
	err = retryWithBackoff(func() error {
		var err error
		snowflakeDB, err = sql.Open("snowflake", cfg.Snowflake.GetDSN())
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return snowflakeDB.PingContext(pingCtx)
	}, 5, 2*time.Second, zapLog, "Snowflake connection")

	if err != nil {
		zapLog.Fatal("snowflake failed after retries", zap.Error(err))
	}
	defer snowflakeDB.Close()
	zapLog.Info("Snowflake connected successfully")

	// --- Init Stores ---
	endpointStore := store.NewEndpointStore(pg.DB, log)
	logStore := store.NewLogStore(pg.DB, log)
	sessionStore := store.NewSessionStore(
		redisClient.Client,
		time.Duration(cfg.Sessions.TTL)*time.Millisecond,
		cfg.Sessions.MaxContextMessages,
		log,
	)

	if err := endpointStore.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("endpoint schema setup failed", zap.Error(err))
	}
	if err := logStore.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("request log schema setup failed", zap.Error(err))
	}
	if err := endpointStore.SeedDefaults(ctx); err != nil {
		zapLog.Fatal("endpoint seeding failed", zap.Error(err))
	}

	// --- Init Processing Clients ---
	processor := llm.NewCortexProcessor(
		snowflakeDB,
		cfg.LLM.DefaultModel,
		config.GetDuration(cfg.Snowflake.QueryTimeout),
		cfg.LLM.MaxRetries,
		log,
	)
	tableauClient := tableau.NewClient(cfg.Tableau, log)

	srv := server.New(cfg, endpointStore, logStore, sessionStore, processor, tableauClient, obs, log)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Millisecond,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	zapLog.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Server.ShutdownTimeout)*time.Millisecond)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("graceful shutdown failed", zap.Error(err))
	}

	zapLog.Info("Server stopped")
}
