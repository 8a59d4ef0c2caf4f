package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-character-chat/backend/internal/models"
	"ai-character-chat/backend/pkg/config"
	"ai-character-chat/backend/pkg/di"
	"ai-character-chat/backend/pkg/logger"
	"ai-character-chat/backend/pkg/observability"
	"ai-character-chat/backend/pkg/router"
	"ai-character-chat/backend/pkg/secrets"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	appLog := logger.New(logConfig)
	logger.SetGlobal(appLog)

	appLog.Info("Starting application", "version", os.Getenv("APP_VERSION"))

	shutdownTracing, err := observability.SetupTracing("character-chat")
	if err != nil {
		appLog.LogError(err, "Failed to initialize tracing")
	} else {
		defer shutdownTracing()
	}

	// A startup dependency failure is not recoverable per request; the
	// process keeps serving, but answers 503 everywhere until restart.
	engine, ok := buildApplication(appLog, logConfig)
	if !ok {
		appLog.Error("Dependency initialization failed, serving unavailable mode")
		engine = router.Unavailable(appLog)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: engine,
	}

	go func() {
		appLog.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLog.LogError(err, "Server forced to shutdown")
	}

	appLog.Info("Server exited gracefully")
}

// buildApplication wires secrets, database, and the dependency container.
// It reports false when any startup dependency could not be initialized.
func buildApplication(appLog *logger.Logger, logConfig logger.Config) (http.Handler, bool) {
	if err := secrets.Init(appLog); err != nil {
		appLog.LogError(err, "Failed to initialize secrets manager")
		return nil, false
	}

	dbPassword := secrets.GetSecretWithDefault(context.Background(), "db-password", "")

	db, err := config.NewDB(dbPassword)
	if err != nil {
		appLog.LogError(err, "Failed to initialize database")
		return nil, false
	}

	if err := db.AutoMigrate(&models.Character{}, &models.HistoryEntry{}); err != nil {
		appLog.LogError(err, "Failed to migrate database")
		return nil, false
	}

	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_history_char_time ON history_entries(character_id, timestamp)").Error; err != nil {
		appLog.LogError(err, "Failed to create history index", "index", "idx_history_char_time")
	}

	diConfig := di.DefaultConfig()
	diConfig.LoggerConfig = logConfig

	container, err := di.New(db, diConfig)
	if err != nil {
		appLog.LogError(err, "Failed to initialize dependency container")
		return nil, false
	}

	r := router.New(container)
	r.SetupRoutes()

	return r.Engine, true
}
