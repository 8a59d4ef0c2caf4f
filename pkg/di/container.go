package di

import (
	"context"
	"fmt"

	"ai-character-chat/backend/internal/ai"
	"ai-character-chat/backend/internal/chat"
	"ai-character-chat/backend/internal/store"
	"ai-character-chat/backend/pkg/cache"
	"ai-character-chat/backend/pkg/config"
	"ai-character-chat/backend/pkg/logger"
	"ai-character-chat/backend/pkg/observability"
	"ai-character-chat/backend/pkg/redisconn"
	"ai-character-chat/backend/pkg/secrets"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	DB          *gorm.DB
	Logger      *logger.Logger
	Cache       *cache.Cache
	Redis       *redis.Client
	Characters  store.CharacterRepository
	History     store.HistoryRepository
	Generator   ai.Generator
	Summarizer  *chat.Summarizer
	ChatService *chat.Service
	Metrics     *observability.Metrics
}

// Config holds the configuration for the container
type Config struct {
	LoggerConfig logger.Config
	ChatOptions  chat.Options
	Gemini       ai.GeminiConfig
}

// DefaultConfig builds a container config from the application configuration.
// The generation API key is left empty; it comes from the secrets layer.
func DefaultConfig() *Config {
	cfg := config.Get()
	return &Config{
		LoggerConfig: logger.DefaultConfig(),
		ChatOptions: chat.Options{
			MaxHistoryTurns:   cfg.Chat.MaxHistoryTurns,
			SummarizeInterval: cfg.Chat.SummarizeInterval,
			MaxTotalTurns:     cfg.Chat.MaxTotalTurns,
		},
		Gemini: ai.GeminiConfig{
			Model:   cfg.Gemini.Model,
			BaseURL: cfg.Gemini.BaseURL,
			Timeout: cfg.Gemini.Timeout,
		},
	}
}

// New creates a new dependency injection container
func New(db *gorm.DB, containerConfig *Config) (*Container, error) {
	if containerConfig == nil {
		containerConfig = DefaultConfig()
	}
	cfg := config.Get()

	log := logger.New(containerConfig.LoggerConfig)

	// The generation credential is injected through the secrets layer so the
	// same build works with Vault or plain environment variables.
	if containerConfig.Gemini.APIKey == "" {
		apiKey, err := secrets.GetSecret(context.Background(), "gemini-api-key")
		if err != nil {
			return nil, fmt.Errorf("failed to obtain generation API key: %w", err)
		}
		containerConfig.Gemini.APIKey = apiKey
	}

	var profileCache *cache.Cache
	if cfg.Cache.Enabled {
		profileCache = cache.New(cfg.Cache.TTL, cfg.Cache.PurgeWindow, cfg.Cache.MaxSize)
	}

	characters := store.NewGormCharacterRepository(db, profileCache)
	history := store.NewGormHistoryRepository(db, profileCache)

	generator, err := ai.NewGeminiClient(containerConfig.Gemini, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}

	metrics, err := observability.SetupMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	// Redis backs the optional per-character turn lease; without it turns
	// for one character are not serialized, which is acceptable for a
	// single active user per character.
	var locker chat.Locker = chat.NoopLocker{}
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = redisconn.Connect(cfg.Redis.Addr)
		if err != nil {
			log.LogError(err, "Redis unavailable, turn serialization disabled", "addr", cfg.Redis.Addr)
		} else {
			locker = chat.NewRedisLocker(redisClient, cfg.Redis.LockTTL, log)
		}
	}

	summarizer := chat.NewSummarizer(characters, history, generator, containerConfig.ChatOptions.SummarizeInterval, log)

	chatService := chat.NewService(
		characters,
		history,
		generator,
		summarizer,
		locker,
		metrics,
		containerConfig.ChatOptions,
		log,
	)

	return &Container{
		DB:          db,
		Logger:      log,
		Cache:       profileCache,
		Redis:       redisClient,
		Characters:  characters,
		History:     history,
		Generator:   generator,
		Summarizer:  summarizer,
		ChatService: chatService,
		Metrics:     metrics,
	}, nil
}
