// Command demo runs a minimal HTTP chat endpoint over the tool-calling
// runtime: one in-memory demo dataset, one wired tool (analytics.run), and
// the planner loop driving an OpenAI-compatible model.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bindevz/toolrt/runtime/catalog"
	"github.com/bindevz/toolrt/runtime/confirm"
	"github.com/bindevz/toolrt/runtime/conversation"
	"github.com/bindevz/toolrt/runtime/dispatch"
	"github.com/bindevz/toolrt/runtime/invoker"
	"github.com/bindevz/toolrt/runtime/model"
	"github.com/bindevz/toolrt/runtime/store"
	"github.com/bindevz/toolrt/runtime/telemetry"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: could not load .env file: %v", err)
		log.Printf("continuing with existing environment variables...")
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	ginMode := getEnv("GIN_MODE", "debug")
	gin.SetMode(ginMode)

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger := telemetry.NewZerologLogger(zlog)

	datasetStore, resultCache := buildStores(logger)

	registry := catalog.New()
	dispatchTable := dispatch.NewTable()
	registerAnalyticsRun(registry, dispatchTable, datasetStore, resultCache)

	inv := &invoker.Invoker{
		Registry: registry,
		Dispatch: dispatchTable,
		Logger:   logger,
	}

	modelClient, err := buildModelClient()
	if err != nil {
		log.Fatalf("failed to build model client: %v", err)
	}

	confirmStore := confirm.NewMemoryStore()
	conversationStore := conversation.NewMemoryStore()

	seedDemoDataset(datasetStore)

	server := &chatServer{
		model:        modelClient,
		invoker:      inv,
		registry:     registry,
		confirm:      confirmStore,
		conversation: conversationStore,
		logger:       logger,
	}

	router := gin.Default()
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy", "time": time.Now().UTC()})
	})
	router.POST("/v1/chat/completions", server.handleChatCompletions)

	log.Printf("Starting tool-calling runtime demo on :%s", httpPort)
	if err := router.Run(":" + httpPort); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

// buildStores wires Redis-backed dataset/result-cache stores behind a
// degrading in-memory fallback when REDIS_URL is configured, and falls back
// to the plain in-memory stores otherwise.
func buildStores(logger telemetry.Logger) (store.DatasetStore, store.ResultCache) {
	redisURL := os.Getenv("REDIS_URL")
	memoryDatasets := store.NewMemoryDatasetStore()
	memoryResults := store.NewMemoryResultCache()
	if redisURL == "" {
		return memoryDatasets, memoryResults
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("warning: invalid REDIS_URL, falling back to in-memory stores: %v", err)
		return memoryDatasets, memoryResults
	}
	rdb := redis.NewClient(opts)

	onDegrade := func(err error) {
		logger.Warn(context.Background(), "redis store degraded to in-memory fallback", "error", err.Error())
	}
	datasetStore := &store.DegradingDatasetStore{
		Primary:   store.NewRedisDatasetStore(rdb, ""),
		Secondary: memoryDatasets,
		OnDegrade: onDegrade,
	}
	resultCache := &store.DegradingResultCache{
		Primary:   store.NewRedisResultCache(rdb, ""),
		Secondary: memoryResults,
		OnDegrade: onDegrade,
	}
	return datasetStore, resultCache
}

func buildModelClient() (model.Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	defaultModel := getEnv("OPENAI_MODEL", "gpt-4o-mini")
	baseURL := os.Getenv("OPENAI_BASE_URL")
	if apiKey == "" {
		log.Printf("warning: OPENAI_API_KEY not set; chat completions will fail until it is configured")
		apiKey = "unset"
	}
	return model.NewOpenAIClientFromAPIKey(apiKey, defaultModel, baseURL)
}
