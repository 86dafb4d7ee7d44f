// Package bootstrap wires configuration, storage, adapters and services
// into the API server and the background worker.
package bootstrap

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"inboxt_server/adapter/out/graph"
	"inboxt_server/adapter/out/messaging"
	"inboxt_server/adapter/out/mongodb"
	"inboxt_server/adapter/out/persistence"
	"inboxt_server/adapter/out/provider"
	"inboxt_server/config"
	"inboxt_server/core/agent/llm"
	"inboxt_server/core/port/out"
	"inboxt_server/core/service/chat"
	"inboxt_server/core/service/digest"
	"inboxt_server/core/service/search"
	"inboxt_server/core/service/settings"
	"inboxt_server/core/service/task"
	"inboxt_server/infra/database"
	"inboxt_server/pkg/cache"
	"inboxt_server/pkg/crypto"
	"inboxt_server/pkg/logger"
	"inboxt_server/pkg/metrics"
)

const localCacheTTL = time.Minute

// Dependencies holds every long-lived component. Redis, MongoDB and Neo4j
// are optional; their fields stay nil when not configured or unreachable.
type Dependencies struct {
	Config *config.Config

	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client
	Neo4j   neo4j.DriverWithContext

	// Nil without Redis.
	Publisher out.JobPublisher

	Cache *cache.Tiered
	LLM   *llm.Client
	Gmail *provider.GmailAdapter

	Builder         *digest.Builder
	DigestService   *digest.Service
	DigestRunner    *digest.Runner
	SettingsService *settings.Service
	TaskService     *task.Service
	ChatService     *chat.Service
	SearchService   *search.Service
}

// NewDependencies connects to storage and builds the services. The returned
// cleanup closes every connection that was opened.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	pgCfg := database.DefaultPostgresConfig()
	pgCfg.MaxConns = int32(cfg.DBMaxConns)
	db, err := database.NewPostgres(ctx, cfg.DatabaseURL, pgCfg)
	if err != nil {
		return fail(err)
	}
	deps.DB = db
	cleanups = append(cleanups, db.Close)

	sqlDB, err := database.NewSQLX(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fail(err)
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { _ = sqlDB.Close() })
	metrics.RegisterDBStats(sqlDB.DB, "postgres")
	logger.Info("postgres connected (max conns %d)", cfg.DBMaxConns)

	if cfg.RedisURL != "" {
		rdb, err := database.NewRedis(ctx, cfg.RedisURL, nil)
		if err != nil {
			logger.Warn("Redis unavailable, falling back to in-process cache and direct jobs: %v", err)
		} else {
			deps.Redis = rdb
			deps.Publisher = messaging.NewRedisProducer(rdb)
			cleanups = append(cleanups, func() { _ = rdb.Close() })
			logger.Info("redis connected")
		}
	}

	var reports out.RunReportStore
	if cfg.MongoDBURL != "" {
		client, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
		if err != nil {
			logger.Warn("MongoDB unavailable, run reports disabled: %v", err)
		} else {
			deps.MongoDB = client
			cleanups = append(cleanups, func() { _ = client.Disconnect(context.Background()) })

			retention := time.Duration(cfg.RunReportRetentionDays) * 24 * time.Hour
			adapter := mongodb.NewRunReportAdapter(client.Database(cfg.MongoDBName), retention)
			if err := adapter.EnsureIndexes(ctx); err != nil {
				logger.Warn("failed to ensure run report indexes: %v", err)
			}
			reports = adapter
			logger.Info("mongodb connected (run reports kept %d days)", cfg.RunReportRetentionDays)
		}
	}

	var senders out.SenderGraph
	if cfg.Neo4jURL != "" {
		driver, err := graph.NewDriver(ctx, cfg.Neo4jURL, cfg.Neo4jUsername, cfg.Neo4jPassword)
		if err != nil {
			logger.Warn("Neo4j unavailable, sender graph disabled: %v", err)
		} else {
			deps.Neo4j = driver
			cleanups = append(cleanups, func() { _ = driver.Close(context.Background()) })

			adapter := graph.NewSenderGraphAdapter(driver, "")
			if err := adapter.EnsureIndexes(ctx); err != nil {
				logger.Warn("failed to ensure sender graph indexes: %v", err)
			}
			senders = adapter
			logger.Info("neo4j connected")
		}
	}

	cipher, err := crypto.NewTokenCipher(cfg.EncryptionKey)
	if err != nil {
		return fail(err)
	}

	users := persistence.NewUserAdapter(sqlDB, cipher)
	digests := persistence.NewDigestAdapter(db)
	tasks := persistence.NewTaskAdapter(sqlDB)
	chats := persistence.NewChatAdapter(sqlDB)

	deps.Cache = cache.NewTiered(deps.Redis, localCacheTTL)
	deps.Gmail = provider.NewGmailAdapter(provider.GmailConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
	})
	deps.LLM = newLLMClient(cfg)

	cacheTTL := time.Duration(cfg.CacheTTLMin) * time.Minute
	deps.Builder = digest.NewBuilder(digest.BuilderConfig{
		Users:       users,
		Digests:     digests,
		Mail:        deps.Gmail,
		LLM:         deps.LLM,
		Reports:     reports,
		Graph:       senders,
		Cache:       deps.Cache,
		Concurrency: cfg.DigestConcurrency,
	})
	deps.DigestService = digest.NewService(deps.Builder, digests, deps.Cache, cacheTTL)
	deps.DigestRunner = digest.NewRunner(deps.Builder, users, digests, cfg.DigestWindowMin)
	deps.SettingsService = settings.NewService(users, deps.Cache, cacheTTL)
	deps.TaskService = task.NewService(tasks, digests)
	deps.ChatService = chat.NewService(chats, digests, deps.LLM, senders)
	deps.SearchService = search.NewService(digests, tasks, deps.LLM, deps.Cache)

	return deps, cleanup, nil
}

// newLLMClient builds the gateway client with one retry and a 1s backoff base.
func newLLMClient(cfg *config.Config) *llm.Client {
	return llm.NewClient(llm.ClientConfig{
		APIKey:      cfg.LLMAPIKey,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.LLMModel,
		ChatModel:   cfg.ChatModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Timeout:     time.Duration(cfg.LLMTimeoutSec) * time.Second,
		Referer:     cfg.AppURL,
		MaxRetries:  llm.DefaultMaxRetries,
		BackoffBase: time.Second,
	})
}
