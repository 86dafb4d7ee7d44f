package bootstrap

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"inboxt_server/adapter/in/http"
	"inboxt_server/infra/middleware"
	"inboxt_server/pkg/logger"
	"inboxt_server/pkg/ratelimit"
)

// NewAPI builds the HTTP application on top of deps.
func NewAPI(deps *Dependencies) *fiber.App {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		AppName:               "inboxt-api",
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             1 * 1024 * 1024,
		ReadTimeout:           30 * time.Second,
		// Initial fetch and chat wait on the LLM.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	})

	// Order matters: the logger must see errors after Recover has converted panics.
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.Recover())
	app.Use(middleware.Metrics())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(cors.New(corsConfig(cfg.AllowedOrigins, cfg.AppURL, cfg.IsProduction())))

	healthHandler(deps).Register(app)
	if cfg.MetricsEnabled {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := app.Group("/api/v1")
	api.Use(middleware.JWTAuth(cfg.JWTSecret))
	api.Use(middleware.RateLimit(ratelimit.New(deps.Redis, cfg.RateLimitPerMin, time.Minute)))

	digestHandler := http.NewDigestHandler(deps.DigestService, deps.DigestRunner)
	digestHandler.Register(api)
	http.NewSettingsHandler(deps.SettingsService).Register(api)
	http.NewTaskHandler(deps.TaskService).Register(api)
	http.NewChatHandler(deps.ChatService).Register(api)
	http.NewSearchHandler(deps.SearchService).Register(api)

	// Scheduler and operator entry points.
	internal := app.Group("/internal", middleware.ServiceKey(cfg.ServiceKey))
	digestHandler.RegisterInternal(internal)

	logger.Info("API initialized")
	return app
}

func healthHandler(deps *Dependencies) *http.HealthHandler {
	h := http.NewHealthHandler().Require("postgres", deps.DB)
	if deps.Redis != nil {
		rdb := deps.Redis
		h.Report("redis", http.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}
	if deps.MongoDB != nil {
		client := deps.MongoDB
		h.Report("mongodb", http.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		}))
	}
	if deps.Neo4j != nil {
		driver := deps.Neo4j
		h.Report("neo4j", http.PingFunc(driver.VerifyConnectivity))
	}
	return h
}

// corsConfig never combines a wildcard origin with credentials. Production
// without explicit origins only admits the app's own URL.
func corsConfig(origins []string, appURL string, production bool) cors.Config {
	allowOrigins := strings.Join(origins, ",")
	if allowOrigins == "" || allowOrigins == "*" {
		if production {
			allowOrigins = appURL
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	return cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID,X-Service-Key",
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,Retry-After",
		AllowCredentials: true,
		MaxAge:           86400,
	}
}
