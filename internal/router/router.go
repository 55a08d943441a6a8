package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/lyrixx/ClickHouse/internal/config"
	"github.com/lyrixx/ClickHouse/internal/handlers"
	"github.com/lyrixx/ClickHouse/internal/logging"
	"github.com/lyrixx/ClickHouse/internal/mergetree"
	"github.com/lyrixx/ClickHouse/internal/middleware"
	"github.com/lyrixx/ClickHouse/internal/utils"
)

// New builds the ingest node's HTTP app: insert and part-management
// routes over the given table stores.
func New(logger *logging.Logger, stores map[string]*mergetree.Store, cfg config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "MergeTree Ingest",
		DisableStartupMessage: true,
		ReadTimeout:           utils.DefaultRequestTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	Setup(app, logger, stores, cfg)
	return app
}

// Setup mounts middlewares and routes on app. The health endpoint stays
// outside the authenticated group so probes never need a key.
func Setup(app *fiber.App, logger *logging.Logger, stores map[string]*mergetree.Store, cfg config.Config) *handlers.Handler {
	h := handlers.New(stores)

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-API-Key,X-Request-ID",
	}))
	app.Use(logging.FiberMiddleware(logger))

	app.Get("/health", h.Health)

	v1 := app.Group("/v1", middleware.APIKeyAuth(logger, cfg.Auth.APIKeys, cfg.Auth.Enabled))

	v1.Post("/tables/:table/insert", h.Insert)

	v1.Get("/tables/:table/parts", h.ListParts)
	v1.Get("/tables/:table/parts/:name", h.GetPart)
	v1.Delete("/tables/:table/parts/:name", h.DropPart)

	v1.Get("/tables/:table/stats", h.TableStats)

	app.Use(h.NotFound)

	return h
}
