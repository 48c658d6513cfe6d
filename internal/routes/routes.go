package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ledgervault/ledgervault/internal/config"
	"github.com/ledgervault/ledgervault/internal/journal"
	"github.com/ledgervault/ledgervault/internal/ledger"
	"github.com/ledgervault/ledgervault/internal/middleware"
	"github.com/ledgervault/ledgervault/internal/payout"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	// Journal composition: the durable sink when a database exists, the
	// in-memory journal otherwise so dev still serves the events API. The
	// stream and log sinks ride along where available.
	var (
		sinks  []ledger.Sink
		reader ledger.EventSource
	)
	if d.DB != nil {
		pg := journal.NewPostgres(d.DB)
		sinks = append(sinks, pg)
		reader = pg
	} else {
		mem := journal.NewMemory()
		sinks = append(sinks, mem)
		reader = mem
	}
	if d.Cache != nil {
		sinks = append(sinks, journal.NewStream(d.Cache, d.Cfg.EventStream))
	}
	sinks = append(sinks, journal.NewLogger(d.Logger))

	led := ledger.New(
		ledger.Identity(d.Cfg.LedgerOwner),
		payout.NewStatic(d.Logger),
		journal.NewFanout(sinks...),
	)
	handler := ledger.NewHandler(led, reader)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Every ledger operation needs the caller token; money movements also
	// get idempotency and a per-caller rate limit when Redis is around.
	protected := api.Group("", middleware.CallerIdentity())
	mutating := protected.Group("")
	if d.Cache != nil {
		mutating.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
		mutating.Use(middleware.MutationRateLimit(d.Cache, d.Cfg.MutationRateLimit))
	}
	RegisterLedgerRoutes(protected, mutating, handler)

	return nil
}
