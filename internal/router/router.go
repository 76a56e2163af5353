package router

import (
	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/mathieu-neron/chanwatch/internal/handler"
	"github.com/mathieu-neron/chanwatch/internal/middleware"
)

// Handlers holds all handler instances needed by the router.
type Handlers struct {
	Control *handler.ControlHandler
	Health  *handler.HealthHandler
	Stats   *handler.StatsHandler
}

// Options toggles the parts of the stack that need process-wide setup.
type Options struct {
	CORSOrigins string
	Metrics     bool // requires handler.InitMetrics
}

// Setup configures the middleware stack and all control routes on the given Fiber app.
func Setup(app *fiber.App, h *Handlers, opts Options) {
	// Middleware stack (order matters)
	app.Use(recoverer.New())
	app.Use(middleware.NewRequestLogger())
	if opts.Metrics {
		app.Use(handler.MetricsMiddleware())
	}
	app.Use(middleware.NewCORS(opts.CORSOrigins))

	// Health checks
	app.Get("/health", h.Health.Live)
	app.Get("/health/ready", h.Health.Ready)

	if opts.Metrics {
		app.Get("/metrics", handler.MetricsHandler())
	}

	// Read-only commands
	app.Get("/help", h.Control.Help)
	app.Get("/status", h.Control.Status)
	app.Get("/status/:channel", middleware.RequireChannelParam(), h.Control.Status)
	app.Get("/list", h.Control.List)

	if h.Stats != nil {
		app.Get("/stats", h.Stats.GetStats)
		app.Get("/stats/history", h.Stats.GetHistory)
	}

	// Mutating commands share one limiter per client IP
	limit := middleware.NewControlRateLimiter().Handler()
	app.Get("/add/:channel", limit, middleware.RequireChannelParam(), h.Control.Add)
	app.Get("/remove/:channel", limit, middleware.RequireChannelParam(), h.Control.Remove)
	app.Get("/change/:channel", limit, middleware.RequireChannelParam(), h.Control.Change)
	app.Get("/exit", limit, h.Control.Exit)

	// Anything else gets the usage text
	app.Use(h.Control.NotFound)
}
