package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ReadinessSource reports whether the orchestrator accepts commands.
type ReadinessSource interface {
	Ready() bool
}

type HealthHandler struct {
	ready   ReadinessSource
	pool    *pgxpool.Pool
	rdb     *redis.Client
	startAt time.Time
}

// NewHealthHandler builds the health endpoints. pool and rdb may be nil when
// the optional stats history or cache is not configured.
func NewHealthHandler(ready ReadinessSource, pool *pgxpool.Pool, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{
		ready:   ready,
		pool:    pool,
		rdb:     rdb,
		startAt: time.Now(),
	}
}

// Live handles GET /health, the liveness probe.
func (h *HealthHandler) Live(c fiber.Ctx) error {
	return c.SendString("OK")
}

// Ready handles GET /health/ready, the readiness probe with dependency checks.
func (h *HealthHandler) Ready(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	checks := make(fiber.Map)
	overallStatus := "healthy"

	if h.ready != nil && h.ready.Ready() {
		checks["orchestrator"] = fiber.Map{"status": "up"}
	} else {
		checks["orchestrator"] = fiber.Map{"status": "down"}
		overallStatus = "unavailable"
	}

	// Optional dependencies only degrade the report; they never block commands.
	checks["database"] = checkDB(ctx, h.pool)
	checks["redis"] = checkRedis(ctx, h.rdb)
	for _, name := range []string{"database", "redis"} {
		if check, ok := checks[name].(fiber.Map); ok {
			if check["status"] == "down" && overallStatus == "healthy" {
				overallStatus = "degraded"
			}
		}
	}

	uptimeSeconds := int(time.Since(h.startAt).Seconds())

	resp := fiber.Map{
		"status":         overallStatus,
		"checks":         checks,
		"uptime_seconds": uptimeSeconds,
		"version":        "1.0.0",
	}

	status := fiber.StatusOK
	if overallStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(resp)
}

func checkDB(ctx context.Context, pool *pgxpool.Pool) fiber.Map {
	if pool == nil {
		return fiber.Map{
			"status": "disabled",
		}
	}

	start := time.Now()
	err := pool.Ping(ctx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return fiber.Map{
			"status":     "down",
			"latency_ms": latency,
			"error":      "connection failed",
		}
	}
	return fiber.Map{
		"status":     "up",
		"latency_ms": latency,
	}
}

func checkRedis(ctx context.Context, rdb *redis.Client) fiber.Map {
	if rdb == nil {
		return fiber.Map{
			"status": "disabled",
		}
	}

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return fiber.Map{
			"status":     "down",
			"latency_ms": latency,
			"error":      "connection failed",
		}
	}
	return fiber.Map{
		"status":     "up",
		"latency_ms": latency,
	}
}
