package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/mathieu-neron/chanwatch/internal/middleware"
	"github.com/mathieu-neron/chanwatch/internal/model"
)

// FlushSource exposes the most recent stats flush.
type FlushSource interface {
	Last() (time.Time, []model.StatsSnapshot)
}

// HistorySource reads persisted snapshots (postgres); optional.
type HistorySource interface {
	LatestByChannel(ctx context.Context) ([]model.StatsSnapshot, error)
}

type StatsHandler struct {
	flushes FlushSource
	history HistorySource
}

func NewStatsHandler(flushes FlushSource, history HistorySource) *StatsHandler {
	return &StatsHandler{flushes: flushes, history: history}
}

// GetStats handles GET /stats returns the last flush as JSON.
func (h *StatsHandler) GetStats(c fiber.Ctx) error {
	at, snaps := h.flushes.Last()
	resp := fiber.Map{"channels": snaps}
	if !at.IsZero() {
		resp["flushedAt"] = at.UTC().Format(time.RFC3339)
	}
	return c.JSON(resp)
}

// GetHistory handles GET /stats/history returns the latest persisted row per channel.
func (h *StatsHandler) GetHistory(c fiber.Ctx) error {
	if h.history == nil {
		return middleware.TextError(c, fiber.StatusNotFound, "stats history is not configured")
	}

	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	snaps, err := h.history.LatestByChannel(ctx)
	if err != nil {
		return middleware.TextError(c, fiber.StatusInternalServerError, "failed to read stats history")
	}
	return c.JSON(fiber.Map{"channels": snaps})
}
