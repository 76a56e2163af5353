package model

import (
	"math"
	"time"
)

// StatsSnapshot is one channel's aggregate statistics at a flush instant.
type StatsSnapshot struct {
	Channel         string  `json:"channel"`
	ElapsedMinutes  float64 `json:"elapsedMinutes"`
	ViewingPoints   float64 `json:"viewingPoints"`
	ClaimedPoints   float64 `json:"claimedPoints"`
	TotalPoints     float64 `json:"totalPoints"`
	PointsPerMinute float64 `json:"pointsPerMinute"`
}

// NewStatsSnapshot derives a snapshot from a worker state observed at the given instant.
func NewStatsSnapshot(ws WorkerState, at time.Time) StatsSnapshot {
	var elapsed float64
	if !ws.StartedAt.IsZero() && at.After(ws.StartedAt) {
		elapsed = at.Sub(ws.StartedAt).Minutes()
	}
	total := ws.TotalPoints()
	return StatsSnapshot{
		Channel:         ws.Channel,
		ElapsedMinutes:  elapsed,
		ViewingPoints:   ws.ViewingPoints,
		ClaimedPoints:   ws.ClaimedPoints,
		TotalPoints:     total,
		PointsPerMinute: PointsPerMinute(total, elapsed),
	}
}

// PointsPerMinute returns total / elapsedMinutes, or 0 when no time has elapsed.
func PointsPerMinute(total, elapsedMinutes float64) float64 {
	if elapsedMinutes <= 0 {
		return 0
	}
	return total / elapsedMinutes
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
