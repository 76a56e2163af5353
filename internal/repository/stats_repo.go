package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mathieu-neron/chanwatch/internal/model"
)

// StatsRepo keeps every flush in postgres so points history survives restarts.
type StatsRepo struct {
	pool *pgxpool.Pool
}

func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

func (r *StatsRepo) Name() string { return "postgres" }

// EnsureSchema creates the stats_snapshots table if it does not exist.
func (r *StatsRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS stats_snapshots (
			id                BIGSERIAL PRIMARY KEY,
			flushed_at        TIMESTAMPTZ NOT NULL,
			channel           TEXT NOT NULL,
			elapsed_minutes   DOUBLE PRECISION NOT NULL,
			viewing_points    DOUBLE PRECISION NOT NULL,
			claimed_points    DOUBLE PRECISION NOT NULL,
			total_points      DOUBLE PRECISION NOT NULL,
			points_per_minute DOUBLE PRECISION NOT NULL
		);
		CREATE INDEX IF NOT EXISTS stats_snapshots_channel_idx
			ON stats_snapshots (channel, flushed_at DESC);`)
	return err
}

// WriteSnapshots inserts one row per channel in a single transaction.
func (r *StatsRepo) WriteSnapshots(ctx context.Context, at time.Time, snaps []model.StatsSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, s := range snaps {
		batch.Queue(`
			INSERT INTO stats_snapshots (flushed_at, channel, elapsed_minutes, viewing_points,
			                             claimed_points, total_points, points_per_minute)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			at, s.Channel, s.ElapsedMinutes, s.ViewingPoints, s.ClaimedPoints, s.TotalPoints, s.PointsPerMinute)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LatestByChannel returns the most recent persisted snapshot per channel.
func (r *StatsRepo) LatestByChannel(ctx context.Context) ([]model.StatsSnapshot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (channel)
		       channel, elapsed_minutes, viewing_points, claimed_points, total_points, points_per_minute
		FROM stats_snapshots
		ORDER BY channel, flushed_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StatsSnapshot
	for rows.Next() {
		var s model.StatsSnapshot
		if err := rows.Scan(&s.Channel, &s.ElapsedMinutes, &s.ViewingPoints,
			&s.ClaimedPoints, &s.TotalPoints, &s.PointsPerMinute); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
