package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mathieu-neron/chanwatch/internal/model"
)

// StatsSink persists one flush. Each write is a full replacement of the
// previous picture, not an append.
type StatsSink interface {
	Name() string
	WriteSnapshots(ctx context.Context, at time.Time, snaps []model.StatsSnapshot) error
}

// StatsRecorder turns worker states into StatsSnapshots on a fixed cadence
// and hands them to every sink.
type StatsRecorder struct {
	source   func() []model.WorkerState
	sinks    []StatsSink
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	lastAt  time.Time
	last    []model.StatsSnapshot
	flushes int
}

// DefaultSinkTimeout bounds a single sink write.
const DefaultSinkTimeout = 10 * time.Second

// NewStatsRecorder creates a recorder reading states from source.
func NewStatsRecorder(source func() []model.WorkerState, sinks []StatsSink, interval time.Duration, log zerolog.Logger) *StatsRecorder {
	if interval <= 0 {
		interval = 300 * time.Second
	}
	return &StatsRecorder{
		source:   source,
		sinks:    sinks,
		interval: interval,
		timeout:  DefaultSinkTimeout,
		log:      log.With().Str("component", "stats-recorder").Logger(),
		now:      time.Now,
	}
}

// SetSinkTimeout changes the per-sink write deadline. Call before Run.
func (r *StatsRecorder) SetSinkTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// Run flushes every interval until ctx is cancelled.
func (r *StatsRecorder) Run(ctx context.Context) {
	r.log.Info().Dur("interval", r.interval).Msg("starting")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Flush(ctx)
		case <-ctx.Done():
			r.log.Info().Msg("stopping (context cancelled)")
			return
		}
	}
}

// Flush takes one consistent read of all worker states and writes it to every
// sink. A failing or slow sink is logged and does not stop the others; each
// write gets at most the sink timeout.
func (r *StatsRecorder) Flush(ctx context.Context) []model.StatsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := r.now()
	states := r.source()
	snaps := make([]model.StatsSnapshot, 0, len(states))
	for _, s := range states {
		snaps = append(snaps, model.NewStatsSnapshot(s, at))
	}

	for _, sink := range r.sinks {
		r.write(ctx, sink, at, snaps)
	}

	r.lastAt = at
	r.last = snaps
	r.flushes++
	r.log.Debug().Int("channels", len(snaps)).Msg("stats flushed")
	return snaps
}

// Last returns the most recent flush.
func (r *StatsRecorder) Last() (time.Time, []model.StatsSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.StatsSnapshot, len(r.last))
	copy(out, r.last)
	return r.lastAt, out
}

// Flushes returns how many flushes have completed.
func (r *StatsRecorder) Flushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}

func (r *StatsRecorder) write(ctx context.Context, sink StatsSink, at time.Time, snaps []model.StatsSnapshot) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := sink.WriteSnapshots(ctx, at, snaps); err != nil {
		r.log.Warn().Err(err).Str("sink", sink.Name()).Msg("stats write failed")
	}
}
