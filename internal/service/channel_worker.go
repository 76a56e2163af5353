package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mathieu-neron/chanwatch/internal/model"
	"github.com/mathieu-neron/chanwatch/internal/session"
)

// WorkerConfig holds the per-worker loop parameters.
type WorkerConfig struct {
	PollInterval time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	CallTimeout  time.Duration

	PointsPerPeriod float64
	AccrualPeriod   time.Duration
	ClaimReward     float64

	// StartDelay postpones the first connect (used when restarting a worker).
	StartDelay time.Duration
}

// DefaultWorkerConfig returns the production defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:    30 * time.Second,
		MaxRetries:      3,
		RetryDelay:      60 * time.Second,
		CallTimeout:     15 * time.Second,
		PointsPerPeriod: 10,
		AccrualPeriod:   300 * time.Second,
		ClaimReward:     50,
	}
}

// ChannelWorker watches one channel through its own session, running the
// connect/watch/claim/recover cycle until stopped or out of retries.
type ChannelWorker struct {
	channel string
	runID   string
	cfg     WorkerConfig
	factory session.Factory
	log     zerolog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) bool

	// owned by the Run goroutine
	state       model.WorkerState
	sess        session.Session
	bonus       session.Element
	lastAccrual time.Time
	nextTick    time.Time
	lastErr     error
	dropSession bool

	snap     atomic.Pointer[model.WorkerState]
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewChannelWorker creates a worker for channel. Nothing runs until Run.
func NewChannelWorker(channel string, factory session.Factory, cfg WorkerConfig, log zerolog.Logger) *ChannelWorker {
	runID := uuid.NewString()
	w := &ChannelWorker{
		channel: channel,
		runID:   runID,
		cfg:     cfg,
		factory: factory,
		log: log.With().
			Str("component", "channel-worker").
			Str("channel", channel).
			Str("run_id", runID[:8]).
			Logger(),
		now:    time.Now,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	w.sleep = w.wait
	w.state = model.WorkerState{
		Channel:   channel,
		RunID:     runID,
		State:     model.StateConnecting,
		StartedAt: w.now(),
	}
	w.publish()
	return w
}

// Channel returns the watched channel name.
func (w *ChannelWorker) Channel() string { return w.channel }

// Snapshot returns a copy of the most recently published state.
func (w *ChannelWorker) Snapshot() model.WorkerState {
	return *w.snap.Load()
}

// Stop signals the worker to stop at its next state transition. An automation
// call already in flight is allowed to finish.
func (w *ChannelWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Done is closed once Run has returned.
func (w *ChannelWorker) Done() <-chan struct{} { return w.done }

// Run drives the state machine. It returns nil after a stop signal and an
// error wrapping ErrWorkerExhausted after more than MaxRetries consecutive failures.
func (w *ChannelWorker) Run(ctx context.Context) error {
	defer close(w.done)
	defer w.closeSession()

	w.log.Info().Msg("worker starting")

	if w.cfg.StartDelay > 0 && !w.sleep(ctx, w.cfg.StartDelay) {
		w.enter(model.StateTerminated)
		return nil
	}

	next := model.StateConnecting
	for {
		if w.stopRequested(ctx) {
			w.enter(model.StateTerminated)
			w.log.Info().Msg("worker stopped")
			return nil
		}

		w.enter(next)
		switch next {
		case model.StateConnecting:
			next = w.connect(ctx)
		case model.StateWatching:
			next = w.watch(ctx)
		case model.StateClaimingBonus:
			next = w.claim(ctx)
		case model.StateRecovering:
			next = w.recover(ctx)
		case model.StateTerminated:
			err := fmt.Errorf("%w: %s after %d attempts: %v", ErrWorkerExhausted, w.channel, w.state.RetryCount, w.lastErr)
			w.log.Error().Err(w.lastErr).Int("retries", w.state.RetryCount).Msg("worker exhausted")
			return err
		}
	}
}

func (w *ChannelWorker) connect(ctx context.Context) model.State {
	if w.sess == nil {
		callCtx, cancel := w.call(ctx)
		sess, err := w.factory.NewSession(callCtx)
		cancel()
		if err != nil {
			return w.fail(err, true)
		}
		w.sess = sess
	}

	callCtx, cancel := w.call(ctx)
	err := w.sess.Navigate(callCtx, w.channel)
	cancel()
	if err != nil {
		return w.fail(err, true)
	}

	now := w.now()
	w.lastAccrual = now
	w.nextTick = now
	w.log.Info().Msg("connected")
	return model.StateWatching
}

func (w *ChannelWorker) watch(ctx context.Context) model.State {
	if wait := w.nextTick.Sub(w.now()); wait > 0 {
		if !w.sleep(ctx, wait) {
			return model.StateWatching
		}
	}
	w.nextTick = w.now().Add(w.cfg.PollInterval)

	callCtx, cancel := w.call(ctx)
	current, err := w.sess.CurrentChannel(callCtx)
	cancel()
	if err != nil {
		return w.fail(err, false)
	}
	if current != w.channel {
		return w.fail(fmt.Errorf("%w: on %q, want %q", session.ErrStale, current, w.channel), false)
	}

	now := w.now()
	w.state.ViewingPoints += accruedPoints(w.cfg.PointsPerPeriod, w.cfg.AccrualPeriod, now.Sub(w.lastAccrual))
	w.lastAccrual = now
	if w.state.RetryCount > 0 {
		w.log.Info().Int("retries", w.state.RetryCount).Msg("recovered")
		w.state.RetryCount = 0
	}
	w.publish()

	callCtx, cancel = w.call(ctx)
	el, found, err := w.sess.FindBonus(callCtx)
	cancel()
	if err != nil {
		return w.fail(err, false)
	}
	if found {
		w.bonus = el
		return model.StateClaimingBonus
	}
	return model.StateWatching
}

// claim is best-effort: a failed click returns to Watching without penalty.
func (w *ChannelWorker) claim(ctx context.Context) model.State {
	el := w.bonus
	w.bonus = nil
	if el == nil {
		return model.StateWatching
	}

	callCtx, cancel := w.call(ctx)
	err := el.Click(callCtx)
	cancel()
	if err != nil {
		w.log.Debug().Err(err).Msg("bonus claim failed")
		return model.StateWatching
	}

	w.state.ClaimedPoints += w.cfg.ClaimReward
	w.state.Claims++
	w.publish()
	w.log.Info().Float64("reward", w.cfg.ClaimReward).Float64("claimed", w.state.ClaimedPoints).Msg("bonus claimed")
	return model.StateWatching
}

func (w *ChannelWorker) recover(ctx context.Context) model.State {
	w.state.RetryCount++
	w.publish()

	if w.dropSession {
		w.closeSession()
		w.dropSession = false
	}
	if w.state.RetryCount > w.cfg.MaxRetries {
		return model.StateTerminated
	}

	delay := backoffDelay(w.cfg.RetryDelay, w.state.RetryCount)
	w.log.Warn().Int("retry", w.state.RetryCount).Int("max", w.cfg.MaxRetries).Dur("delay", delay).Msg("retrying")
	w.sleep(ctx, delay)
	return model.StateConnecting
}

// fail records a transient failure and moves to Recovering. drop discards the
// session so the next connect starts from a fresh one.
func (w *ChannelWorker) fail(err error, drop bool) model.State {
	w.lastErr = err
	w.state.LastError = err.Error()
	w.dropSession = w.dropSession || drop
	w.publish()
	w.log.Warn().Err(err).Str("state", w.state.State.String()).Msg("automation failure")
	return model.StateRecovering
}

func (w *ChannelWorker) enter(s model.State) {
	if w.state.State != s {
		w.log.Debug().Str("from", w.state.State.String()).Str("to", s.String()).Msg("transition")
	}
	w.state.State = s
	w.publish()
}

func (w *ChannelWorker) publish() {
	s := w.state
	w.snap.Store(&s)
}

func (w *ChannelWorker) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.cfg.CallTimeout)
}

func (w *ChannelWorker) stopRequested(ctx context.Context) bool {
	select {
	case <-w.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// wait sleeps for d and reports false if interrupted by a stop signal or ctx.
func (w *ChannelWorker) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-w.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (w *ChannelWorker) closeSession() {
	if w.sess == nil {
		return
	}
	if err := w.sess.Close(); err != nil {
		w.log.Debug().Err(err).Msg("session close")
	}
	w.sess = nil
}

// accruedPoints approximates continuous accrual of rate points per period.
func accruedPoints(rate float64, period, elapsed time.Duration) float64 {
	if period <= 0 || elapsed <= 0 {
		return 0
	}
	return rate * elapsed.Seconds() / period.Seconds()
}

// backoffDelay is the linear backoff before retry n.
func backoffDelay(base time.Duration, n int) time.Duration {
	return base * time.Duration(n)
}
