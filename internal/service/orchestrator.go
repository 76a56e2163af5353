package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mathieu-neron/chanwatch/internal/model"
	"github.com/mathieu-neron/chanwatch/internal/session"
)

// Options configures an Orchestrator.
type Options struct {
	Primary         string
	MaxWorkers      int
	StopGrace       time.Duration
	ShutdownTimeout time.Duration
	StatsInterval   time.Duration
	StatsTimeout    time.Duration
	Worker          WorkerConfig
}

// Orchestrator is the single authority over the channel → worker table.
// Mutating commands are serialized by cmdMu, which may be held across the
// bounded wait for a stopping worker. The table itself is guarded by mu,
// held only for map and primary updates.
type Orchestrator struct {
	opts     Options
	factory  session.Factory
	recorder *StatsRecorder
	log      zerolog.Logger

	cmdMu sync.Mutex

	mu      sync.RWMutex
	workers map[string]*ChannelWorker
	primary string

	ready        atomic.Bool
	started      bool
	closed       bool
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// NewOrchestrator builds an orchestrator. sinks receive the periodic stats flushes.
func NewOrchestrator(opts Options, factory session.Factory, sinks []StatsSink, log zerolog.Logger) *Orchestrator {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 4
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 2 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	opts.Primary = strings.ToLower(opts.Primary)

	o := &Orchestrator{
		opts:    opts,
		factory: factory,
		log:     log.With().Str("component", "orchestrator").Logger(),
		workers: make(map[string]*ChannelWorker),
		primary: opts.Primary,
	}
	o.recorder = NewStatsRecorder(o.List, sinks, opts.StatsInterval, log)
	o.recorder.SetSinkTimeout(opts.StatsTimeout)
	return o
}

// Recorder exposes the stats recorder (for status rendering and tests).
func (o *Orchestrator) Recorder() *StatsRecorder { return o.recorder }

// Start launches the primary worker (when one is configured) and the stats loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errors.New("orchestrator already shut down")
	}
	if o.started {
		return errors.New("orchestrator already started")
	}
	o.started = true
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.ready.Store(true)

	if o.primary != "" {
		w := o.newWorker(o.primary, o.opts.Worker)
		o.workers[o.primary] = w
		o.spawnLocked(w)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.recorder.Run(o.ctx)
	}()

	o.log.Info().
		Str("primary", o.primary).
		Int("max_workers", o.opts.MaxWorkers).
		Msg("orchestrator started")
	return nil
}

// Ready reports whether the orchestrator accepts commands.
func (o *Orchestrator) Ready() bool { return o.ready.Load() }

// Primary returns the protected channel.
func (o *Orchestrator) Primary() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.primary
}

// Add starts a worker for channel.
func (o *Orchestrator) Add(channel string) error {
	channel, err := model.NormalizeChannel(channel)
	if err != nil {
		return err
	}

	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.ready.Load() {
		return ErrNotReady
	}
	if _, ok := o.workers[channel]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyWatching, channel)
	}
	if len(o.workers) >= o.opts.MaxWorkers {
		return fmt.Errorf("%w: limit is %d", ErrCapacityExceeded, o.opts.MaxWorkers)
	}

	w := o.newWorker(channel, o.opts.Worker)
	o.workers[channel] = w
	o.spawnLocked(w)
	o.log.Info().Str("channel", channel).Int("workers", len(o.workers)).Msg("worker added")
	return nil
}

// Remove stops and removes a non-primary worker. If the worker does not exit
// within the grace period it is dropped from the table anyway.
func (o *Orchestrator) Remove(channel string) error {
	channel, err := model.NormalizeChannel(channel)
	if err != nil {
		return err
	}

	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	o.mu.RLock()
	ready := o.ready.Load()
	primary := o.primary
	w, ok := o.workers[channel]
	o.mu.RUnlock()

	if !ready {
		return ErrNotReady
	}
	if channel == primary {
		return fmt.Errorf("%w: %s", ErrProtectedChannel, channel)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotWatching, channel)
	}

	w.Stop()
	o.awaitExit(w, o.opts.StopGrace)

	o.mu.Lock()
	if o.workers[channel] == w {
		delete(o.workers, channel)
	}
	n := len(o.workers)
	o.mu.Unlock()

	o.log.Info().Str("channel", channel).Int("workers", n).Msg("worker removed")
	return nil
}

// Change moves the primary designation to channel. The old primary's worker is
// stopped first; it stays listed until the swap, so readers always see a primary.
// A channel already watched as a secondary is promoted in place.
func (o *Orchestrator) Change(channel string) error {
	channel, err := model.NormalizeChannel(channel)
	if err != nil {
		return err
	}

	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	o.mu.RLock()
	ready := o.ready.Load()
	old := o.primary
	oldW := o.workers[old]
	_, watched := o.workers[channel]
	n := len(o.workers)
	o.mu.RUnlock()

	if !ready {
		return ErrNotReady
	}
	if channel == old {
		return fmt.Errorf("%w: %s", ErrAlreadyWatching, channel)
	}
	// with no old worker to replace, the new one needs a free slot
	if !watched && oldW == nil && n >= o.opts.MaxWorkers {
		return fmt.Errorf("%w: limit is %d", ErrCapacityExceeded, o.opts.MaxWorkers)
	}

	if oldW != nil {
		oldW.Stop()
		o.awaitExit(oldW, o.opts.StopGrace)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.ready.Load() {
		return ErrNotReady
	}
	if cur := o.workers[old]; cur != nil && cur == oldW {
		delete(o.workers, old)
	}
	if !watched && len(o.workers) >= o.opts.MaxWorkers {
		return fmt.Errorf("%w: limit is %d", ErrCapacityExceeded, o.opts.MaxWorkers)
	}
	if !watched {
		w := o.newWorker(channel, o.opts.Worker)
		o.workers[channel] = w
		o.spawnLocked(w)
	}
	o.primary = channel

	o.log.Info().Str("from", old).Str("to", channel).Bool("promoted", watched).Msg("primary changed")
	return nil
}

// List returns a snapshot of every worker, sorted by channel.
func (o *Orchestrator) List() []model.WorkerState {
	o.mu.RLock()
	states := make([]model.WorkerState, 0, len(o.workers))
	for ch, w := range o.workers {
		s := w.Snapshot()
		s.Primary = ch == o.primary
		states = append(states, s)
	}
	o.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool { return states[i].Channel < states[j].Channel })
	return states
}

// Status returns the snapshot for one channel.
func (o *Orchestrator) Status(channel string) (model.WorkerState, error) {
	channel, err := model.NormalizeChannel(channel)
	if err != nil {
		return model.WorkerState{}, err
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	w, ok := o.workers[channel]
	if !ok {
		return model.WorkerState{}, fmt.Errorf("%w: %s", ErrNotWatching, channel)
	}
	s := w.Snapshot()
	s.Primary = channel == o.primary
	return s, nil
}

// Shutdown stops every worker, waits for them within ShutdownTimeout, writes a
// final stats flush and releases the orchestrator. Safe to call more than once.
func (o *Orchestrator) Shutdown() error {
	var err error
	o.shutdownOnce.Do(func() {
		o.mu.Lock()
		o.ready.Store(false)
		o.closed = true
		workers := make([]*ChannelWorker, 0, len(o.workers))
		for _, w := range o.workers {
			workers = append(workers, w)
		}
		started := o.started
		o.mu.Unlock()

		if !started {
			return
		}
		o.log.Info().Int("workers", len(workers)).Msg("orchestrator shutting down")

		for _, w := range workers {
			w.Stop()
		}

		waitCtx, cancel := context.WithTimeout(context.Background(), o.opts.ShutdownTimeout)
		defer cancel()

		g := new(errgroup.Group)
		for _, w := range workers {
			g.Go(func() error {
				select {
				case <-w.Done():
					return nil
				case <-waitCtx.Done():
					return fmt.Errorf("worker %s did not stop within %s", w.Channel(), o.opts.ShutdownTimeout)
				}
			})
		}
		if werr := g.Wait(); werr != nil {
			o.log.Warn().Err(werr).Msg("shutdown wait incomplete")
			err = werr
		}

		// ends the recorder loop and any periodic flush still writing
		o.cancel()

		flushCtx, flushCancel := context.WithTimeout(context.Background(), o.opts.ShutdownTimeout)
		o.recorder.Flush(flushCtx)
		flushCancel()

		o.log.Info().Msg("orchestrator stopped")
	})
	return err
}

// Wait blocks until every goroutine started by the orchestrator has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) newWorker(channel string, cfg WorkerConfig) *ChannelWorker {
	return NewChannelWorker(channel, o.factory, cfg, o.log)
}

// spawnLocked runs w in its own goroutine. Caller holds mu with ready set, so
// the WaitGroup add cannot race a Shutdown.
func (o *Orchestrator) spawnLocked(w *ChannelWorker) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := w.Run(o.ctx); errors.Is(err, ErrWorkerExhausted) {
			o.retire(w, err)
		}
	}()
}

// retire handles a worker that exhausted its retries: the final points are
// flushed while it is still listed, then it leaves the table. The primary is
// restarted after RetryDelay since it must always be present. The flush runs
// outside cmdMu so slow sinks never hold up commands.
func (o *Orchestrator) retire(w *ChannelWorker, cause error) {
	if o.ready.Load() {
		o.recorder.Flush(o.ctx)
	}

	o.cmdMu.Lock()
	defer o.cmdMu.Unlock()

	o.mu.Lock()
	defer o.mu.Unlock()
	ch := w.Channel()
	if o.workers[ch] != w {
		return
	}
	delete(o.workers, ch)
	o.log.Error().Err(cause).Str("channel", ch).Msg("worker terminated and removed")

	if ch == o.primary && o.ready.Load() {
		cfg := o.opts.Worker
		cfg.StartDelay = cfg.RetryDelay
		restart := o.newWorker(ch, cfg)
		o.workers[ch] = restart
		o.spawnLocked(restart)
		o.log.Warn().Str("channel", ch).Dur("delay", cfg.StartDelay).Msg("restarting primary worker")
	}
}

func (o *Orchestrator) awaitExit(w *ChannelWorker, grace time.Duration) bool {
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-w.Done():
		return true
	case <-t.C:
		o.log.Warn().Str("channel", w.Channel()).Dur("grace", grace).
			Msg("worker did not exit within grace period; leaving it to finish")
		return false
	}
}
