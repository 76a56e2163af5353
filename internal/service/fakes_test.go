package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mathieu-neron/chanwatch/internal/model"
	"github.com/mathieu-neron/chanwatch/internal/session"
)

var errBoom = fmt.Errorf("%w: boom", session.ErrTransient)

// fakeFactory scripts the behaviour of every session it creates, per channel.
type fakeFactory struct {
	mu sync.Mutex

	navFail  map[string]int // remaining navigate failures; -1 fails forever
	broken   map[string]bool
	staleFor map[string]int // remaining ticks reporting the wrong channel
	bonus    map[string]bool
	clickErr error
	block    chan struct{} // when set, Navigate waits for it (or ctx)

	created     int
	closed      int
	navigations map[string]int
	clicks      int
	clickTries  int
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		navFail:     make(map[string]int),
		broken:      make(map[string]bool),
		staleFor:    make(map[string]int),
		bonus:       make(map[string]bool),
		navigations: make(map[string]int),
	}
}

func (f *fakeFactory) NewSession(ctx context.Context) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return &fakeSession{f: f}, nil
}

func (f *fakeFactory) setBroken(channel string, broken bool) {
	f.mu.Lock()
	f.broken[channel] = broken
	f.mu.Unlock()
}

func (f *fakeFactory) stats() (created, closed, clicks, clickTries int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, f.closed, f.clicks, f.clickTries
}

func (f *fakeFactory) navCount(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.navigations[channel]
}

type fakeSession struct {
	f       *fakeFactory
	channel string
}

func (s *fakeSession) Navigate(ctx context.Context, channel string) error {
	s.f.mu.Lock()
	block := s.f.block
	s.f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", session.ErrTransient, ctx.Err())
		}
	}

	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.navigations[channel]++
	if s.f.broken[channel] {
		return errBoom
	}
	if n := s.f.navFail[channel]; n != 0 {
		if n > 0 {
			s.f.navFail[channel] = n - 1
		}
		return errBoom
	}
	s.channel = channel
	return nil
}

func (s *fakeSession) CurrentChannel(ctx context.Context) (string, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.broken[s.channel] {
		return "", errBoom
	}
	if n := s.f.staleFor[s.channel]; n > 0 {
		s.f.staleFor[s.channel] = n - 1
		return "somewhere-else", nil
	}
	return s.channel, nil
}

func (s *fakeSession) FindBonus(ctx context.Context) (session.Element, bool, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if !s.f.bonus[s.channel] {
		return nil, false, nil
	}
	return &fakeElement{f: s.f}, true, nil
}

func (s *fakeSession) Close() error {
	s.f.mu.Lock()
	s.f.closed++
	s.f.mu.Unlock()
	return nil
}

type fakeElement struct{ f *fakeFactory }

func (e *fakeElement) Click(ctx context.Context) error {
	e.f.mu.Lock()
	defer e.f.mu.Unlock()
	e.f.clickTries++
	if e.f.clickErr != nil {
		return e.f.clickErr
	}
	e.f.clicks++
	return nil
}

// recordingSink keeps every flush it receives.
type recordingSink struct {
	mu      sync.Mutex
	flushes [][]model.StatsSnapshot
	err     error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) WriteSnapshots(ctx context.Context, at time.Time, snaps []model.StatsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]model.StatsSnapshot, len(snaps))
	copy(cp, snaps)
	s.flushes = append(s.flushes, cp)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flushes)
}

// lastWith returns the snapshot for channel from the most recent flush that contains it.
func (s *recordingSink) lastWith(channel string) (model.StatsSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.flushes) - 1; i >= 0; i-- {
		for _, snap := range s.flushes[i] {
			if snap.Channel == channel {
				return snap, true
			}
		}
	}
	return model.StatsSnapshot{}, false
}

// hangingSink blocks every write until its context ends, like a database
// that stopped answering.
type hangingSink struct {
	entered chan struct{}
	once    sync.Once
}

func newHangingSink() *hangingSink {
	return &hangingSink{entered: make(chan struct{})}
}

func (s *hangingSink) Name() string { return "hanging" }

func (s *hangingSink) WriteSnapshots(ctx context.Context, at time.Time, snaps []model.StatsSnapshot) error {
	s.once.Do(func() { close(s.entered) })
	<-ctx.Done()
	return ctx.Err()
}

func fastWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:    2 * time.Millisecond,
		MaxRetries:      3,
		RetryDelay:      time.Millisecond,
		CallTimeout:     time.Second,
		PointsPerPeriod: 10,
		AccrualPeriod:   10 * time.Millisecond,
		ClaimReward:     50,
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out after %s waiting for %s", timeout, what)
}

func isExhausted(err error) bool {
	return errors.Is(err, ErrWorkerExhausted)
}

var nopLog = zerolog.Nop()
