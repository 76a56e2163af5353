package session

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Shared is a capability pool of size one over a single underlying session.
// Each lease checks the session out exclusively per operation and moves the
// page to its own channel first if another lease left it elsewhere.
type Shared struct {
	factory Factory
	sem     *semaphore.Weighted

	// guarded by sem; gen advances on every navigation or new session
	sess    Session
	current string
	gen     uint64

	mu     sync.Mutex
	leases int
}

// NewShared wraps factory so that every session it hands out shares one page.
func NewShared(factory Factory) *Shared {
	return &Shared{factory: factory, sem: semaphore.NewWeighted(1)}
}

// NewSession returns a lease on the shared page.
func (s *Shared) NewSession(ctx context.Context) (Session, error) {
	s.mu.Lock()
	s.leases++
	s.mu.Unlock()
	return &lease{pool: s}, nil
}

// checkout acquires the page for one operation. The caller must call release.
func (s *Shared) checkout(ctx context.Context) (Session, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, transient("checkout", err)
	}
	if s.sess == nil {
		sess, err := s.factory.NewSession(ctx)
		if err != nil {
			s.sem.Release(1)
			return nil, err
		}
		s.sess = sess
		s.current = ""
		s.gen++
	}
	return s.sess, nil
}

func (s *Shared) release() {
	s.sem.Release(1)
}

// discard drops a broken underlying session; held under checkout.
func (s *Shared) discard() {
	if s.sess != nil {
		_ = s.sess.Close()
		s.sess = nil
		s.current = ""
	}
}

func (s *Shared) closeLease() error {
	s.mu.Lock()
	s.leases--
	last := s.leases == 0
	s.mu.Unlock()
	if !last {
		return nil
	}

	if err := s.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer s.sem.Release(1)
	if s.sess == nil {
		return nil
	}
	err := s.sess.Close()
	s.sess = nil
	s.current = ""
	return err
}

type lease struct {
	pool    *Shared
	channel string
	closed  bool
}

// ensure moves the shared page onto the lease's channel. Held under checkout.
func (l *lease) ensure(ctx context.Context, sess Session) error {
	if l.pool.current == l.channel {
		return nil
	}
	if err := sess.Navigate(ctx, l.channel); err != nil {
		l.pool.discard()
		return err
	}
	l.pool.current = l.channel
	l.pool.gen++
	return nil
}

func (l *lease) Navigate(ctx context.Context, channel string) error {
	sess, err := l.pool.checkout(ctx)
	if err != nil {
		return err
	}
	defer l.pool.release()

	if err := sess.Navigate(ctx, channel); err != nil {
		l.pool.discard()
		return err
	}
	l.channel = channel
	l.pool.current = channel
	l.pool.gen++
	return nil
}

func (l *lease) CurrentChannel(ctx context.Context) (string, error) {
	sess, err := l.pool.checkout(ctx)
	if err != nil {
		return "", err
	}
	defer l.pool.release()

	if err := l.ensure(ctx, sess); err != nil {
		return "", err
	}
	return sess.CurrentChannel(ctx)
}

func (l *lease) FindBonus(ctx context.Context) (Element, bool, error) {
	sess, err := l.pool.checkout(ctx)
	if err != nil {
		return nil, false, err
	}
	defer l.pool.release()

	if err := l.ensure(ctx, sess); err != nil {
		return nil, false, err
	}
	el, ok, err := sess.FindBonus(ctx)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &leasedElement{lease: l, el: el, gen: l.pool.gen}, true, nil
}

func (l *lease) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.pool.closeLease()
}

// leasedElement is only clickable while the shared page still shows the
// channel it was found on.
type leasedElement struct {
	lease *lease
	el    Element
	gen   uint64
}

func (e *leasedElement) Click(ctx context.Context) error {
	pool := e.lease.pool
	if _, err := pool.checkout(ctx); err != nil {
		return err
	}
	defer pool.release()

	if pool.gen != e.gen || pool.current != e.lease.channel {
		return fmt.Errorf("%w: element from %s no longer on page", ErrStale, e.lease.channel)
	}
	return e.el.Click(ctx)
}
