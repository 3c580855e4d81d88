package ledger

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// sessionPool is a bounded pool of reusable sessions admitted by a permit
// semaphore. The semaphore governs admission independently of idle-queue
// membership: a caller that holds a permit but finds no idle session still
// creates a fresh one while holding that permit (spec §9).
type sessionPool struct {
	sem *semaphore.Weighted
	cap int64

	factory func(context.Context) (*session, error)
	logger  Logger

	mu     sync.Mutex
	idle   []*session
	closed bool
}

func newSessionPool(cfg DriverConfig, factory func(context.Context) (*session, error)) *sessionPool {
	cap := int64(cfg.maxConcurrentTransactions)
	if cap <= 0 {
		cap = unboundedSentinel
	}
	return &sessionPool{
		sem:     semaphore.NewWeighted(cap),
		cap:     cap,
		factory: factory,
		logger:  cfg.logger,
	}
}

// acquire obtains a permit (failing fast per the pool's acquire timeout) and
// either returns an idle session or creates a fresh one through the
// factory, per spec §4.5.
func (p *sessionPool) acquire(ctx context.Context, timeout time.Duration) (*session, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, &DriverClosedError{}
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &PoolTimeoutError{}
	}

	if sess := p.takeIdle(); sess != nil {
		p.logger.Log(LogLevelDebug, "reusing session from pool")
		return sess, nil
	}

	sess, err := p.factory(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, &TransactionError{SessionAlive: false, Retriable: true, Cause: err}
	}
	return sess, nil
}

func (p *sessionPool) takeIdle() *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.idle)
	if n == 0 {
		return nil
	}
	sess := p.idle[n-1]
	p.idle = p.idle[:n-1]
	return sess
}

// release returns sess to the pool if alive and the pool is still open;
// otherwise it discards sess (best-effort end()). The permit is always
// released exactly once.
func (p *sessionPool) release(ctx context.Context, sess *session, alive bool) {
	p.mu.Lock()
	closed := p.closed
	if alive && !closed {
		p.idle = append(p.idle, sess)
		p.mu.Unlock()
		p.sem.Release(1)
		p.logger.Log(LogLevelDebug, "session returned to pool", "idle_sessions", len(p.idle))
		return
	}
	p.mu.Unlock()

	if err := sess.end(ctx); err != nil {
		p.logger.Log(LogLevelDebug, "error ending discarded session", "err", err)
	}
	p.sem.Release(1)
}

// close marks the pool closed and drains every idle session, ending each
// best-effort and concurrently. Outstanding checked-out sessions are not
// force-closed; they are discarded on their next release.
func (p *sessionPool) close(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	toDrain := p.idle
	p.idle = nil
	p.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, sess := range toDrain {
		sess := sess
		g.Go(func() error {
			if err := sess.end(gctx); err != nil {
				p.logger.Log(LogLevelDebug, "error ending session during close", "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
