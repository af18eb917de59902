package task

import (
	"context"
	"log/slog"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// Task is the minimal lifecycle surface a composite's slaves (and the
// composite itself, recursively) must satisfy.
type Task interface {
	Start() error
	Terminate(wait bool) error
}

// Composite aggregates a master task with zero or more slave tasks
// (§4.5). It satisfies Task itself, so a composite can be nested as a
// slave of another composite — the tree this forms is how the
// connection agent, media engine and session coordinators compose in
// §2's component table.
//
// Go strategy note: the source signals "slave start complete" with an
// async callback that decrements a shared counter from another thread.
// Here Start and Terminate on every slave are ordinary blocking calls
// fanned out concurrently and joined with a WaitGroup; a slave's call
// returning IS the completion signal, and nesting composites is just
// nesting blocking calls. pendingStart/pendingTerminate are kept as
// atomic counters purely as externally observable state (§8 invariant:
// both are non-negative and never exceed the slave count at the moment
// the phase began), not as the synchronization mechanism itself.
type Composite struct {
	name   string
	master *Base
	slaves []Task

	pendingStart     atomic.Int64
	pendingTerminate atomic.Int64

	onStartComplete     func()
	onTerminateComplete func()

	mu sync.Mutex
}

// NewComposite creates a composite task. master may be nil for a pure
// aggregator with no logic of its own beyond coordinating slaves.
func NewComposite(name string, master *Base, slaves []Task) *Composite {
	return &Composite{name: name, master: master, slaves: slaves}
}

// OnStartComplete registers the callback fired exactly once, after every
// slave's Start has returned (or immediately, if there are no slaves).
func (c *Composite) OnStartComplete(fn func()) { c.onStartComplete = fn }

// OnTerminateComplete registers the callback fired exactly once, after
// every slave has terminated and the master's own inbox has drained.
func (c *Composite) OnTerminateComplete(fn func()) { c.onTerminateComplete = fn }

// AddSlave appends a slave task. Not safe to call concurrently with
// Start/Terminate.
func (c *Composite) AddSlave(t Task) { c.slaves = append(c.slaves, t) }

// Start starts the master's pre-run/run/post-run goroutine (if a master
// is present) and starts every slave concurrently, waiting for all of
// them before returning. Errors from individual slaves are aggregated,
// not short-circuited — every slave still gets started (§4.9's
// never-abandon-in-flight-acks discipline, generalised to start too).
func (c *Composite) Start() error {
	n := int64(len(c.slaves))
	c.pendingStart.Store(n)

	var masterErr error
	if c.master != nil {
		masterErr = c.master.Start()
	}

	if n == 0 {
		c.fireStartComplete()
		return masterErr
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs error
	for _, s := range c.slaves {
		wg.Add(1)
		go func(s Task) {
			defer wg.Done()
			err := s.Start()
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			if c.pendingStart.Dec() == 0 {
				c.fireStartComplete()
			}
		}(s)
	}
	wg.Wait()

	return multierr.Append(masterErr, errs)
}

func (c *Composite) fireStartComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.onStartComplete != nil {
		c.onStartComplete()
	}
}

// Terminate terminates every slave concurrently, then the master, then
// fires OnTerminateComplete once the master's inbox has drained (the
// invariant: no terminate-complete signal before in-flight messages are
// drained). wait controls whether Terminate blocks its callers, not
// whether slaves are waited for internally — slaves are always joined
// before the master is asked to stop, since the master commonly owns
// resources (connections, contexts) the slaves still reference.
func (c *Composite) Terminate(wait bool) error {
	n := int64(len(c.slaves))
	c.pendingTerminate.Store(n)

	done := make(chan error, 1)
	go func() {
		done <- c.terminateSync()
	}()

	if !wait {
		return nil
	}
	return <-done
}

func (c *Composite) terminateSync() error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs error

	for _, s := range c.slaves {
		wg.Add(1)
		go func(s Task) {
			defer wg.Done()
			if err := s.Terminate(true); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			if c.pendingTerminate.Dec() == 0 {
				slog.Debug("composite: last slave terminated", "composite", c.name)
			}
		}(s)
	}
	wg.Wait()

	if len(c.slaves) == 0 {
		slog.Debug("composite: no slaves, terminate barrier satisfied immediately", "composite", c.name)
	}

	if c.master != nil {
		if err := c.master.Terminate(true); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	c.mu.Lock()
	if c.onTerminateComplete != nil {
		c.onTerminateComplete()
	}
	c.mu.Unlock()

	return errs
}

// PendingStart returns the current pending-start counter, for tests and
// diagnostics.
func (c *Composite) PendingStart() int64 { return c.pendingStart.Load() }

// PendingTerminate returns the current pending-terminate counter.
func (c *Composite) PendingTerminate() int64 { return c.pendingTerminate.Load() }

// waitContext runs fn in a goroutine and returns its error, or ctx.Err()
// if ctx is cancelled first. Used by callers that want a bounded wait on
// a composite's blocking Terminate/Start without abandoning the
// underlying call (it keeps running to completion regardless).
func waitContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TerminateContext behaves like Terminate(true), but returns ctx.Err()
// if ctx expires before every slave and the master have finished.
// Shutdown keeps running to completion in the background regardless of
// which one wins, so a caller that gives up early never leaves a slave
// mid-terminate: it only stops waiting for the result.
func (c *Composite) TerminateContext(ctx context.Context) error {
	c.pendingTerminate.Store(int64(len(c.slaves)))
	return waitContext(ctx, c.terminateSync)
}
