// Package task implements the cooperative task base and master/slave
// composite task §4.5 builds the connection agent, media engine, and
// session coordinators on top of.
package task

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tevino/abool"
)

// MsgKind discriminates inbox messages.
type MsgKind int

const (
	// MsgTerminate is the sentinel posted by Terminate; a task's Run
	// hook must stop reading the inbox and return once it sees one.
	MsgTerminate MsgKind = iota
	MsgUser
)

// Msg is one inbox entry.
type Msg struct {
	Kind MsgKind
	Data any
}

// Hooks are the pre-run, run and post-run lifecycle callbacks of §4.5;
// termination is not a hook but a MsgTerminate posted by Terminate.
// A nil hook other than Run means "no-op" — the spec's "null vtable slot means inherit
// default" made explicit via Go's zero value for a func field.
type Hooks struct {
	PreRun  func(t *Base) error
	Run     func(t *Base) error
	PostRun func(t *Base) error
}

// Base is a task: a worker goroutine plus a bounded inbox. It is the
// common foundation both standalone tasks (the media engine) and
// Composite slaves are built from.
type Base struct {
	name  string
	hooks Hooks

	inbox chan Msg
	wg    sync.WaitGroup

	running abool.AtomicBool
	runErr  error
}

// NewBase creates a task named name with the given hooks and inbox
// capacity. hooks.Run must not be nil.
func NewBase(name string, hooks Hooks, inboxCap int) *Base {
	if hooks.Run == nil {
		panic("mrcpd: task: Run hook is required")
	}
	if inboxCap <= 0 {
		inboxCap = 16
	}
	return &Base{name: name, hooks: hooks, inbox: make(chan Msg, inboxCap)}
}

// Name returns the task's name, used for logging.
func (t *Base) Name() string { return t.name }

// Inbox exposes the receive-only inbox channel for the Run hook to range
// or select over.
func (t *Base) Inbox() <-chan Msg { return t.inbox }

// Start spawns the worker goroutine, which runs pre-run, then run, then
// post-run in order.
func (t *Base) Start() error {
	if !t.running.SetToIf(false, true) {
		return fmt.Errorf("mrcpd: task %q: already running", t.name)
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.running.UnSet()
		if t.hooks.PreRun != nil {
			if err := t.hooks.PreRun(t); err != nil {
				slog.Error("task pre-run failed", "task", t.name, "error", err)
				t.runErr = err
				return
			}
		}
		if err := t.hooks.Run(t); err != nil {
			slog.Error("task run failed", "task", t.name, "error", err)
			t.runErr = err
		}
		if t.hooks.PostRun != nil {
			if err := t.hooks.PostRun(t); err != nil {
				slog.Error("task post-run failed", "task", t.name, "error", err)
				if t.runErr == nil {
					t.runErr = err
				}
			}
		}
	}()
	return nil
}

// Post enqueues a message for the worker goroutine. It never blocks: a
// full inbox drops the message and reports false.
func (t *Base) Post(m Msg) bool {
	select {
	case t.inbox <- m:
		return true
	default:
		slog.Warn("task inbox full, dropping message", "task", t.name, "kind", m.Kind)
		return false
	}
}

// Terminate posts MsgTerminate and, if wait is true, blocks until the
// worker goroutine has returned from post-run.
func (t *Base) Terminate(wait bool) error {
	t.inbox <- Msg{Kind: MsgTerminate}
	if wait {
		t.wg.Wait()
	}
	return nil
}

// Running reports whether the worker goroutine is currently active.
func (t *Base) Running() bool { return t.running.IsSet() }

// Err returns the error (if any) the run/pre-run/post-run hooks failed
// with, valid after the worker goroutine has returned.
func (t *Base) Err() error { return t.runErr }

// RunUntilTerminate is the Run hook most tasks use: it ranges over the
// inbox, dispatching every non-terminate message to handle, and returns
// as soon as MsgTerminate arrives.
func RunUntilTerminate(handle func(Msg)) func(*Base) error {
	return func(t *Base) error {
		for m := range t.inbox {
			if m.Kind == MsgTerminate {
				return nil
			}
			if handle != nil {
				handle(m)
			}
		}
		return nil
	}
}
