package media

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"firestige.xyz/mrcpd/internal/audio"
	"firestige.xyz/mrcpd/internal/task"
)

// RequestKind discriminates the media engine's request queue entries
// (§4.10).
type RequestKind int

const (
	AddContext RequestKind = iota
	ModifyTermination
	SubtractTermination
	MoveTermination
)

// Request is one entry the engine drains and applies synchronously at
// the start of a tick.
type Request struct {
	Kind          RequestKind
	ContextID     string
	TargetContext string // MoveTermination's destination
	Slot          int
	Termination   *Termination
	ReplyTo       *task.Base
}

// Response is posted back to the originating session's inbox after a
// request is applied.
type Response struct {
	Request Request
	Slot    int
	Err     error
}

// Engine is the task whose run ticks every frame interval,
// applying queued requests synchronously and then driving every
// active context's topology one tick (§4.10).
type Engine struct {
	base          *task.Base
	codecs        *audio.CodecManager
	frameInterval time.Duration

	mu       sync.Mutex
	contexts map[string]*Context
	pending  []Request
}

// NewEngine builds a media engine with the given frame cadence
// (typically 10ms) and codec manager.
func NewEngine(frameInterval time.Duration, codecs *audio.CodecManager) *Engine {
	if frameInterval <= 0 {
		frameInterval = 10 * time.Millisecond
	}
	e := &Engine{
		frameInterval: frameInterval,
		codecs:        codecs,
		contexts:      make(map[string]*Context),
	}
	e.base = task.NewBase("media-engine", task.Hooks{Run: e.run}, 64)
	return e
}

// Base exposes the underlying task for composition into a parent
// Composite (the agent-wide task tree).
func (e *Engine) Base() *task.Base { return e.base }

func (e *Engine) Start() error           { return e.base.Start() }
func (e *Engine) Terminate(w bool) error { return e.base.Terminate(w) }

// Submit enqueues a request for application at the next tick
// boundary. Safe to call from any goroutine.
func (e *Engine) Submit(req Request) {
	e.mu.Lock()
	e.pending = append(e.pending, req)
	e.mu.Unlock()
}

// Context returns the named context, or nil if it has not been
// created with an AddContext request.
func (e *Engine) Context(id string) *Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contexts[id]
}

func (e *Engine) run(t *task.Base) error {
	ticker := time.NewTicker(e.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case m := <-t.Inbox():
			if m.Kind == task.MsgTerminate {
				return nil
			}
		case <-ticker.C:
			e.drainAndApply()
			e.tickContexts()
		}
	}
}

func (e *Engine) drainAndApply() {
	e.mu.Lock()
	reqs := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, req := range reqs {
		slot, err := e.apply(req)
		if err != nil {
			slog.Warn("media engine request failed", "kind", req.Kind, "context", req.ContextID, "error", err)
		}
		if req.ReplyTo != nil {
			req.ReplyTo.Post(task.Msg{Kind: task.MsgUser, Data: Response{Request: req, Slot: slot, Err: err}})
		}
	}
}

func (e *Engine) apply(req Request) (int, error) {
	switch req.Kind {
	case AddContext:
		e.mu.Lock()
		if _, exists := e.contexts[req.ContextID]; exists {
			e.mu.Unlock()
			return -1, fmt.Errorf("mrcpd: media: context %q already exists", req.ContextID)
		}
		e.contexts[req.ContextID] = NewContext(e.codecs)
		e.mu.Unlock()
		return -1, nil

	case ModifyTermination:
		ctx, err := e.lookup(req.ContextID)
		if err != nil {
			return -1, err
		}
		if req.Slot >= 0 {
			return req.Slot, ctx.Replace(req.Slot, req.Termination)
		}
		slot, err := ctx.Add(req.Termination)
		return slot, err

	case SubtractTermination:
		ctx, err := e.lookup(req.ContextID)
		if err != nil {
			return -1, err
		}
		return req.Slot, ctx.Subtract(req.Slot)

	case MoveTermination:
		src, err := e.lookup(req.ContextID)
		if err != nil {
			return -1, err
		}
		dst, err := e.lookup(req.TargetContext)
		if err != nil {
			return -1, err
		}
		if err := src.Subtract(req.Slot); err != nil {
			return -1, err
		}
		slot, err := dst.Add(req.Termination)
		return slot, err

	default:
		return -1, fmt.Errorf("mrcpd: media: unknown request kind %d", req.Kind)
	}
}

func (e *Engine) lookup(id string) (*Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx, ok := e.contexts[id]
	if !ok {
		return nil, fmt.Errorf("mrcpd: media: unknown context %q", id)
	}
	return ctx, nil
}

func (e *Engine) tickContexts() {
	e.mu.Lock()
	contexts := make([]*Context, 0, len(e.contexts))
	for _, c := range e.contexts {
		contexts = append(contexts, c)
	}
	e.mu.Unlock()

	for _, c := range contexts {
		if err := c.Tick(); err != nil {
			slog.Warn("media context tick reported errors", "error", err)
		}
	}
}
