package media

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"firestige.xyz/mrcpd/internal/audio"
	"go.uber.org/multierr"
)

// MaxTerminations is the compile-time slot bound §4.7 names (typically
// 8).
const MaxTerminations = 8

// ErrContextFull is returned by Add when every slot is occupied.
var ErrContextFull = errors.New("mrcpd: media: context full")

// ErrSlotEmpty is returned by Subtract/termination lookups against an
// unoccupied slot.
var ErrSlotEmpty = errors.New("mrcpd: media: slot empty")

// Context is a media-plane container holding up to MaxTerminations
// terminations and the adapter graph connecting them. Add, Subtract
// and Tick are safe for concurrent use; the media engine is the only
// intended caller, but a context may also be inspected from tests or
// diagnostics while idle.
type Context struct {
	mu      sync.Mutex
	slots   [MaxTerminations]*Termination
	objects []*Object
	codecs  *audio.CodecManager
}

// NewContext creates an empty context backed by codecs for bridge
// selection.
func NewContext(codecs *audio.CodecManager) *Context {
	return &Context{codecs: codecs}
}

// Add fills the lowest free slot with t and rebuilds the topology if
// the context now holds two or more terminations. Returns the
// occupied slot index.
func (c *Context) Add(t *Termination) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot := -1
	for i, s := range c.slots {
		if s == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		return -1, ErrContextFull
	}
	c.slots[slot] = t
	if err := c.rebuildTopologyLocked(); err != nil {
		c.slots[slot] = nil
		return -1, err
	}
	return slot, nil
}

// Subtract destroys the topology, then clears slot (§4.7: destroy
// before clear, never the reverse, so no object ever references a
// slot mid-teardown).
func (c *Context) Subtract(slot int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if slot < 0 || slot >= MaxTerminations || c.slots[slot] == nil {
		return ErrSlotEmpty
	}
	c.objects = nil
	c.slots[slot] = nil
	return c.rebuildTopologyLocked()
}

// Replace swaps the termination occupying slot, rebuilding the
// topology afterward. Used by ModifyTermination requests that update
// an already-added termination's negotiated stream in place.
func (c *Context) Replace(slot int, t *Termination) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slot < 0 || slot >= MaxTerminations || c.slots[slot] == nil {
		return ErrSlotEmpty
	}
	c.slots[slot] = t
	return c.rebuildTopologyLocked()
}

// rebuildTopologyLocked implements the §8 topology invariant: for
// every ordered pair of occupied slots where the source declares
// Receive and the sink declares Send, exactly one directional object
// exists. Objects are kept sorted by (src slot, sink slot) so Tick
// visits them in a stable, deterministic order.
func (c *Context) rebuildTopologyLocked() error {
	occupied := 0
	for _, s := range c.slots {
		if s != nil {
			occupied++
		}
	}
	if occupied < 2 {
		c.objects = nil
		return nil
	}

	type pair struct {
		i, j int
	}
	var pairs []pair
	for i, src := range c.slots {
		if src == nil {
			continue
		}
		for j, sink := range c.slots {
			if sink == nil || i == j {
				continue
			}
			if src.Stream.Direction.Has(audio.DirReceive) && sink.Stream.Direction.Has(audio.DirSend) {
				pairs = append(pairs, pair{i, j})
			}
		}
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].i != pairs[b].i {
			return pairs[a].i < pairs[b].i
		}
		return pairs[a].j < pairs[b].j
	})

	objects := make([]*Object, 0, len(pairs))
	for _, p := range pairs {
		obj, err := newObject(c.codecs, c.slots[p.i], c.slots[p.j])
		if err != nil {
			return fmt.Errorf("mrcpd: media: rebuild topology: %w", err)
		}
		objects = append(objects, obj)
	}
	c.objects = objects
	return nil
}

// Tick runs process on every topology object in slot order, per
// §4.7's "on every engine tick, the context iterates its objects in
// slot order and calls process()". Errors from individual objects are
// aggregated, never short-circuited, matching the project-wide
// partial-failure discipline.
func (c *Context) Tick() error {
	c.mu.Lock()
	objects := c.objects
	c.mu.Unlock()

	var errs error
	for _, o := range objects {
		if err := o.process(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Objects returns a snapshot of the current topology, for tests and
// diagnostics.
func (c *Context) Objects() []*Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Object, len(c.objects))
	copy(out, c.objects)
	return out
}

// Occupied reports how many slots currently hold a termination.
func (c *Context) Occupied() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.slots {
		if s != nil {
			n++
		}
	}
	return n
}
