package agent

import (
	"fmt"

	"github.com/serialx/hashring"
)

// Pool fronts several client-role Agent reactors, sharding sessions
// across them by consistent hash so a given session's channels always
// land on the same reactor goroutine (client deployments that front
// many concurrent calls run one reactor per CPU rather than a single
// bottlenecked loop).
type Pool struct {
	agents map[string]*Agent
	ring   *hashring.HashRing
}

// NewPool builds a pool from a name->Agent map; names become the
// hashring's node identifiers.
func NewPool(agents map[string]*Agent) *Pool {
	names := make([]string, 0, len(agents))
	for name := range agents {
		names = append(names, name)
	}
	return &Pool{agents: agents, ring: hashring.New(names)}
}

// For returns the agent responsible for sessionID.
func (p *Pool) For(sessionID string) (*Agent, error) {
	name, ok := p.ring.GetNode(sessionID)
	if !ok {
		return nil, fmt.Errorf("mrcpd: agent: pool has no nodes for session %q", sessionID)
	}
	a, ok := p.agents[name]
	if !ok {
		return nil, fmt.Errorf("mrcpd: agent: pool node %q has no backing agent", name)
	}
	return a, nil
}

// StartAll starts every agent in the pool.
func (p *Pool) StartAll() error {
	for name, a := range p.agents {
		if err := a.Start(); err != nil {
			return fmt.Errorf("mrcpd: agent: pool start %q: %w", name, err)
		}
	}
	return nil
}

// TerminateAll terminates every agent in the pool, waiting for each.
func (p *Pool) TerminateAll() error {
	var firstErr error
	for _, a := range p.agents {
		if err := a.Terminate(true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
