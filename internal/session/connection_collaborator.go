package session

import (
	"context"
	"fmt"
	"time"

	"firestige.xyz/mrcpd/internal/agent"
	"firestige.xyz/mrcpd/internal/task"
)

// ConnectionOffer is the Connection leg of a RoundContext: which
// remote address to bind the channel's connection to, and whether an
// existing connection may be reused (§4.8's ModifyChannel reuse
// policy).
type ConnectionOffer struct {
	RemoteAddr string
	ConnType   agent.ConnectionType
}

// connectionReplyTimeout bounds how long a collaborator waits for the
// connection agent's reactor to apply a request, so a wedged agent
// cannot hang a session's offer/terminate round forever.
const connectionReplyTimeout = 5 * time.Second

// NewConnectionCollaborator adapts a connection agent into the
// Collaborator shape: it submits a ModifyChannel request and, on
// success, binds the channel's connection-agent side (§3).
func NewConnectionCollaborator(a *agent.Agent) Collaborator {
	return func(w Work) error {
		rc, ok := w.Payload.(*RoundContext)
		if !ok || rc.Connection == nil || rc.Channel == nil {
			return fmt.Errorf("mrcpd: session: connection collaborator requires a RoundContext with Connection and Channel set, got %T", w.Payload)
		}
		replyTo, respCh := newConnectionReplyTarget()
		defer replyTo.Terminate(false)

		if !a.Submit(agent.Request{
			Kind:           agent.ModifyChannel,
			ChannelID:      rc.Channel.ID,
			RemoteAddr:     rc.Connection.RemoteAddr,
			ConnectionType: rc.Connection.ConnType,
			ReplyTo:        replyTo,
		}) {
			return fmt.Errorf("mrcpd: session: connection agent rejected modify channel %s", rc.Channel.ID)
		}

		resp, err := waitConnectionResponse(respCh)
		if err != nil {
			return fmt.Errorf("mrcpd: session: connection agent modify channel %s: %w", rc.Channel.ID, err)
		}
		if resp.Err != nil {
			return fmt.Errorf("mrcpd: session: connection agent modify channel %s: %w", rc.Channel.ID, resp.Err)
		}
		rc.Channel.BindChannel(rc.Connection.RemoteAddr)
		return nil
	}
}

// NewConnectionTeardownCollaborator adapts a connection agent's
// RemoveChannel path into the Collaborator shape used on terminate
// rounds.
func NewConnectionTeardownCollaborator(a *agent.Agent) Collaborator {
	return func(w Work) error {
		rc, ok := w.Payload.(*RoundContext)
		if !ok || rc.Channel == nil {
			return fmt.Errorf("mrcpd: session: connection teardown collaborator requires a RoundContext with Channel set, got %T", w.Payload)
		}
		replyTo, respCh := newConnectionReplyTarget()
		defer replyTo.Terminate(false)

		if !a.Submit(agent.Request{Kind: agent.RemoveChannel, ChannelID: rc.Channel.ID, ReplyTo: replyTo}) {
			return fmt.Errorf("mrcpd: session: connection agent rejected remove channel %s", rc.Channel.ID)
		}

		resp, err := waitConnectionResponse(respCh)
		if err != nil {
			return fmt.Errorf("mrcpd: session: connection agent remove channel %s: %w", rc.Channel.ID, err)
		}
		if resp.Err != nil {
			return fmt.Errorf("mrcpd: session: connection agent remove channel %s: %w", rc.Channel.ID, resp.Err)
		}
		rc.Channel.UnbindChannel()
		return nil
	}
}

func newConnectionReplyTarget() (*task.Base, chan agent.Response) {
	respCh := make(chan agent.Response, 1)
	b := task.NewBase("session-connection-reply", task.Hooks{
		Run: task.RunUntilTerminate(func(m task.Msg) {
			if resp, ok := m.Data.(agent.Response); ok {
				respCh <- resp
			}
		}),
	}, 1)
	b.Start()
	return b, respCh
}

func waitConnectionResponse(ch <-chan agent.Response) (agent.Response, error) {
	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(connectionReplyTimeout):
		return agent.Response{}, context.DeadlineExceeded
	}
}
